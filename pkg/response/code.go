package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 用户模块错误 100xx
	ErrUserNotFound = 10002
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 订单/库存模块错误 300xx
	ErrOrderNotFound     = 30001
	ErrInsufficientStock = 30002
	ErrProductNotFound   = 30003
	ErrVariantNotFound   = 30004
	ErrAddressNotFound   = 30005
	ErrInvalidSignature  = 30006
	ErrGateway           = 30007
	ErrIllegalTransition = 30008
	ErrReturnNotAllowed  = 30009

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
