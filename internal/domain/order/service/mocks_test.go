package service

import (
	"time"

	addressModel "ecommerce_backend/internal/domain/address/model"
	"ecommerce_backend/internal/domain/order/gateway"
	"ecommerce_backend/internal/domain/order/model"
	productModel "ecommerce_backend/internal/domain/product/model"
	userModel "ecommerce_backend/internal/domain/user/model"

	"github.com/stretchr/testify/mock"
)

// MockOrderRepository is a mock of repository.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(order *model.Order) error {
	args := m.Called(order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(id string) (*model.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByPaymentRef(paymentRef string) (*model.Order, error) {
	args := m.Called(paymentRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) MarkPaid(paymentRef, source string) (bool, error) {
	args := m.Called(paymentRef, source)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) List(userID string, offset, limit int) ([]model.Order, int64, error) {
	args := m.Called(userID, offset, limit)
	return args.Get(0).([]model.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) UpdateShippingStatus(orderID, from, next string, stamp time.Time, cancelReason string) error {
	args := m.Called(orderID, from, next, stamp, cancelReason)
	return args.Error(0)
}

func (m *MockOrderRepository) MarkCODCollected(orderID string) error {
	args := m.Called(orderID)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateReturn(ret *model.OrderReturn) error {
	args := m.Called(ret)
	return args.Error(0)
}

func (m *MockOrderRepository) GetReturn(id string) (*model.OrderReturn, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderReturn), args.Error(1)
}

func (m *MockOrderRepository) AdvanceReturn(returnID, from, next string, stamp time.Time) error {
	args := m.Called(returnID, from, next, stamp)
	return args.Error(0)
}

func (m *MockOrderRepository) VerifyReturn(returnID string) error {
	args := m.Called(returnID)
	return args.Error(0)
}

func (m *MockOrderRepository) SetRefundStatus(orderID, status, refundRef string, stamp time.Time) error {
	args := m.Called(orderID, status, refundRef, stamp)
	return args.Error(0)
}

func (m *MockOrderRepository) Stats() (*model.OrderStats, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderStats), args.Error(1)
}

func (m *MockOrderRepository) TodayStats() (*model.TodayStats, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TodayStats), args.Error(1)
}

// MockCheckoutRepository is a mock of repository.CheckoutRepository
type MockCheckoutRepository struct {
	mock.Mock
}

func (m *MockCheckoutRepository) Create(session *model.CheckoutSession) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockCheckoutRepository) GetByRef(gatewayOrderRef string) (*model.CheckoutSession, error) {
	args := m.Called(gatewayOrderRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CheckoutSession), args.Error(1)
}

func (m *MockCheckoutRepository) Commit(gatewayOrderRef string) (bool, error) {
	args := m.Called(gatewayOrderRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockCheckoutRepository) Release(gatewayOrderRef string) (bool, error) {
	args := m.Called(gatewayOrderRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockCheckoutRepository) Reopen(gatewayOrderRef string) (bool, error) {
	args := m.Called(gatewayOrderRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockCheckoutRepository) ExpiredHeld(now time.Time, limit int) ([]model.CheckoutSession, error) {
	args := m.Called(now, limit)
	return args.Get(0).([]model.CheckoutSession), args.Error(1)
}

// MockProductRepository is a mock of repository.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetByID(id string) (*productModel.Product, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*productModel.Product), args.Error(1)
}

func (m *MockProductRepository) ReserveStock(lines []productModel.StockLine) error {
	args := m.Called(lines)
	return args.Error(0)
}

func (m *MockProductRepository) RestoreStock(lines []productModel.StockLine) error {
	args := m.Called(lines)
	return args.Error(0)
}

// MockAddressRepository is a mock of repository.AddressRepository
type MockAddressRepository struct {
	mock.Mock
}

func (m *MockAddressRepository) GetByID(id string) (*addressModel.Address, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*addressModel.Address), args.Error(1)
}

func (m *MockAddressRepository) ResolveSnapshot(id string) (addressModel.Snapshot, error) {
	args := m.Called(id)
	return args.Get(0).(addressModel.Snapshot), args.Error(1)
}

// MockUserRepository is a mock of repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(id string) (*userModel.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*userModel.User), args.Error(1)
}

func (m *MockUserRepository) Exists(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

// MockGateway is a mock of gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(amount float64, receipt string, notes map[string]interface{}) (*gateway.GatewayOrder, error) {
	args := m.Called(amount, receipt, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.GatewayOrder), args.Error(1)
}

func (m *MockGateway) VerifyPaymentSignature(orderRef, paymentRef, signature string) bool {
	args := m.Called(orderRef, paymentRef, signature)
	return args.Bool(0)
}

func (m *MockGateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	args := m.Called(rawBody, signature)
	return args.Bool(0)
}

func (m *MockGateway) ClientKey() string {
	args := m.Called()
	return args.String(0)
}

// MockNotifier is a mock of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyAdmin(subject, text, html string) {
	m.Called(subject, text, html)
}
