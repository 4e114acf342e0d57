package repository

import (
	"errors"
	"time"

	"ecommerce_backend/internal/domain/order/model"

	"gorm.io/gorm"
)

// ErrSessionNotFound 结算会话不存在
var ErrSessionNotFound = errors.New("checkout session not found")

// CheckoutRepository 结算会话（库存占用）仓库
// 会话的 held/committed/released 转移全部是条件更新，
// 同一笔占用的提交与释放互斥，扣减过的库存绝不二次扣减。
type CheckoutRepository interface {
	Create(session *model.CheckoutSession) error
	GetByRef(gatewayOrderRef string) (*model.CheckoutSession, error)
	// Commit held -> committed，返回本次调用是否赢得了转移
	Commit(gatewayOrderRef string) (bool, error)
	// Release held -> released，返回本次调用是否赢得了转移
	Release(gatewayOrderRef string) (bool, error)
	// Reopen committed -> released，确认失败补偿库存后回退会话，
	// 让后续重试重新预留而不是默认扣减仍然有效
	Reopen(gatewayOrderRef string) (bool, error)
	// ExpiredHeld 找出已过期但仍处于 held 的会话
	ExpiredHeld(now time.Time, limit int) ([]model.CheckoutSession, error)
}

type checkoutRepository struct {
	db *gorm.DB
}

// NewCheckoutRepository 创建新的仓库实例
func NewCheckoutRepository(db *gorm.DB) CheckoutRepository {
	return &checkoutRepository{db: db}
}

func (r *checkoutRepository) Create(session *model.CheckoutSession) error {
	return r.db.Create(session).Error
}

func (r *checkoutRepository) GetByRef(gatewayOrderRef string) (*model.CheckoutSession, error) {
	var session model.CheckoutSession
	err := r.db.Where("gateway_order_ref = ?", gatewayOrderRef).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *checkoutRepository) Commit(gatewayOrderRef string) (bool, error) {
	return r.transition(gatewayOrderRef, model.SessionHeld, model.SessionCommitted)
}

func (r *checkoutRepository) Release(gatewayOrderRef string) (bool, error) {
	return r.transition(gatewayOrderRef, model.SessionHeld, model.SessionReleased)
}

func (r *checkoutRepository) Reopen(gatewayOrderRef string) (bool, error) {
	return r.transition(gatewayOrderRef, model.SessionCommitted, model.SessionReleased)
}

func (r *checkoutRepository) transition(gatewayOrderRef, from, next string) (bool, error) {
	result := r.db.Model(&model.CheckoutSession{}).
		Where("gateway_order_ref = ? AND status = ?", gatewayOrderRef, from).
		UpdateColumn("status", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *checkoutRepository) ExpiredHeld(now time.Time, limit int) ([]model.CheckoutSession, error) {
	var sessions []model.CheckoutSession
	err := r.db.Where("status = ? AND expires_at < ?", model.SessionHeld, now).
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}
