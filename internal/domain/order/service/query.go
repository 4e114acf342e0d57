package service

import (
	"ecommerce_backend/internal/domain/order/model"
	"ecommerce_backend/pkg/utils"
)

// ListOrders 分页查询订单，userID 为空时查全量（运营后台）
// 按创建时间倒序
func (s *orderService) ListOrders(userID string, p *utils.Pagination) ([]model.Order, utils.PageMeta, error) {
	offset, limit := p.GetPageOffset()

	orders, total, err := s.orders.List(userID, offset, limit)
	if err != nil {
		return nil, utils.PageMeta{}, err
	}

	return orders, p.BuildPageMeta(total), nil
}

// GetOrderStats 全量订单统计（运营后台仪表盘）
func (s *orderService) GetOrderStats() (*model.OrderStats, error) {
	return s.orders.Stats()
}

// GetTodayStats 今日订单统计
func (s *orderService) GetTodayStats() (*model.TodayStats, error) {
	return s.orders.TodayStats()
}
