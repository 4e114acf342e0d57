package model

// OrderStats 订单总体统计
type OrderStats struct {
	TotalOrders          int64 `json:"totalOrders"`
	PendingOrders        int64 `json:"pendingOrders"`
	DeliveredOrders      int64 `json:"deliveredOrders"`
	CancelledOrders      int64 `json:"cancelledOrders"`
	TotalUnitsSold       int64 `json:"totalUnits"`
	DistinctProductCount int64 `json:"distinctProductsCount"`
}

// TodayStats 当日订单统计
type TodayStats struct {
	Completed     int64   `json:"completed"`
	Processing    int64   `json:"processing"`
	AvgOrderValue float64 `json:"avgOrderValue"`
}
