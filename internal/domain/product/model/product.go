package model

import (
	baseModel "ecommerce_backend/pkg/model"
)

// Product 商品模型
// 目录维护（分类、图片、详情）由独立的后台服务负责，这里只承载下单所需字段
type Product struct {
	baseModel.BaseModel
	Name            string           `gorm:"not null" json:"name"`
	Slug            string           `gorm:"uniqueIndex;not null" json:"slug"`
	Price           float64          `gorm:"not null" json:"price"`
	DiscountedPrice float64          `json:"discountedPrice"`
	Color           string           `json:"color"`
	Variants        []ProductVariant `gorm:"foreignKey:ProductID" json:"variants"`
}

// ProductVariant 商品规格，按尺码维护独立库存
// 不变式：stock 永不为负，扣减必须走条件更新
type ProductVariant struct {
	baseModel.BaseModel
	ProductID string `gorm:"type:uuid;index:idx_variant_product_size,unique;not null" json:"productId"`
	Size      string `gorm:"index:idx_variant_product_size,unique;not null" json:"size"`
	Stock     int    `gorm:"not null;check:stock >= 0" json:"stock"`
}

// StockLine 一次库存操作的行项目
type StockLine struct {
	ProductID string
	Size      string
	Quantity  int
}
