package repository

import (
	"errors"
	"fmt"

	"ecommerce_backend/internal/domain/product/model"

	"gorm.io/gorm"
)

// 库存预留的业务拒绝，调用方用 errors.Is 区分并定位到具体商品/尺码
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductRepository 接口定义
type ProductRepository interface {
	GetByID(id string) (*model.Product, error)
	// ReserveStock 为一组行项目预留库存，全部成功或全部不生效
	ReserveStock(lines []model.StockLine) error
	// RestoreStock 补偿性回补库存
	RestoreStock(lines []model.StockLine) error
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建新的仓库实例
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// GetByID 根据ID获取商品（含规格）
func (r *productRepository) GetByID(id string) (*model.Product, error) {
	var product model.Product
	if err := r.db.Preload("Variants").Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return nil, err
	}
	return &product, nil
}

// ReserveStock 条件扣减库存
// 每个行项目一条 "stock = stock - q WHERE stock >= q" 的原子更新，
// 任何一项失败整个事务回滚，并发竞争同一规格时只有库存足够的一方成功。
func (r *productRepository) ReserveStock(lines []model.StockLine) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			result := tx.Model(&model.ProductVariant{}).
				Where("product_id = ? AND size = ? AND stock >= ?", line.ProductID, line.Size, line.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", line.Quantity))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return r.classifyReservationFailure(tx, line)
			}
		}
		return nil
	})
}

// classifyReservationFailure 区分商品不存在 / 规格不存在 / 库存不足
func (r *productRepository) classifyReservationFailure(tx *gorm.DB, line model.StockLine) error {
	var count int64
	if err := tx.Model(&model.Product{}).Where("id = ?", line.ProductID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
	}

	if err := tx.Model(&model.ProductVariant{}).
		Where("product_id = ? AND size = ?", line.ProductID, line.Size).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: product %s, size %s", ErrVariantNotFound, line.ProductID, line.Size)
	}

	return fmt.Errorf("%w: product %s, size %s", ErrInsufficientStock, line.ProductID, line.Size)
}

// RestoreStock 回补库存
// 用于下单中途失败的补偿和过期占用释放，失败由调用方记录告警
func (r *productRepository) RestoreStock(lines []model.StockLine) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			result := tx.Model(&model.ProductVariant{}).
				Where("product_id = ? AND size = ?", line.ProductID, line.Size).
				UpdateColumn("stock", gorm.Expr("stock + ?", line.Quantity))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: product %s, size %s", ErrVariantNotFound, line.ProductID, line.Size)
			}
		}
		return nil
	})
}
