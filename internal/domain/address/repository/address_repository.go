package repository

import (
	"errors"

	"ecommerce_backend/internal/domain/address/model"

	"gorm.io/gorm"
)

// ErrAddressNotFound 地址不存在
var ErrAddressNotFound = errors.New("address not found")

// AddressRepository 接口定义
type AddressRepository interface {
	GetByID(id string) (*model.Address, error)
	// ResolveSnapshot 解析出脱钩的地址快照
	ResolveSnapshot(id string) (model.Snapshot, error)
}

type addressRepository struct {
	db *gorm.DB
}

// NewAddressRepository 创建新的仓库实例
func NewAddressRepository(db *gorm.DB) AddressRepository {
	return &addressRepository{db: db}
}

func (r *addressRepository) GetByID(id string) (*model.Address, error) {
	var addr model.Address
	if err := r.db.Where("id = ?", id).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return &addr, nil
}

func (r *addressRepository) ResolveSnapshot(id string) (model.Snapshot, error) {
	addr, err := r.GetByID(id)
	if err != nil {
		return model.Snapshot{}, err
	}
	return addr.Snapshot(), nil
}
