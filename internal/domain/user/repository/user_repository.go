package repository

import (
	"ecommerce_backend/internal/domain/user/model"

	"gorm.io/gorm"
)

// UserRepository 接口定义
type UserRepository interface {
	GetByID(id string) (*model.User, error)
	Exists(id string) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建新的仓库实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID 根据ID获取用户
func (r *userRepository) GetByID(id string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Exists 用户存在性校验
func (r *userRepository) Exists(id string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
