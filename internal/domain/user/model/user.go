package model

import (
	baseModel "ecommerce_backend/pkg/model"
)

// User 用户模型
// 本服务只做存在性校验和通知展示，账号体系由独立的认证服务维护
type User struct {
	baseModel.BaseModel
	Name     string `gorm:"type:varchar(100)" json:"name"`
	Email    string `gorm:"uniqueIndex" json:"email"`
	MobileNo string `json:"mobileNo"`
	Role     int    `gorm:"default:1" json:"role"`
	Status   int    `gorm:"default:1" json:"status"`
}

const (
	RoleUser  = 1
	RoleAdmin = 2

	StatusNormal   = 1
	StatusDisabled = 2
)
