package model

import (
	baseModel "ecommerce_backend/pkg/model"
)

// Address 收货地址
type Address struct {
	baseModel.BaseModel
	UserID              string `gorm:"type:uuid;index;not null" json:"userId"`
	FirstName           string `gorm:"type:varchar(50);not null" json:"firstName"`
	LastName            string `gorm:"type:varchar(50)" json:"lastName"`
	MobileNo            string `gorm:"type:varchar(20);not null" json:"mobileNo"`
	AlternativeMobileNo string `gorm:"type:varchar(20)" json:"alternativeMobileNo"`
	FlatNo              string `gorm:"not null" json:"flatNo"`
	Area                string `gorm:"not null" json:"area"`
	LandMark            string `json:"landMark"`
	City                string `gorm:"not null" json:"city"`
	State               string `gorm:"not null" json:"state"`
	Zip                 string `gorm:"type:varchar(10);not null" json:"zip"`
	Country             string `gorm:"default:'India'" json:"country"`
}

// Snapshot 地址快照，下单时整体拷贝进订单
// 与源地址记录完全脱钩，源地址之后的修改不影响已创建订单
type Snapshot struct {
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	MobileNo            string `json:"mobileNo"`
	AlternativeMobileNo string `json:"alternativeMobileNo"`
	FlatNo              string `json:"flatNo"`
	Area                string `json:"area"`
	LandMark            string `json:"landMark"`
	City                string `json:"city"`
	State               string `json:"state"`
	Zip                 string `json:"zip"`
	Country             string `json:"country"`
}

// Snapshot 生成脱钩的地址快照
func (a *Address) Snapshot() Snapshot {
	return Snapshot{
		FirstName:           a.FirstName,
		LastName:            a.LastName,
		MobileNo:            a.MobileNo,
		AlternativeMobileNo: a.AlternativeMobileNo,
		FlatNo:              a.FlatNo,
		Area:                a.Area,
		LandMark:            a.LandMark,
		City:                a.City,
		State:               a.State,
		Zip:                 a.Zip,
		Country:             a.Country,
	}
}
