package model

import (
	"time"

	"paycenter/pkg/idgen"

	"gorm.io/gorm"
)

// BaseModel 基础模型，使用雪花 ID 作为主键；业务数据不做物理删除
type BaseModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate 钩子：生成雪花 ID
func (b *BaseModel) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == 0 {
		b.ID = idgen.NextID()
	}
	return
}
