package model

import (
	baseModel "paycenter/pkg/model"
)

// ReceiverType 分账接收方类型
type ReceiverType string

const (
	ReceiverMerchantNo ReceiverType = "merchant_no" // 商户号
	ReceiverUserID     ReceiverType = "user_id"     // 支付宝用户ID
	ReceiverOpenID     ReceiverType = "open_id"     // 用户 OpenID
	ReceiverLoginName  ReceiverType = "login_name"  // 支付宝登录账号
)

// AllocReceiver 分账接收方
type AllocReceiver struct {
	baseModel.BaseModel
	ReceiverNo      string       `gorm:"uniqueIndex;size:32;not null" json:"receiverNo"`
	Channel         string       `gorm:"size:16;not null;uniqueIndex:uk_alloc_receiver_account" json:"channel" validate:"required,oneof=ALI WECHAT"`
	ReceiverType    ReceiverType `gorm:"size:16;not null;uniqueIndex:uk_alloc_receiver_account" json:"receiverType" validate:"required"`
	ReceiverAccount string       `gorm:"size:64;not null;uniqueIndex:uk_alloc_receiver_account" json:"receiverAccount" validate:"required,max=64"`
	ReceiverName    string       `gorm:"size:64" json:"receiverName,omitempty" validate:"max=64"`
	RelationType    string       `gorm:"size:32" json:"relationType,omitempty" validate:"max=32"`
	RelationName    string       `gorm:"size:64" json:"relationName,omitempty" validate:"max=64"`
	Bound           bool         `gorm:"not null;default:false" json:"bound"`
}

func (AllocReceiver) TableName() string { return "pay_alloc_receiver" }
