package model

import (
	"errors"
	"fmt"
	"time"

	baseModel "paycenter/pkg/model"
)

// Order 支付订单，只通过状态流转表示关闭，不做物理删除
type Order struct {
	baseModel.BaseModel
	OrderNo       string     `gorm:"uniqueIndex;size:64;not null" json:"orderNo"`
	Channel       string     `gorm:"size:16;not null" json:"channel"` // ALI, WECHAT
	Title         string     `gorm:"size:128" json:"title"`
	Amount        int64      `gorm:"not null" json:"amount"` // 分
	Status        string     `gorm:"size:16;index;not null" json:"status"`
	PayTime       *time.Time `json:"payTime,omitempty"`
	CloseTime     *time.Time `json:"closeTime,omitempty"`
	ExpiredTime   *time.Time `json:"expiredTime,omitempty"`
	NotifyURL     string     `gorm:"size:512" json:"notifyUrl,omitempty"`
	ClientAccount string     `gorm:"size:64" json:"clientAccount,omitempty"` // 推送账号
}

func (Order) TableName() string { return "pay_order" }

const (
	OrderStatusPending = "PENDING"
	OrderStatusSuccess = "SUCCESS"
	OrderStatusClose   = "CLOSE"

	ChannelAlipay = "ALI"
	ChannelWechat = "WECHAT"
)

var ErrInvariantViolated = errors.New("order invariant violated")

// CheckInvariant 校验状态与时间字段的配对关系:
// SUCCESS 当且仅当 PayTime 非空，CLOSE 当且仅当 CloseTime 非空，PENDING 时两者都为空
func (o *Order) CheckInvariant() error {
	paid := o.PayTime != nil
	closed := o.CloseTime != nil

	switch o.Status {
	case OrderStatusPending:
		if paid || closed {
			return fmt.Errorf("%w: pending order %d has pay or close time", ErrInvariantViolated, o.ID)
		}
	case OrderStatusSuccess:
		if !paid || closed {
			return fmt.Errorf("%w: success order %d needs pay time only", ErrInvariantViolated, o.ID)
		}
	case OrderStatusClose:
		if paid || !closed {
			return fmt.Errorf("%w: closed order %d needs close time only", ErrInvariantViolated, o.ID)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvariantViolated, o.Status)
	}
	return nil
}

// IsTerminal 订单是否已到终态
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusSuccess || o.Status == OrderStatusClose
}

// Clone 复制一份订单，用于持久化失败时还原
func (o *Order) Clone() *Order {
	c := *o
	if o.PayTime != nil {
		t := *o.PayTime
		c.PayTime = &t
	}
	if o.CloseTime != nil {
		t := *o.CloseTime
		c.CloseTime = &t
	}
	if o.ExpiredTime != nil {
		t := *o.ExpiredTime
		c.ExpiredTime = &t
	}
	return &c
}
