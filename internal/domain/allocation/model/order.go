package model

import (
	"time"

	baseModel "paycenter/pkg/model"
)

// DetailResult 分账明细处理结果
type DetailResult string

const (
	DetailPending DetailResult = "pending"
	DetailSuccess DetailResult = "success"
	DetailFail    DetailResult = "fail"
	DetailIgnore  DetailResult = "ignore" // 金额为零等无需分账
)

// OrderResult 分账订单处理结果
type OrderResult string

const (
	OrderAllPending  OrderResult = "all_pending"
	OrderAllSuccess  OrderResult = "all_success"
	OrderPartSuccess OrderResult = "part_success"
	OrderAllFailed   OrderResult = "all_failed"
)

// AllocOrder 分账订单
type AllocOrder struct {
	baseModel.BaseModel
	AllocNo    string         `gorm:"uniqueIndex;size:32;not null" json:"allocNo"`
	OrderNo    string         `gorm:"size:64;index;not null" json:"orderNo"`
	Channel    string         `gorm:"size:16;not null" json:"channel"`
	Amount     int64          `json:"amount"`
	Result     OrderResult    `gorm:"size:16" json:"result"`
	FinishTime *time.Time     `json:"finishTime,omitempty"`
	Details    []*AllocDetail `gorm:"foreignKey:AllocOrderID" json:"details,omitempty"`
}

func (AllocOrder) TableName() string { return "pay_alloc_order" }

// AllocDetail 分账明细
type AllocDetail struct {
	baseModel.BaseModel
	AllocOrderID    int64        `gorm:"index;not null" json:"allocOrderId,string"`
	ReceiverNo      string       `gorm:"size:32;not null" json:"receiverNo"`
	ReceiverType    ReceiverType `gorm:"size:16" json:"receiverType"`
	ReceiverAccount string       `gorm:"size:64" json:"receiverAccount"`
	Amount          int64        `json:"amount"`
	Result          DetailResult `gorm:"size:16;not null" json:"result"`
	ErrorCode       string       `gorm:"size:64" json:"errorCode,omitempty"`
	ErrorMsg        string       `gorm:"size:256" json:"errorMsg,omitempty"`
	FinishTime      *time.Time   `json:"finishTime,omitempty"`
}

func (AllocDetail) TableName() string { return "pay_alloc_detail" }

// ResolveOrderResult 由明细结果汇总订单结果，忽略的明细不参与汇总;
// 有明细仍在处理中时为 all_pending，没有需要分账的明细视为全部成功
func ResolveOrderResult(details []*AllocDetail) OrderResult {
	var success, fail, pending int
	for _, d := range details {
		switch d.Result {
		case DetailSuccess:
			success++
		case DetailFail:
			fail++
		case DetailIgnore:
		default:
			pending++
		}
	}

	switch {
	case pending > 0:
		return OrderAllPending
	case fail == 0:
		return OrderAllSuccess
	case success == 0:
		return OrderAllFailed
	default:
		return OrderPartSuccess
	}
}

// Refresh 重新汇总结果，全部明细结束时记录完成时间
func (o *AllocOrder) Refresh(now time.Time) {
	o.Result = ResolveOrderResult(o.Details)
	if o.Result != OrderAllPending && o.FinishTime == nil {
		o.FinishTime = &now
	}
}
