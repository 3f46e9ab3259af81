package model

import (
	"fmt"
	"strings"
	"time"

	"paycenter/pkg/idgen"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RepairAction 修复动作
type RepairAction string

const (
	RepairSuccess      RepairAction = "SUCCESS"       // 标记为已支付
	RepairCloseLocal   RepairAction = "CLOSE_LOCAL"   // 仅关闭本地订单
	RepairCloseGateway RepairAction = "CLOSE_GATEWAY" // 先关闭网关订单再关闭本地
)

// Code 线上传输使用的小写编码
func (a RepairAction) Code() string {
	return strings.ToLower(string(a))
}

// ParseRepairAction 解析 success / close_local / close_gateway
func ParseRepairAction(code string) (RepairAction, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "success":
		return RepairSuccess, nil
	case "close_local":
		return RepairCloseLocal, nil
	case "close_gateway":
		return RepairCloseGateway, nil
	default:
		return "", fmt.Errorf("unknown repair action %q", code)
	}
}

// RepairSource 触发修复的来源
type RepairSource string

const (
	SourceManual   RepairSource = "manual"
	SourceCallback RepairSource = "callback"
	SourceSync     RepairSource = "sync"
)

// RepairRecord 修复记录，只追加不修改
type RepairRecord struct {
	ID           int64             `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	RepairNo     string            `gorm:"uniqueIndex;size:32;not null" json:"repairNo"`
	OrderID      int64             `gorm:"index;not null" json:"orderId,string"`
	OrderNo      string            `gorm:"size:64;not null" json:"orderNo"`
	Channel      string            `gorm:"size:16;not null" json:"channel"`
	Action       RepairAction      `gorm:"size:16;not null" json:"action"`
	BeforeStatus string            `gorm:"size:16" json:"beforeStatus"`
	AfterStatus  string            `gorm:"size:16" json:"afterStatus"`
	Amount       int64             `json:"amount"`
	Source       RepairSource      `gorm:"size:16" json:"source"`
	Gateway      datatypes.JSONMap `json:"gateway,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

func (RepairRecord) TableName() string { return "pay_repair_record" }

// BeforeCreate 生成雪花 ID 与修复单号
func (r *RepairRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == 0 {
		r.ID = idgen.NextID()
	}
	if r.RepairNo == "" {
		r.RepairNo = idgen.NextNo("R")
	}
	return nil
}

// RepairContext 前置处理从网关取回的状态，显式传递给修复流程
type RepairContext struct {
	Source         RepairSource
	FinishTime     *time.Time
	GatewayStatus  string
	GatewayTradeNo string
	Raw            map[string]any
}

// Snapshot 记录到修复记录中的网关快照
func (rc *RepairContext) Snapshot() datatypes.JSONMap {
	if rc == nil {
		return nil
	}
	m := datatypes.JSONMap{}
	if rc.GatewayStatus != "" {
		m["status"] = rc.GatewayStatus
	}
	if rc.GatewayTradeNo != "" {
		m["tradeNo"] = rc.GatewayTradeNo
	}
	if rc.FinishTime != nil {
		m["finishTime"] = rc.FinishTime.Format(time.RFC3339)
	}
	for k, v := range rc.Raw {
		m[k] = v
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// TradeState 网关交易状态归一化结果
type TradeState string

const (
	TradeWaiting  TradeState = "WAITING"   // 待支付
	TradeSuccess  TradeState = "SUCCESS"   // 已支付
	TradeClosed   TradeState = "CLOSED"    // 已关闭
	TradeNotExist TradeState = "NOT_EXIST" // 网关无此交易
)

// GatewayTrade 网关查询或回调得到的交易
type GatewayTrade struct {
	OrderNo    string
	TradeNo    string
	State      TradeState
	RawStatus  string
	Amount     int64
	FinishTime *time.Time
}

// Apply 把网关交易写入修复上下文
func (g *GatewayTrade) Apply(rc *RepairContext) {
	if g == nil || rc == nil {
		return
	}
	rc.GatewayStatus = g.RawStatus
	rc.GatewayTradeNo = g.TradeNo
	if g.FinishTime != nil {
		rc.FinishTime = g.FinishTime
	}
}

// RepairAction 根据网关状态决定修复动作，待支付时返回 false
func (g *GatewayTrade) RepairAction(order *Order) (RepairAction, bool) {
	switch g.State {
	case TradeSuccess:
		if order.Status != OrderStatusSuccess {
			return RepairSuccess, true
		}
	case TradeClosed, TradeNotExist:
		if order.Status == OrderStatusPending {
			return RepairCloseLocal, true
		}
	case TradeWaiting:
		// 本地已过期而网关仍待支付，关闭网关订单
		if order.Status == OrderStatusPending && order.ExpiredTime != nil && time.Now().After(*order.ExpiredTime) {
			return RepairCloseGateway, true
		}
	}
	return "", false
}
