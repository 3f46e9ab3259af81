package service

import (
	"errors"
	"fmt"

	"paycenter/internal/domain/payment/model"
	"paycenter/internal/domain/payment/strategy"
)

var (
	// ErrUnknownAction 修复动作不在枚举内，属于程序缺陷
	ErrUnknownAction = errors.New("unknown repair action")
	// ErrStrategyNotFound 渠道未注册修复策略
	ErrStrategyNotFound = strategy.ErrStrategyNotFound
	// ErrGatewayRejected 网关拒绝关闭，本地订单未变更，可以安全重试
	ErrGatewayRejected = strategy.ErrGatewayRejected
	// ErrInvalidOrder 订单参数未通过渠道校验
	ErrInvalidOrder = errors.New("order rejected by channel validation")
	// ErrAmountMismatch 网关金额与本地订单不一致
	ErrAmountMismatch = errors.New("gateway amount does not match order")
)

// InconsistencyError 网关已关闭但本地状态未能保存，需要人工处理
type InconsistencyError struct {
	OrderID int64
	OrderNo string
	Channel string
	Action  model.RepairAction
	Err     error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("order %s (%d) closed at %s gateway but local state not persisted: %v",
		e.OrderNo, e.OrderID, e.Channel, e.Err)
}

func (e *InconsistencyError) Unwrap() error { return e.Err }
