package service

import (
	"context"
	"errors"
	"fmt"

	"paycenter/internal/domain/payment/model"
	"paycenter/internal/domain/payment/repository"
	"paycenter/pkg/logger"

	"go.uber.org/zap"
)

// ErrRepairSkipped 订单正在被修复，回调返回失败让网关稍后重发
var ErrRepairSkipped = errors.New("order repair in progress")

// CallbackService 处理网关异步通知
type CallbackService interface {
	HandleNotify(ctx context.Context, channel string, payload any) error
}

type callbackService struct {
	strategies StrategyResolver
	orders     repository.OrderRepository
	repair     RepairService
	log        *zap.Logger
}

func NewCallbackService(strategies StrategyResolver, orders repository.OrderRepository, repair RepairService) CallbackService {
	return &callbackService{
		strategies: strategies,
		orders:     orders,
		repair:     repair,
		log:        logger.Named("callback"),
	}
}

func (s *callbackService) HandleNotify(ctx context.Context, channel string, payload any) error {
	st, err := s.strategies.Resolve(channel)
	if err != nil {
		return err
	}

	// 1. 验签并解析
	trade, err := st.DecodeNotify(ctx, payload)
	if err != nil {
		s.log.Warn("Invalid gateway notification", zap.String("channel", channel), zap.Error(err))
		return err
	}

	// 2. 查询本地订单
	order, err := s.orders.GetByOrderNo(ctx, trade.OrderNo)
	if err != nil {
		return fmt.Errorf("load order %s: %w", trade.OrderNo, err)
	}

	log := logger.Ctx(ctx, s.log).With(
		zap.String("order_no", order.OrderNo),
		zap.String("channel", channel),
		zap.String("gateway_status", trade.RawStatus),
	)

	if trade.Amount != 0 && trade.Amount != order.Amount {
		log.Error("Gateway amount mismatch",
			zap.Int64("order_amount", order.Amount),
			zap.Int64("gateway_amount", trade.Amount),
		)
		return fmt.Errorf("%w: order %d, gateway %d", ErrAmountMismatch, order.Amount, trade.Amount)
	}

	// 3. 判断是否需要修复，已一致的重复通知直接确认
	action, ok := trade.RepairAction(order)
	if !ok {
		log.Info("Notification needs no repair", zap.String("status", order.Status))
		return nil
	}

	rc := &model.RepairContext{Source: model.SourceCallback}
	trade.Apply(rc)

	result, err := s.repair.RepairWithContext(ctx, order, action, rc)
	if err != nil {
		return err
	}
	if result.Skipped {
		return ErrRepairSkipped
	}
	return nil
}
