package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"paycenter/internal/domain/payment/model"
	"paycenter/internal/domain/payment/repository"
	"paycenter/internal/domain/payment/strategy"
	"paycenter/internal/pkg/notify"
	"paycenter/pkg/database"
	"paycenter/pkg/idgen"
	"paycenter/pkg/lock"
	"paycenter/pkg/logger"
	"paycenter/pkg/metrics"

	"go.uber.org/zap"
)

const (
	// DefaultLockLease 修复锁租期
	DefaultLockLease = 10 * time.Second
	// DefaultLockWait 等锁上限，超过即视为有其他请求在修复
	DefaultLockWait = 200 * time.Millisecond

	releaseTimeout = time.Second
)

// RepairLockKey 订单修复锁
func RepairLockKey(orderID int64) string {
	return "repair:pay:" + strconv.FormatInt(orderID, 10)
}

// RepairResult 修复结果，Skipped 表示订单正在被其他请求修复或已被修复，本次未执行
type RepairResult struct {
	RepairNo string             `json:"repairNo,omitempty"`
	OrderID  int64              `json:"orderId,string"`
	OrderNo  string             `json:"orderNo"`
	Action   model.RepairAction `json:"action"`
	Status   string             `json:"status"`
	Skipped  bool               `json:"skipped"`
}

type RepairConfig struct {
	LockLease time.Duration
	LockWait  time.Duration
}

// StrategyResolver 按渠道获取修复策略
type StrategyResolver interface {
	Resolve(channel string) (strategy.RepairStrategy, error)
}

type RepairService interface {
	// Repair 手动修复
	Repair(ctx context.Context, order *model.Order, action model.RepairAction) (*RepairResult, error)
	// RepairWithContext rc 可由回调预先填充网关状态
	RepairWithContext(ctx context.Context, order *model.Order, action model.RepairAction, rc *model.RepairContext) (*RepairResult, error)
}

type repairService struct {
	locker     lock.Locker
	strategies StrategyResolver
	orders     repository.OrderRepository
	records    repository.RecordRepository
	tx         database.Transactor
	dispatcher notify.Dispatcher
	metrics    *metrics.MetricsCollector
	cfg        RepairConfig
	log        *zap.Logger
	now        func() time.Time
}

func NewRepairService(
	locker lock.Locker,
	strategies StrategyResolver,
	orders repository.OrderRepository,
	records repository.RecordRepository,
	tx database.Transactor,
	dispatcher notify.Dispatcher,
	m *metrics.MetricsCollector,
	cfg RepairConfig,
) RepairService {
	if cfg.LockLease <= 0 {
		cfg.LockLease = DefaultLockLease
	}
	if cfg.LockWait < 0 || cfg.LockWait > DefaultLockWait {
		cfg.LockWait = DefaultLockWait
	}
	return &repairService{
		locker:     locker,
		strategies: strategies,
		orders:     orders,
		records:    records,
		tx:         tx,
		dispatcher: dispatcher,
		metrics:    m,
		cfg:        cfg,
		log:        logger.Named("repair"),
		now:        time.Now,
	}
}

func (s *repairService) Repair(ctx context.Context, order *model.Order, action model.RepairAction) (*RepairResult, error) {
	return s.RepairWithContext(ctx, order, action, &model.RepairContext{Source: model.SourceManual})
}

func (s *repairService) RepairWithContext(ctx context.Context, order *model.Order, action model.RepairAction, rc *model.RepairContext) (*RepairResult, error) {
	start := time.Now()
	if order == nil {
		return nil, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if rc == nil {
		rc = &model.RepairContext{Source: model.SourceManual}
	}
	log := logger.Ctx(ctx, s.log).With(
		zap.Int64("order_id", order.ID),
		zap.String("order_no", order.OrderNo),
		zap.String("channel", order.Channel),
		zap.String("action", string(action)),
		zap.String("source", string(rc.Source)),
	)

	// 1. 加分布式锁
	token, err := s.locker.Acquire(ctx, RepairLockKey(order.ID), s.cfg.LockLease, s.cfg.LockWait)
	if err != nil {
		s.observe(order, action, "failed", start)
		return nil, fmt.Errorf("acquire repair lock: %w", err)
	}
	if token == nil {
		log.Warn("Order is being repaired by another request, skipped")
		if s.metrics != nil {
			s.metrics.RecordLockContention(order.Channel)
		}
		s.observe(order, action, "skipped", start)
		return skippedResult(order, action, order.Status), nil
	}
	defer func() {
		// 调用方取消后仍要释放锁
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := s.locker.Release(rctx, token); err != nil {
			log.Warn("Release repair lock failed", zap.Error(err))
		}
	}()

	// 等锁期间上一个持有者可能已完成修复，以库中状态为准
	current, err := s.orders.GetByID(ctx, order.ID)
	if err != nil {
		s.observe(order, action, "failed", start)
		return nil, fmt.Errorf("reload order: %w", err)
	}
	if current.Status != order.Status {
		log.Info("Order changed since it was loaded, skipped",
			zap.String("loaded", order.Status),
			zap.String("current", current.Status),
		)
		s.observe(order, action, "skipped", start)
		return skippedResult(order, action, current.Status), nil
	}

	// 2. 获取渠道策略
	st, err := s.strategies.Resolve(order.Channel)
	if err != nil {
		log.Error("No repair strategy for channel", zap.Error(err))
		s.defect("strategy")
		s.observe(order, action, "failed", start)
		return nil, err
	}

	// 3. 前置处理，从网关获取状态
	if err := st.BeforeRepair(ctx, order, rc); err != nil {
		log.Warn("Before repair hook failed", zap.Error(err))
		s.observe(order, action, "failed", start)
		return nil, fmt.Errorf("before repair: %w", err)
	}

	// 4. 根据修复动作变更订单
	snapshot := order.Clone()
	now := s.now()
	remoteClosed := false

	switch action {
	case model.RepairSuccess:
		payTime := rc.FinishTime
		if payTime == nil {
			log.Warn("Gateway reported no finish time, using local time")
			payTime = &now
		}
		order.Status = model.OrderStatusSuccess
		order.PayTime = payTime
		order.CloseTime = nil
	case model.RepairCloseLocal:
		order.Status = model.OrderStatusClose
		order.CloseTime = &now
		order.PayTime = nil
	case model.RepairCloseGateway:
		if err := st.CloseRemote(ctx, order); err != nil {
			log.Warn("Gateway close failed, order left unchanged", zap.Error(err))
			s.observe(order, action, "failed", start)
			return nil, fmt.Errorf("close remote: %w", err)
		}
		remoteClosed = true
		order.Status = model.OrderStatusClose
		order.CloseTime = &now
		order.PayTime = nil
	default:
		log.Error("Unreachable repair action")
		s.defect("action")
		s.observe(order, action, "failed", start)
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	record := &model.RepairRecord{
		ID:           idgen.NextID(),
		RepairNo:     idgen.NextNo("R"),
		OrderID:      order.ID,
		OrderNo:      order.OrderNo,
		Channel:      order.Channel,
		Action:       action,
		BeforeStatus: snapshot.Status,
		AfterStatus:  order.Status,
		Amount:       order.Amount,
		Source:       rc.Source,
		Gateway:      rc.Snapshot(),
	}

	// 状态变更开始后不响应调用方取消，订单与修复记录在同一事务
	err = s.tx.Exec(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.orders.UpdateByID(ctx, order, snapshot.Status); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if err := s.records.Append(ctx, record); err != nil {
			return fmt.Errorf("append repair record: %w", err)
		}
		return nil
	})
	if err != nil {
		*order = *snapshot
		if !remoteClosed && errors.Is(err, repository.ErrStaleOrder) {
			log.Warn("Order changed outside the repair lock, skipped", zap.Error(err))
			s.observe(order, action, "skipped", start)
			return skippedResult(order, action, order.Status), nil
		}
		s.observe(order, action, "failed", start)
		if remoteClosed {
			log.Error("Gateway closed but local state not persisted",
				zap.Bool("manual_intervention", true),
				zap.Error(err),
			)
			if s.metrics != nil {
				s.metrics.RecordInconsistency(order.Channel)
			}
			return nil, &InconsistencyError{
				OrderID: order.ID,
				OrderNo: order.OrderNo,
				Channel: order.Channel,
				Action:  action,
				Err:     err,
			}
		}
		log.Error("Persist repair failed", zap.Error(err))
		return nil, fmt.Errorf("persist repair: %w", err)
	}

	// 5. 通知客户端，失败不回滚
	s.notifyClient(context.WithoutCancel(ctx), order, log)

	log.Info("Order repaired",
		zap.String("repair_no", record.RepairNo),
		zap.String("before", snapshot.Status),
		zap.String("after", order.Status),
	)
	s.observe(order, action, "success", start)

	return &RepairResult{
		RepairNo: record.RepairNo,
		OrderID:  order.ID,
		OrderNo:  order.OrderNo,
		Action:   action,
		Status:   order.Status,
	}, nil
}

// skippedResult 未执行修复的结果，status 为已知的当前状态
func skippedResult(order *model.Order, action model.RepairAction, status string) *RepairResult {
	return &RepairResult{OrderID: order.ID, OrderNo: order.OrderNo, Action: action, Status: status, Skipped: true}
}

func (s *repairService) notifyClient(ctx context.Context, order *model.Order, log *zap.Logger) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Enqueue(ctx, NewClientNotice(order)); err != nil {
		log.Warn("Enqueue client notice failed", zap.Error(err))
	}
}

func (s *repairService) observe(order *model.Order, action model.RepairAction, result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordRepair(order.Channel, string(action), result, time.Since(start))
	}
}

func (s *repairService) defect(kind string) {
	if s.metrics != nil {
		s.metrics.RecordDefect(kind)
	}
}

// NewClientNotice 由订单生成客户端通知
func NewClientNotice(order *model.Order) *notify.ClientNotice {
	return &notify.ClientNotice{
		NoticeNo:      idgen.NextNo("N"),
		OrderID:       order.ID,
		OrderNo:       order.OrderNo,
		Channel:       order.Channel,
		Title:         order.Title,
		Amount:        order.Amount,
		Status:        order.Status,
		PayTime:       notify.FormatTime(order.PayTime),
		CloseTime:     notify.FormatTime(order.CloseTime),
		NotifyURL:     order.NotifyURL,
		ClientAccount: order.ClientAccount,
	}
}
