package service

import (
	"context"
	"encoding/json"
	"time"

	"paycenter/internal/domain/payment/model"
	"paycenter/internal/domain/payment/repository"
	"paycenter/internal/pkg/uploader"
	"paycenter/pkg/logger"
	"paycenter/pkg/metrics"

	"go.uber.org/zap"
)

// 对账结论
const (
	DecisionConsistent = "consistent"
	DecisionWaiting    = "waiting"
	DecisionRepaired   = "repaired"
	DecisionSkipped    = "skipped"
	DecisionFailed     = "failed"
)

// SyncResult 单笔订单对账结果
type SyncResult struct {
	OrderNo     string             `json:"orderNo"`
	Decision    string             `json:"decision"`
	GatewayStat string             `json:"gatewayStatus,omitempty"`
	Action      model.RepairAction `json:"action,omitempty"`
	RepairNo    string             `json:"repairNo,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// SweepReport 一次批量对账的报告
type SweepReport struct {
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Total      int           `json:"total"`
	Repaired   int           `json:"repaired"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Items      []*SyncResult `json:"items"`
	ReportURL  string        `json:"reportUrl,omitempty"`
}

type SyncConfig struct {
	// PendingAge 只对账创建超过该时长的待支付订单
	PendingAge time.Duration
	BatchSize  int
}

// SyncService 主动查询网关对账，也用于补偿因锁竞争被跳过的修复
type SyncService interface {
	SyncOrder(ctx context.Context, orderNo string) (*SyncResult, error)
	Sweep(ctx context.Context) (*SweepReport, error)
}

type syncService struct {
	strategies StrategyResolver
	orders     repository.OrderRepository
	repair     RepairService
	reports    uploader.ReportStore
	metrics    *metrics.MetricsCollector
	cfg        SyncConfig
	log        *zap.Logger
}

func NewSyncService(
	strategies StrategyResolver,
	orders repository.OrderRepository,
	repair RepairService,
	reports uploader.ReportStore,
	m *metrics.MetricsCollector,
	cfg SyncConfig,
) SyncService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &syncService{
		strategies: strategies,
		orders:     orders,
		repair:     repair,
		reports:    reports,
		metrics:    m,
		cfg:        cfg,
		log:        logger.Named("sync"),
	}
}

// SyncOrder 对账单笔订单，订单不存在或策略缺失返回错误
func (s *syncService) SyncOrder(ctx context.Context, orderNo string) (*SyncResult, error) {
	order, err := s.orders.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if _, err := s.strategies.Resolve(order.Channel); err != nil {
		return nil, err
	}
	return s.syncOne(ctx, order), nil
}

func (s *syncService) syncOne(ctx context.Context, order *model.Order) *SyncResult {
	result := &SyncResult{OrderNo: order.OrderNo}
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordSyncDecision(result.Decision)
		}
	}()

	st, err := s.strategies.Resolve(order.Channel)
	if err != nil {
		result.Decision = DecisionFailed
		result.Error = err.Error()
		return result
	}

	trade, err := st.Query(ctx, order)
	if err != nil {
		s.log.Warn("Gateway query failed", zap.String("order_no", order.OrderNo), zap.Error(err))
		result.Decision = DecisionFailed
		result.Error = err.Error()
		return result
	}
	result.GatewayStat = trade.RawStatus

	action, ok := trade.RepairAction(order)
	if !ok {
		if trade.State == model.TradeWaiting {
			result.Decision = DecisionWaiting
		} else {
			result.Decision = DecisionConsistent
		}
		return result
	}
	result.Action = action

	rc := &model.RepairContext{Source: model.SourceSync}
	trade.Apply(rc)

	repaired, err := s.repair.RepairWithContext(ctx, order, action, rc)
	switch {
	case err != nil:
		result.Decision = DecisionFailed
		result.Error = err.Error()
	case repaired.Skipped:
		result.Decision = DecisionSkipped
	default:
		result.Decision = DecisionRepaired
		result.RepairNo = repaired.RepairNo
	}
	return result
}

// Sweep 批量对账超时未支付的订单并归档报告
func (s *syncService) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{StartedAt: time.Now()}

	orders, err := s.orders.ListPending(ctx, report.StartedAt.Add(-s.cfg.PendingAge), s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			break
		}
		item := s.syncOne(ctx, order)
		report.Items = append(report.Items, item)
		switch item.Decision {
		case DecisionRepaired:
			report.Repaired++
		case DecisionSkipped:
			report.Skipped++
		case DecisionFailed:
			report.Failed++
		}
	}
	report.Total = len(report.Items)
	report.FinishedAt = time.Now()

	s.log.Info("Reconciliation sweep finished",
		zap.Int("total", report.Total),
		zap.Int("repaired", report.Repaired),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)

	if s.reports != nil && report.Total > 0 {
		data, err := json.Marshal(report)
		if err == nil {
			url, err := s.reports.PutReport(ctx, "sweep", data)
			if err != nil {
				s.log.Warn("Archive sweep report failed", zap.Error(err))
			} else {
				report.ReportURL = url
			}
		}
	}

	return report, ctx.Err()
}
