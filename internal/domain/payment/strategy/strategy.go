package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"paycenter/internal/domain/payment/model"
	"paycenter/pkg/metrics"
)

var (
	// ErrStrategyNotFound 渠道未注册修复策略，属于部署缺陷
	ErrStrategyNotFound = errors.New("repair strategy not registered")
	// ErrGatewayRejected 网关拒绝操作，例如关闭已支付的订单
	ErrGatewayRejected = errors.New("gateway rejected")
	// ErrInvalidNotify 回调参数类型或签名无效
	ErrInvalidNotify = errors.New("invalid gateway notification")
)

// RepairStrategy 渠道修复策略
type RepairStrategy interface {
	Channel() string

	// Validate 校验订单参数是否符合渠道要求，无副作用
	Validate(order *model.Order) bool

	// BeforeRepair 修复前从网关获取状态写入 rc，不修改本地持久化数据
	BeforeRepair(ctx context.Context, order *model.Order, rc *model.RepairContext) error

	// CloseRemote 关闭网关订单，幂等: 网关已关闭视为成功
	CloseRemote(ctx context.Context, order *model.Order) error

	// Query 查询网关交易
	Query(ctx context.Context, order *model.Order) (*model.GatewayTrade, error)

	// DecodeNotify 验签并解析网关回调
	DecodeNotify(ctx context.Context, payload any) (*model.GatewayTrade, error)
}

// Registry 按渠道编码查找策略
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]RepairStrategy
}

func NewRegistry(strategies ...RepairStrategy) *Registry {
	r := &Registry{strategies: make(map[string]RepairStrategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register 注册策略，同一渠道后注册的覆盖先注册的
func (r *Registry) Register(s RepairStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Channel()] = s
}

func (r *Registry) Resolve(channel string) (RepairStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[channel]
	if !ok {
		return nil, fmt.Errorf("%w: channel %q", ErrStrategyNotFound, channel)
	}
	return s, nil
}

func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]string, 0, len(r.strategies))
	for c := range r.strategies {
		channels = append(channels, c)
	}
	sort.Strings(channels)
	return channels
}

// gatewayCall 带超时和耗时统计的网关调用
func gatewayCall(ctx context.Context, m *metrics.MetricsCollector, timeout time.Duration, channel, op string, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var done func(error)
	if m != nil {
		done = m.TrackGateway(channel, op)
	}
	err := fn(ctx)
	if done != nil {
		done(err)
	}
	return err
}

// primed 回调已带入网关状态时不再重复查询
func primed(rc *model.RepairContext) bool {
	return rc != nil && rc.GatewayStatus != ""
}

func validOrder(order *model.Order, channel string) bool {
	return order != nil &&
		order.Channel == channel &&
		order.OrderNo != "" &&
		len(order.OrderNo) <= 64 &&
		order.Amount > 0
}
