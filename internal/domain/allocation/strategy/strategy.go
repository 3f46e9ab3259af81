package strategy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"paycenter/internal/domain/allocation/model"
	"paycenter/pkg/metrics"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrStrategyNotFound 渠道未注册分账接收方策略
	ErrStrategyNotFound = errors.New("receiver strategy not registered")
	// ErrInvalidReceiver 接收方参数未通过渠道校验
	ErrInvalidReceiver = errors.New("receiver rejected by channel validation")
)

var validate = validator.New()

// ReceiverStrategy 渠道分账接收方策略，与订单修复策略平行
type ReceiverStrategy interface {
	Channel() string

	// SupportedTypes 渠道支持的接收方类型
	SupportedTypes() []model.ReceiverType

	// Validate 校验接收方参数，无副作用
	Validate(r *model.AllocReceiver) error

	// Bind 添加到网关，已存在视为成功
	Bind(ctx context.Context, r *model.AllocReceiver) error

	// Unbind 从网关删除，不存在视为成功
	Unbind(ctx context.Context, r *model.AllocReceiver) error
}

// Registry 按渠道编码查找策略
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]ReceiverStrategy
}

func NewRegistry(strategies ...ReceiverStrategy) *Registry {
	r := &Registry{strategies: make(map[string]ReceiverStrategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s ReceiverStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Channel()] = s
}

func (r *Registry) Resolve(channel string) (ReceiverStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStrategyNotFound, channel)
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

// validateCommon 结构体标签校验与接收方类型校验
func validateCommon(r *model.AllocReceiver, channel string, supported []model.ReceiverType) error {
	if r == nil {
		return fmt.Errorf("%w: nil receiver", ErrInvalidReceiver)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReceiver, err)
	}
	if r.Channel != channel {
		return fmt.Errorf("%w: channel %s", ErrInvalidReceiver, r.Channel)
	}
	if !slices.Contains(supported, r.ReceiverType) {
		return fmt.Errorf("%w: %s does not support receiver type %s", ErrInvalidReceiver, channel, r.ReceiverType)
	}
	return nil
}

func gatewayCall(ctx context.Context, m *metrics.MetricsCollector, timeout time.Duration, channel, op string, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if m != nil {
		done := m.TrackGateway(channel, op)
		err := fn(ctx)
		done(err)
		return err
	}
	return fn(ctx)
}
