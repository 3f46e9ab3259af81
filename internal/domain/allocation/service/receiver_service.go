package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paycenter/internal/domain/allocation/model"
	"paycenter/internal/domain/allocation/repository"
	"paycenter/internal/domain/allocation/strategy"
	"paycenter/pkg/idgen"
	"paycenter/pkg/lock"
	"paycenter/pkg/logger"

	"go.uber.org/zap"
)

const (
	receiverLockLease = 10 * time.Second
	receiverLockWait  = 200 * time.Millisecond
)

var (
	// ErrReceiverBusy 接收方正在被其他请求绑定或解绑
	ErrReceiverBusy = errors.New("receiver is being updated")
	// ErrReceiverBound 已绑定的接收方需先解绑才能删除
	ErrReceiverBound = errors.New("receiver is still bound")
)

func receiverLockKey(receiverNo string) string {
	return "alloc:receiver:" + receiverNo
}

type AddReceiverInput struct {
	Channel         string             `json:"channel" binding:"required"`
	ReceiverType    model.ReceiverType `json:"receiver_type" binding:"required"`
	ReceiverAccount string             `json:"receiver_account" binding:"required"`
	ReceiverName    string             `json:"receiver_name"`
	RelationType    string             `json:"relation_type"`
	RelationName    string             `json:"relation_name"`
}

type ReceiverService interface {
	Add(ctx context.Context, input *AddReceiverInput) (*model.AllocReceiver, error)
	Bind(ctx context.Context, receiverNo string) (*model.AllocReceiver, error)
	Unbind(ctx context.Context, receiverNo string) (*model.AllocReceiver, error)
	Remove(ctx context.Context, receiverNo string) error
	Get(ctx context.Context, receiverNo string) (*model.AllocReceiver, error)
	List(ctx context.Context, channel string, page, pageSize int) ([]*model.AllocReceiver, int64, error)
	// SupportedTypes 各渠道支持的接收方类型
	SupportedTypes() map[string][]model.ReceiverType
}

type receiverService struct {
	strategies *strategy.Registry
	repo       repository.ReceiverRepository
	locker     lock.Locker
	log        *zap.Logger
}

func NewReceiverService(strategies *strategy.Registry, repo repository.ReceiverRepository, locker lock.Locker) ReceiverService {
	return &receiverService{
		strategies: strategies,
		repo:       repo,
		locker:     locker,
		log:        logger.Named("alloc_receiver"),
	}
}

func (s *receiverService) Add(ctx context.Context, input *AddReceiverInput) (*model.AllocReceiver, error) {
	st, err := s.strategies.Resolve(input.Channel)
	if err != nil {
		return nil, err
	}

	receiver := &model.AllocReceiver{
		ReceiverNo:      idgen.NextNo("AR"),
		Channel:         input.Channel,
		ReceiverType:    input.ReceiverType,
		ReceiverAccount: input.ReceiverAccount,
		ReceiverName:    input.ReceiverName,
		RelationType:    input.RelationType,
		RelationName:    input.RelationName,
	}
	if err := st.Validate(receiver); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, receiver); err != nil {
		return nil, err
	}
	return receiver, nil
}

// Bind 添加到网关，已绑定时直接返回
func (s *receiverService) Bind(ctx context.Context, receiverNo string) (*model.AllocReceiver, error) {
	return s.withLock(ctx, receiverNo, func(r *model.AllocReceiver, st strategy.ReceiverStrategy) error {
		if r.Bound {
			return nil
		}
		if err := st.Bind(ctx, r); err != nil {
			return err
		}
		r.Bound = true
		return nil
	})
}

// Unbind 从网关删除，未绑定时直接返回
func (s *receiverService) Unbind(ctx context.Context, receiverNo string) (*model.AllocReceiver, error) {
	return s.withLock(ctx, receiverNo, func(r *model.AllocReceiver, st strategy.ReceiverStrategy) error {
		if !r.Bound {
			return nil
		}
		if err := st.Unbind(ctx, r); err != nil {
			return err
		}
		r.Bound = false
		return nil
	})
}

func (s *receiverService) withLock(ctx context.Context, receiverNo string, fn func(*model.AllocReceiver, strategy.ReceiverStrategy) error) (*model.AllocReceiver, error) {
	token, err := s.locker.Acquire(ctx, receiverLockKey(receiverNo), receiverLockLease, receiverLockWait)
	if err != nil {
		return nil, fmt.Errorf("acquire receiver lock: %w", err)
	}
	if token == nil {
		return nil, ErrReceiverBusy
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := s.locker.Release(rctx, token); err != nil {
			s.log.Warn("Release receiver lock failed", zap.String("receiver_no", receiverNo), zap.Error(err))
		}
	}()

	r, err := s.repo.GetByNo(ctx, receiverNo)
	if err != nil {
		return nil, err
	}
	st, err := s.strategies.Resolve(r.Channel)
	if err != nil {
		return nil, err
	}

	log := logger.Ctx(ctx, s.log)
	before := r.Bound
	if err := fn(r, st); err != nil {
		log.Warn("Receiver gateway call failed",
			zap.String("receiver_no", receiverNo),
			zap.String("channel", r.Channel),
			zap.Error(err),
		)
		return nil, err
	}
	if r.Bound == before {
		return r, nil
	}

	if err := s.repo.Update(context.WithoutCancel(ctx), r); err != nil {
		log.Error("Receiver state changed at gateway but not persisted",
			zap.String("receiver_no", receiverNo),
			zap.Bool("bound", r.Bound),
			zap.Error(err),
		)
		return nil, err
	}
	log.Info("Receiver updated", zap.String("receiver_no", receiverNo), zap.Bool("bound", r.Bound))
	return r, nil
}

func (s *receiverService) Remove(ctx context.Context, receiverNo string) error {
	r, err := s.repo.GetByNo(ctx, receiverNo)
	if err != nil {
		return err
	}
	if r.Bound {
		return ErrReceiverBound
	}
	return s.repo.Delete(ctx, r.ID)
}

func (s *receiverService) Get(ctx context.Context, receiverNo string) (*model.AllocReceiver, error) {
	return s.repo.GetByNo(ctx, receiverNo)
}

func (s *receiverService) List(ctx context.Context, channel string, page, pageSize int) ([]*model.AllocReceiver, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.List(ctx, channel, (page-1)*pageSize, pageSize)
}

func (s *receiverService) SupportedTypes() map[string][]model.ReceiverType {
	out := make(map[string][]model.ReceiverType)
	for _, channel := range s.strategies.Channels() {
		if st, err := s.strategies.Resolve(channel); err == nil {
			out[channel] = st.SupportedTypes()
		}
	}
	return out
}
