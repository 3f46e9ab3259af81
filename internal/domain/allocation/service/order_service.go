package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paycenter/internal/domain/allocation/model"
	"paycenter/internal/domain/allocation/repository"
	"paycenter/pkg/database"
	"paycenter/pkg/logger"

	"go.uber.org/zap"
)

// ErrDetailNotFound 分账订单中没有该接收方
var ErrDetailNotFound = errors.New("allocation detail not found")

// DetailOutcome 网关返回的单个接收方分账结果
type DetailOutcome struct {
	ReceiverNo string             `json:"receiver_no" binding:"required"`
	Result     model.DetailResult `json:"result" binding:"required,oneof=pending success fail ignore"`
	ErrorCode  string             `json:"error_code"`
	ErrorMsg   string             `json:"error_msg"`
	FinishTime *time.Time         `json:"finish_time"`
}

type AllocOrderService interface {
	Get(ctx context.Context, allocNo string) (*model.AllocOrder, error)
	// ApplyResults 写入明细结果并重新汇总订单结果
	ApplyResults(ctx context.Context, allocNo string, outcomes []DetailOutcome) (*model.AllocOrder, error)
}

type allocOrderService struct {
	repo repository.AllocOrderRepository
	tx   database.Transactor
	log  *zap.Logger
	now  func() time.Time
}

func NewAllocOrderService(repo repository.AllocOrderRepository, tx database.Transactor) AllocOrderService {
	return &allocOrderService{
		repo: repo,
		tx:   tx,
		log:  logger.Named("alloc_order"),
		now:  time.Now,
	}
}

func (s *allocOrderService) Get(ctx context.Context, allocNo string) (*model.AllocOrder, error) {
	return s.repo.GetByAllocNo(ctx, allocNo)
}

func (s *allocOrderService) ApplyResults(ctx context.Context, allocNo string, outcomes []DetailOutcome) (*model.AllocOrder, error) {
	var order *model.AllocOrder
	err := s.tx.Exec(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetByAllocNo(ctx, allocNo)
		if err != nil {
			return err
		}

		byReceiver := make(map[string]*model.AllocDetail, len(order.Details))
		for _, d := range order.Details {
			byReceiver[d.ReceiverNo] = d
		}

		now := s.now()
		for _, o := range outcomes {
			d, ok := byReceiver[o.ReceiverNo]
			if !ok {
				return fmt.Errorf("%w: %s", ErrDetailNotFound, o.ReceiverNo)
			}
			d.Result = o.Result
			d.ErrorCode = o.ErrorCode
			d.ErrorMsg = o.ErrorMsg
			if o.Result != model.DetailPending {
				d.FinishTime = o.FinishTime
				if d.FinishTime == nil {
					d.FinishTime = &now
				}
			}
		}

		order.Refresh(now)
		return s.repo.SaveResult(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Allocation result updated",
		zap.String("alloc_no", allocNo),
		zap.String("result", string(order.Result)),
	)
	return order, nil
}
