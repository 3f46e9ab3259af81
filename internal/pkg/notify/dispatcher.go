// Package notify delivers terminal order outcomes to merchant clients.
//
// Delivery is at least once; receivers deduplicate by noticeNo.
package notify

import (
	"context"
	"errors"
	"fmt"

	"paycenter/internal/pkg/worker"
	"paycenter/pkg/logger"
	"paycenter/pkg/metrics"

	"go.uber.org/zap"
)

// Dispatcher 异步投递通知，Enqueue 只负责入队
type Dispatcher interface {
	Enqueue(ctx context.Context, notice *ClientNotice) error
}

// Sender 通知的一种投递方式
type Sender interface {
	Send(ctx context.Context, notice *ClientNotice) error
}

// MultiSender 依次调用所有 Sender，任一失败则整体失败并在重试时重新投递
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, notice *ClientNotice) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PoolDispatcher 进程内工作池投递
type PoolDispatcher struct {
	pool    *worker.WorkerPool[*ClientNotice]
	signer  Signer
	metrics *metrics.MetricsCollector
	log     *zap.Logger
}

func NewPoolDispatcher(sender Sender, signer Signer, m *metrics.MetricsCollector, opts worker.Options) *PoolDispatcher {
	d := &PoolDispatcher{
		signer:  signer,
		metrics: m,
		log:     logger.Named("notify"),
	}
	d.pool = worker.NewWorkerPool("notify", func(ctx context.Context, n *ClientNotice) error {
		err := sender.Send(ctx, n)
		if err != nil {
			d.record("retry")
		} else {
			d.record("delivered")
		}
		d.setDepth()
		return err
	}, opts)
	d.pool.OnDeadLetter = func(n *ClientNotice, err error) {
		d.record("dropped")
		d.log.Error("Client notice dropped",
			zap.String("notice_no", n.NoticeNo),
			zap.String("order_no", n.OrderNo),
			zap.Error(err),
		)
	}
	return d
}

func (d *PoolDispatcher) Start(ctx context.Context) { d.pool.Start(ctx) }

func (d *PoolDispatcher) Stop() { d.pool.Stop() }

// Enqueue 签名后入队
func (d *PoolDispatcher) Enqueue(ctx context.Context, notice *ClientNotice) error {
	d.signer.Sign(notice)
	if err := d.pool.AddTask(notice); err != nil {
		d.record("enqueue_failed")
		return fmt.Errorf("enqueue notice %s: %w", notice.NoticeNo, err)
	}
	d.setDepth()
	return nil
}

func (d *PoolDispatcher) record(result string) {
	if d.metrics != nil {
		d.metrics.RecordNotice(result)
	}
}

func (d *PoolDispatcher) setDepth() {
	if d.metrics != nil {
		d.metrics.SetNoticeQueueDepth(d.pool.Len())
	}
}

var _ Dispatcher = (*PoolDispatcher)(nil)
