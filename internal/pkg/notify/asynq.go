package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"paycenter/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeClientNotice asynq 任务类型
const TypeClientNotice = "notice:client"

// AsynqDispatcher 通过 Redis 队列投递，跨实例且进程重启不丢失
type AsynqDispatcher struct {
	client   *asynq.Client
	signer   Signer
	queue    string
	maxRetry int
}

func NewAsynqDispatcher(client *asynq.Client, signer Signer, queue string, maxRetry int) *AsynqDispatcher {
	if queue == "" {
		queue = "default"
	}
	return &AsynqDispatcher{client: client, signer: signer, queue: queue, maxRetry: maxRetry}
}

func (d *AsynqDispatcher) Enqueue(ctx context.Context, notice *ClientNotice) error {
	d.signer.Sign(notice)
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	task := asynq.NewTask(TypeClientNotice, payload)
	if _, err := d.client.EnqueueContext(ctx, task, asynq.MaxRetry(d.maxRetry), asynq.Queue(d.queue)); err != nil {
		return fmt.Errorf("enqueue notice %s: %w", notice.NoticeNo, err)
	}
	return nil
}

// NewNoticeHandler 供 cmd/worker 注册到 asynq.ServeMux
func NewNoticeHandler(sender Sender) asynq.HandlerFunc {
	log := logger.Named("notify")
	return func(ctx context.Context, t *asynq.Task) error {
		var notice ClientNotice
		if err := json.Unmarshal(t.Payload(), &notice); err != nil {
			// 无法解析的任务重试也没有意义
			return fmt.Errorf("decode notice: %v: %w", err, asynq.SkipRetry)
		}
		if err := sender.Send(ctx, &notice); err != nil {
			log.Warn("Client notice delivery failed",
				zap.String("notice_no", notice.NoticeNo),
				zap.String("order_no", notice.OrderNo),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}

var _ Dispatcher = (*AsynqDispatcher)(nil)
