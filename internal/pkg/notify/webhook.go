package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrUnexpectedReply = errors.New("client did not acknowledge notice")

// WebhookSender 向订单的 NotifyURL POST 签名后的 JSON，客户端须返回 SUCCESS
type WebhookSender struct {
	client *http.Client
}

func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, notice *ClientNotice) error {
	if notice.NotifyURL == "" {
		return nil
	}

	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notice.NotifyURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notice: %w", err)
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	if resp.StatusCode != http.StatusOK || !strings.EqualFold(strings.TrimSpace(string(reply)), "SUCCESS") {
		return fmt.Errorf("%w: status=%d body=%q", ErrUnexpectedReply, resp.StatusCode, reply)
	}
	return nil
}
