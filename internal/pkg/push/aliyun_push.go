package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/notify"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/push"
)

var ErrPushNotConfigured = errors.New("push config is missing")

// PushClient 阿里云推送接口子集
type PushClient interface {
	Push(request *push.PushRequest) (*push.PushResponse, error)
}

// AliyunPushSender 把订单终态以通知栏消息推送到商户 App 账号
type AliyunPushSender struct {
	client PushClient
	appKey int64
}

func NewAliyunPushSender(cfg config.PushConfig) (*AliyunPushSender, error) {
	if cfg.AccessKeyID == "" || cfg.AppKey == 0 {
		return nil, ErrPushNotConfigured
	}

	client, err := push.NewClientWithAccessKey(
		cfg.RegionID,
		cfg.AccessKeyID,
		cfg.AccessKeySecret,
	)
	if err != nil {
		return nil, err
	}

	return NewAliyunPushSenderWithClient(client, cfg.AppKey), nil
}

func NewAliyunPushSenderWithClient(client PushClient, appKey int64) *AliyunPushSender {
	return &AliyunPushSender{client: client, appKey: appKey}
}

// Send 没有绑定客户端账号的订单直接跳过
func (s *AliyunPushSender) Send(ctx context.Context, notice *notify.ClientNotice) error {
	if notice.ClientAccount == "" {
		return nil
	}
	ext := map[string]string{
		"noticeNo": notice.NoticeNo,
		"orderNo":  notice.OrderNo,
		"status":   notice.Status,
	}
	return s.sendPush("ACCOUNT", notice.ClientAccount, notice.Title, noticeBody(notice), ext)
}

func noticeBody(n *notify.ClientNotice) string {
	switch n.Status {
	case "SUCCESS":
		return fmt.Sprintf("订单 %s 已支付", n.OrderNo)
	case "CLOSE":
		return fmt.Sprintf("订单 %s 已关闭", n.OrderNo)
	default:
		return fmt.Sprintf("订单 %s 状态 %s", n.OrderNo, n.Status)
	}
}

func (s *AliyunPushSender) sendPush(target, targetValue, title, body string, extParameters map[string]string) error {
	request := push.CreatePushRequest()
	request.AppKey = requests.NewInteger(int(s.appKey))
	request.Target = target
	request.TargetValue = targetValue
	request.Title = title
	request.Body = body
	request.DeviceType = "ALL"  // iOS & Android
	request.PushType = "NOTICE" // 通知

	if len(extParameters) > 0 {
		extJSON, _ := json.Marshal(extParameters)
		request.AndroidExtParameters = string(extJSON)
		request.IOSExtParameters = string(extJSON)
	}

	_, err := s.client.Push(request)
	return err
}

var _ notify.Sender = (*AliyunPushSender)(nil)
