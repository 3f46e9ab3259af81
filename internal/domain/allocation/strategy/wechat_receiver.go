package strategy

import (
	"context"
	"fmt"
	"time"

	"paycenter/internal/domain/allocation/model"
	paymentModel "paycenter/internal/domain/payment/model"
	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/gateway"
	"paycenter/pkg/metrics"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/services/profitsharing"
)

const (
	wechatRelationCustom    = "CUSTOM"
	wechatReceiverNotExists = "RECEIVER_NOT_EXISTS"
)

// ProfitSharingClient profitsharing.ReceiversApiService 中用到的方法
type ProfitSharingClient interface {
	AddReceiver(ctx context.Context, req profitsharing.AddReceiverRequest) (*profitsharing.AddReceiverResponse, *core.APIResult, error)
	DeleteReceiver(ctx context.Context, req profitsharing.DeleteReceiverRequest) (*profitsharing.DeleteReceiverResponse, *core.APIResult, error)
}

type WechatReceiverStrategy struct {
	client  ProfitSharingClient
	appID   string
	timeout time.Duration
	metrics *metrics.MetricsCollector
}

func NewWechatReceiverStrategy(ctx context.Context, cfg config.WechatPayConfig, m *metrics.MetricsCollector) (*WechatReceiverStrategy, error) {
	client, err := gateway.Wechat(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWechatReceiverStrategyWithClient(&profitsharing.ReceiversApiService{Client: client}, cfg.AppID, cfg.Timeout, m), nil
}

func NewWechatReceiverStrategyWithClient(client ProfitSharingClient, appID string, timeout time.Duration, m *metrics.MetricsCollector) *WechatReceiverStrategy {
	return &WechatReceiverStrategy{client: client, appID: appID, timeout: timeout, metrics: m}
}

func (s *WechatReceiverStrategy) Channel() string { return paymentModel.ChannelWechat }

func (s *WechatReceiverStrategy) SupportedTypes() []model.ReceiverType {
	return []model.ReceiverType{model.ReceiverMerchantNo, model.ReceiverOpenID}
}

// Validate 商户号类型必须提供商户全称，自定义关系必须提供关系名称
func (s *WechatReceiverStrategy) Validate(r *model.AllocReceiver) error {
	if err := validateCommon(r, s.Channel(), s.SupportedTypes()); err != nil {
		return err
	}
	if r.RelationType == "" {
		return fmt.Errorf("%w: relation type is required", ErrInvalidReceiver)
	}
	if r.ReceiverType == model.ReceiverMerchantNo && r.ReceiverName == "" {
		return fmt.Errorf("%w: merchant receiver needs a name", ErrInvalidReceiver)
	}
	if r.RelationType == wechatRelationCustom && r.RelationName == "" {
		return fmt.Errorf("%w: custom relation needs a name", ErrInvalidReceiver)
	}
	return nil
}

func wechatReceiverType(t model.ReceiverType) profitsharing.ReceiverType {
	if t == model.ReceiverMerchantNo {
		return profitsharing.RECEIVERTYPE_MERCHANT_ID
	}
	return profitsharing.RECEIVERTYPE_PERSONAL_OPENID
}

func (s *WechatReceiverStrategy) Bind(ctx context.Context, r *model.AllocReceiver) error {
	if err := s.Validate(r); err != nil {
		return err
	}

	req := profitsharing.AddReceiverRequest{
		Appid:        core.String(s.appID),
		Type:         wechatReceiverType(r.ReceiverType).Ptr(),
		Account:      core.String(r.ReceiverAccount),
		RelationType: profitsharing.ReceiverRelationType(r.RelationType).Ptr(),
	}
	// 姓名由客户端使用平台证书自动加密
	if r.ReceiverName != "" {
		req.Name = core.String(r.ReceiverName)
	}
	if r.RelationType == wechatRelationCustom {
		req.CustomRelation = core.String(r.RelationName)
	}

	return gatewayCall(ctx, s.metrics, s.timeout, s.Channel(), "receiver_bind", func(ctx context.Context) error {
		if _, _, err := s.client.AddReceiver(ctx, req); err != nil {
			return fmt.Errorf("wechat add receiver %s: %w", r.ReceiverNo, err)
		}
		return nil
	})
}

func (s *WechatReceiverStrategy) Unbind(ctx context.Context, r *model.AllocReceiver) error {
	if err := s.Validate(r); err != nil {
		return err
	}

	req := profitsharing.DeleteReceiverRequest{
		Appid:   core.String(s.appID),
		Type:    wechatReceiverType(r.ReceiverType).Ptr(),
		Account: core.String(r.ReceiverAccount),
	}
	return gatewayCall(ctx, s.metrics, s.timeout, s.Channel(), "receiver_unbind", func(ctx context.Context) error {
		_, _, err := s.client.DeleteReceiver(ctx, req)
		if err != nil && !core.IsAPIError(err, wechatReceiverNotExists) {
			return fmt.Errorf("wechat delete receiver %s: %w", r.ReceiverNo, err)
		}
		return nil
	})
}
