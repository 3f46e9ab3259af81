package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paycenter/internal/domain/allocation/model"
	paymentModel "paycenter/internal/domain/payment/model"
	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/gateway"
	"paycenter/pkg/idgen"
	"paycenter/pkg/metrics"

	"github.com/smartwalle/alipay/v3"
)

// 支付宝分账关系接收方类型
var alipayReceiverTypes = map[model.ReceiverType]string{
	model.ReceiverUserID:    "userId",
	model.ReceiverLoginName: "loginName",
	model.ReceiverOpenID:    "openId",
}

const (
	alipayRoyaltyBind   = "alipay.trade.royalty.relation.bind"
	alipayRoyaltyUnbind = "alipay.trade.royalty.relation.unbind"
)

// RoyaltyClient 分账关系接口走 SDK 的通用请求入口
type RoyaltyClient interface {
	Request(param alipay.Param, result interface{}) error
}

type royaltyReceiver struct {
	Type          string `json:"type"`
	Account       string `json:"account,omitempty"`
	AccountOpenID string `json:"account_open_id,omitempty"`
	Name          string `json:"name,omitempty"`
	Memo          string `json:"memo,omitempty"`
}

// royaltyRelation 分账关系绑定/解绑请求参数
type royaltyRelation struct {
	alipay.AuxParam
	method       string
	ReceiverList []*royaltyReceiver `json:"receiver_list"`
	OutRequestNo string             `json:"out_request_no"`
}

func (p royaltyRelation) APIName() string { return p.method }

func (p royaltyRelation) Params() map[string]string { return map[string]string{} }

type royaltyRelationRsp struct {
	alipay.Error
	ResultCode string `json:"result_code"`
}

type AlipayReceiverStrategy struct {
	client  RoyaltyClient
	timeout time.Duration
	metrics *metrics.MetricsCollector
}

func NewAlipayReceiverStrategy(cfg config.AlipayConfig, m *metrics.MetricsCollector) (*AlipayReceiverStrategy, error) {
	client, err := gateway.Alipay(cfg)
	if err != nil {
		return nil, err
	}
	return NewAlipayReceiverStrategyWithClient(client, cfg.Timeout, m), nil
}

func NewAlipayReceiverStrategyWithClient(client RoyaltyClient, timeout time.Duration, m *metrics.MetricsCollector) *AlipayReceiverStrategy {
	return &AlipayReceiverStrategy{client: client, timeout: timeout, metrics: m}
}

func (s *AlipayReceiverStrategy) Channel() string { return paymentModel.ChannelAlipay }

func (s *AlipayReceiverStrategy) SupportedTypes() []model.ReceiverType {
	return []model.ReceiverType{model.ReceiverLoginName, model.ReceiverUserID, model.ReceiverOpenID}
}

// Validate 登录账号类型必须提供姓名
func (s *AlipayReceiverStrategy) Validate(r *model.AllocReceiver) error {
	if err := validateCommon(r, s.Channel(), s.SupportedTypes()); err != nil {
		return err
	}
	if r.ReceiverType == model.ReceiverLoginName && r.ReceiverName == "" {
		return fmt.Errorf("%w: login_name receiver needs a name", ErrInvalidReceiver)
	}
	return nil
}

func (s *AlipayReceiverStrategy) receiver(r *model.AllocReceiver) *royaltyReceiver {
	rr := &royaltyReceiver{
		Type:    alipayReceiverTypes[r.ReceiverType],
		Account: r.ReceiverAccount,
		Name:    r.ReceiverName,
		Memo:    r.RelationName,
	}
	if r.ReceiverType == model.ReceiverOpenID {
		rr.Account = ""
		rr.AccountOpenID = r.ReceiverAccount
	}
	return rr
}

func (s *AlipayReceiverStrategy) Bind(ctx context.Context, r *model.AllocReceiver) error {
	if err := s.Validate(r); err != nil {
		return err
	}
	return s.relation(ctx, "receiver_bind", royaltyRelation{
		method:       alipayRoyaltyBind,
		ReceiverList: []*royaltyReceiver{s.receiver(r)},
		OutRequestNo: idgen.NextNo("RB"),
	}, r)
}

func (s *AlipayReceiverStrategy) Unbind(ctx context.Context, r *model.AllocReceiver) error {
	if err := s.Validate(r); err != nil {
		return err
	}
	return s.relation(ctx, "receiver_unbind", royaltyRelation{
		method:       alipayRoyaltyUnbind,
		ReceiverList: []*royaltyReceiver{s.receiver(r)},
		OutRequestNo: idgen.NextNo("RU"),
	}, r)
}

func (s *AlipayReceiverStrategy) relation(ctx context.Context, op string, param royaltyRelation, r *model.AllocReceiver) error {
	return gatewayCall(ctx, s.metrics, s.timeout, s.Channel(), op, func(ctx context.Context) error {
		rsp, err := gateway.Call(ctx, func() (*royaltyRelationRsp, error) {
			rsp := &royaltyRelationRsp{}
			return rsp, s.client.Request(param, rsp)
		})
		if err != nil {
			var serr *alipay.Error
			if errors.As(err, &serr) {
				return fmt.Errorf("%s %s: %w", param.method, r.ReceiverNo,
					&alipayError{Code: string(serr.Code), SubCode: serr.SubCode, Msg: serr.SubMsg})
			}
			return fmt.Errorf("%s %s: %w", param.method, r.ReceiverNo, err)
		}
		if rsp.Code != alipay.CodeSuccess {
			return &alipayError{Code: string(rsp.Code), SubCode: rsp.SubCode, Msg: rsp.SubMsg}
		}
		return nil
	})
}

type alipayError struct {
	Code    string
	SubCode string
	Msg     string
}

func (e *alipayError) Error() string {
	return fmt.Sprintf("alipay %s %s: %s", e.Code, e.SubCode, e.Msg)
}

var _ RoyaltyClient = (*alipay.Client)(nil)
