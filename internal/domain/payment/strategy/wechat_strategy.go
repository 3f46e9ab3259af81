package strategy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"paycenter/internal/domain/payment/model"
	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/gateway"
	"paycenter/pkg/metrics"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth/verifiers"
	"github.com/wechatpay-apiv3/wechatpay-go/core/downloader"
	"github.com/wechatpay-apiv3/wechatpay-go/core/notify"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/app"
)

const (
	wechatOrderNotExist = "ORDER_NOT_EXIST"
	wechatOrderClosed   = "ORDER_CLOSED"
	wechatOrderPaid     = "ORDERPAID"
)

// WechatPayClient app.AppApiService 中用到的方法
type WechatPayClient interface {
	QueryOrderByOutTradeNo(ctx context.Context, req app.QueryOrderByOutTradeNoRequest) (*payments.Transaction, *core.APIResult, error)
	CloseOrder(ctx context.Context, req app.CloseOrderRequest) (*core.APIResult, error)
}

// WechatNotifyParser 回调验签解密
type WechatNotifyParser interface {
	ParseNotifyRequest(ctx context.Context, request *http.Request, content interface{}) (*notify.Request, error)
}

type WechatStrategy struct {
	client  WechatPayClient
	parser  WechatNotifyParser
	mchID   string
	timeout time.Duration
	metrics *metrics.MetricsCollector
}

func NewWechatStrategy(ctx context.Context, cfg config.WechatPayConfig, m *metrics.MetricsCollector) (*WechatStrategy, error) {
	client, err := gateway.Wechat(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 证书管理器在 NewClient 时已注册
	certVisitor := downloader.MgrInstance().GetCertificateVisitor(cfg.MchID)
	handler := notify.NewNotifyHandler(cfg.APIv3Key, verifiers.NewSHA256WithRSAVerifier(certVisitor))

	return NewWechatStrategyWithClient(&app.AppApiService{Client: client}, handler, cfg.MchID, cfg.Timeout, m), nil
}

func NewWechatStrategyWithClient(client WechatPayClient, parser WechatNotifyParser, mchID string, timeout time.Duration, m *metrics.MetricsCollector) *WechatStrategy {
	return &WechatStrategy{
		client:  client,
		parser:  parser,
		mchID:   mchID,
		timeout: timeout,
		metrics: m,
	}
}

func (s *WechatStrategy) Channel() string { return model.ChannelWechat }

// Validate 微信商户订单号限 6-32 位
func (s *WechatStrategy) Validate(order *model.Order) bool {
	return validOrder(order, model.ChannelWechat) && len(order.OrderNo) >= 6 && len(order.OrderNo) <= 32
}

func (s *WechatStrategy) BeforeRepair(ctx context.Context, order *model.Order, rc *model.RepairContext) error {
	if primed(rc) {
		return nil
	}
	trade, err := s.Query(ctx, order)
	if err != nil {
		return err
	}
	trade.Apply(rc)
	return nil
}

// CloseRemote ORDER_CLOSED 与 ORDER_NOT_EXIST 视为成功，ORDERPAID 为拒绝
func (s *WechatStrategy) CloseRemote(ctx context.Context, order *model.Order) error {
	err := gatewayCall(ctx, s.metrics, s.timeout, model.ChannelWechat, "close", func(ctx context.Context) error {
		_, err := s.client.CloseOrder(ctx, app.CloseOrderRequest{
			OutTradeNo: core.String(order.OrderNo),
			Mchid:      core.String(s.mchID),
		})
		return err
	})

	switch {
	case err == nil:
		return nil
	case core.IsAPIError(err, wechatOrderClosed), core.IsAPIError(err, wechatOrderNotExist):
		return nil
	case core.IsAPIError(err, wechatOrderPaid):
		return fmt.Errorf("%w: wechat order %s already paid", ErrGatewayRejected, order.OrderNo)
	default:
		return fmt.Errorf("wechat close %s: %w", order.OrderNo, err)
	}
}

func (s *WechatStrategy) Query(ctx context.Context, order *model.Order) (*model.GatewayTrade, error) {
	var tx *payments.Transaction
	err := gatewayCall(ctx, s.metrics, s.timeout, model.ChannelWechat, "query", func(ctx context.Context) error {
		var err error
		tx, _, err = s.client.QueryOrderByOutTradeNo(ctx, app.QueryOrderByOutTradeNoRequest{
			OutTradeNo: core.String(order.OrderNo),
			Mchid:      core.String(s.mchID),
		})
		return err
	})
	if err != nil {
		if core.IsAPIError(err, wechatOrderNotExist) {
			return &model.GatewayTrade{OrderNo: order.OrderNo, State: model.TradeNotExist, RawStatus: wechatOrderNotExist}, nil
		}
		return nil, fmt.Errorf("wechat query %s: %w", order.OrderNo, err)
	}
	return wechatTrade(tx), nil
}

// DecodeNotify payload 为原始回调请求 *http.Request
func (s *WechatStrategy) DecodeNotify(ctx context.Context, payload any) (*model.GatewayTrade, error) {
	req, ok := payload.(*http.Request)
	if !ok {
		return nil, fmt.Errorf("%w: expected *http.Request, got %T", ErrInvalidNotify, payload)
	}

	transaction := new(payments.Transaction)
	if _, err := s.parser.ParseNotifyRequest(ctx, req, transaction); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotify, err)
	}
	return wechatTrade(transaction), nil
}

func wechatTrade(tx *payments.Transaction) *model.GatewayTrade {
	trade := &model.GatewayTrade{
		OrderNo:   deref(tx.OutTradeNo),
		TradeNo:   deref(tx.TransactionId),
		RawStatus: deref(tx.TradeState),
	}
	if tx.Amount != nil && tx.Amount.Total != nil {
		trade.Amount = *tx.Amount.Total
	}

	switch trade.RawStatus {
	case "SUCCESS", "REFUND":
		trade.State = model.TradeSuccess
		if t, err := time.Parse(time.RFC3339, deref(tx.SuccessTime)); err == nil {
			trade.FinishTime = &t
		}
	case "CLOSED", "REVOKED", "PAYERROR":
		trade.State = model.TradeClosed
	default:
		// NOTPAY, USERPAYING
		trade.State = model.TradeWaiting
	}
	return trade
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ RepairStrategy = (*WechatStrategy)(nil)
