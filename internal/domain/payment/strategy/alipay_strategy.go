package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"paycenter/internal/domain/payment/model"
	"paycenter/internal/pkg/config"
	"paycenter/internal/pkg/gateway"
	"paycenter/pkg/metrics"

	"github.com/shopspring/decimal"
	"github.com/smartwalle/alipay/v3"
)

const (
	alipayTradeNotExist = "ACQ.TRADE_NOT_EXIST"
	alipayTimeLayout    = "2006-01-02 15:04:05"
)

// 支付宝返回的时间为北京时间
var alipayLocation = time.FixedZone("CST", 8*3600)

// AlipayClient smartwalle/alipay 客户端中用到的方法，SDK 不接收 context，超时由 gateway.Call 控制
type AlipayClient interface {
	TradeQuery(param alipay.TradeQuery) (*alipay.TradeQueryRsp, error)
	TradeClose(param alipay.TradeClose) (*alipay.TradeCloseRsp, error)
	DecodeNotification(values url.Values) (*alipay.Notification, error)
}

// alipayError 业务失败的网关响应
type alipayError struct {
	Code    string
	SubCode string
	Msg     string
}

func (e *alipayError) Error() string {
	return fmt.Sprintf("alipay %s %s: %s", e.Code, e.SubCode, e.Msg)
}

// asAlipayError 业务失败可能以 rsp.Code 返回，也可能以 *alipay.Error 返回
func asAlipayError(err error) (*alipayError, bool) {
	var aerr *alipayError
	if errors.As(err, &aerr) {
		return aerr, true
	}
	var serr *alipay.Error
	if errors.As(err, &serr) {
		return &alipayError{Code: string(serr.Code), SubCode: serr.SubCode, Msg: serr.SubMsg}, true
	}
	return nil, false
}

type AlipayStrategy struct {
	client  AlipayClient
	timeout time.Duration
	metrics *metrics.MetricsCollector
}

func NewAlipayStrategy(cfg config.AlipayConfig, m *metrics.MetricsCollector) (*AlipayStrategy, error) {
	client, err := gateway.Alipay(cfg)
	if err != nil {
		return nil, err
	}
	return NewAlipayStrategyWithClient(client, cfg.Timeout, m), nil
}

func NewAlipayStrategyWithClient(client AlipayClient, timeout time.Duration, m *metrics.MetricsCollector) *AlipayStrategy {
	return &AlipayStrategy{client: client, timeout: timeout, metrics: m}
}

func (s *AlipayStrategy) Channel() string { return model.ChannelAlipay }

func (s *AlipayStrategy) Validate(order *model.Order) bool {
	return validOrder(order, model.ChannelAlipay)
}

// BeforeRepair 查询网关交易，取得支付完成时间
func (s *AlipayStrategy) BeforeRepair(ctx context.Context, order *model.Order, rc *model.RepairContext) error {
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

// CloseRemote 关闭失败时回查交易: 已关闭或不存在视为成功，已支付则拒绝
func (s *AlipayStrategy) CloseRemote(ctx context.Context, order *model.Order) error {
	var rsp *alipay.TradeCloseRsp
	err := gatewayCall(ctx, s.metrics, s.timeout, model.ChannelAlipay, "close", func(ctx context.Context) error {
		var err error
		rsp, err = gateway.Call(ctx, func() (*alipay.TradeCloseRsp, error) {
			return s.client.TradeClose(alipay.TradeClose{OutTradeNo: order.OrderNo})
		})
		if err != nil {
			return err
		}
		if rsp.Code != alipay.CodeSuccess {
			return &alipayError{Code: string(rsp.Code), SubCode: rsp.SubCode, Msg: rsp.SubMsg}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if aerr, ok := asAlipayError(err); ok && aerr.SubCode == alipayTradeNotExist {
		return nil
	}

	trade, qerr := s.Query(ctx, order)
	if qerr != nil {
		return fmt.Errorf("alipay close %s: %w", order.OrderNo, err)
	}
	switch trade.State {
	case model.TradeClosed, model.TradeNotExist:
		return nil
	case model.TradeSuccess:
		return fmt.Errorf("%w: alipay order %s already paid", ErrGatewayRejected, order.OrderNo)
	default:
		return fmt.Errorf("%w: alipay close %s: %v", ErrGatewayRejected, order.OrderNo, err)
	}
}

func (s *AlipayStrategy) Query(ctx context.Context, order *model.Order) (*model.GatewayTrade, error) {
	var rsp *alipay.TradeQueryRsp
	err := gatewayCall(ctx, s.metrics, s.timeout, model.ChannelAlipay, "query", func(ctx context.Context) error {
		var err error
		rsp, err = gateway.Call(ctx, func() (*alipay.TradeQueryRsp, error) {
			return s.client.TradeQuery(alipay.TradeQuery{OutTradeNo: order.OrderNo})
		})
		return err
	})
	if err != nil {
		if aerr, ok := asAlipayError(err); ok && aerr.SubCode == alipayTradeNotExist {
			return &model.GatewayTrade{OrderNo: order.OrderNo, State: model.TradeNotExist, RawStatus: aerr.SubCode}, nil
		}
		return nil, fmt.Errorf("alipay query %s: %w", order.OrderNo, err)
	}

	if rsp.Code != alipay.CodeSuccess {
		if rsp.SubCode == alipayTradeNotExist {
			return &model.GatewayTrade{OrderNo: order.OrderNo, State: model.TradeNotExist, RawStatus: rsp.SubCode}, nil
		}
		return nil, &alipayError{Code: string(rsp.Code), SubCode: rsp.SubCode, Msg: rsp.SubMsg}
	}

	trade := &model.GatewayTrade{
		OrderNo:   order.OrderNo,
		TradeNo:   rsp.TradeNo,
		State:     alipayTradeState(rsp.TradeStatus),
		RawStatus: string(rsp.TradeStatus),
		Amount:    yuanToFen(rsp.TotalAmount),
	}
	if trade.State == model.TradeSuccess {
		trade.FinishTime = parseAlipayTime(rsp.SendPayDate)
	}
	return trade, nil
}

// DecodeNotify payload 为回调表单 url.Values
func (s *AlipayStrategy) DecodeNotify(ctx context.Context, payload any) (*model.GatewayTrade, error) {
	values, ok := payload.(url.Values)
	if !ok {
		return nil, fmt.Errorf("%w: expected url.Values, got %T", ErrInvalidNotify, payload)
	}

	noti, err := s.client.DecodeNotification(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotify, err)
	}

	trade := &model.GatewayTrade{
		OrderNo:   noti.OutTradeNo,
		TradeNo:   noti.TradeNo,
		State:     alipayTradeState(noti.TradeStatus),
		RawStatus: string(noti.TradeStatus),
		Amount:    yuanToFen(noti.TotalAmount),
	}
	if trade.State == model.TradeSuccess {
		trade.FinishTime = parseAlipayTime(noti.GmtPayment)
	}
	return trade, nil
}

func alipayTradeState(status alipay.TradeStatus) model.TradeState {
	switch status {
	case alipay.TradeStatusSuccess, alipay.TradeStatusFinished:
		return model.TradeSuccess
	case alipay.TradeStatusClosed:
		return model.TradeClosed
	default:
		return model.TradeWaiting
	}
}

func parseAlipayTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(alipayTimeLayout, s, alipayLocation)
	if err != nil {
		return nil
	}
	return &t
}

// yuanToFen "10.00" -> 1000，无法解析时返回 0
func yuanToFen(amount string) int64 {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0
	}
	return d.Shift(2).IntPart()
}

// FenToYuan 1000 -> "10.00"
func FenToYuan(fen int64) string {
	return decimal.New(fen, -2).StringFixed(2)
}

var (
	_ RepairStrategy = (*AlipayStrategy)(nil)
	_ AlipayClient   = (*alipay.Client)(nil)
)
