package strategy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"paycenter/internal/domain/payment/model"

	"github.com/smartwalle/alipay/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/notify"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/app"
)

// MockAlipayClient 支付宝客户端 Mock
type MockAlipayClient struct {
	mock.Mock
}

func (m *MockAlipayClient) TradeQuery(param alipay.TradeQuery) (*alipay.TradeQueryRsp, error) {
	args := m.Called(param)
	rsp, _ := args.Get(0).(*alipay.TradeQueryRsp)
	return rsp, args.Error(1)
}

func (m *MockAlipayClient) TradeClose(param alipay.TradeClose) (*alipay.TradeCloseRsp, error) {
	args := m.Called(param)
	rsp, _ := args.Get(0).(*alipay.TradeCloseRsp)
	return rsp, args.Error(1)
}

func (m *MockAlipayClient) DecodeNotification(values url.Values) (*alipay.Notification, error) {
	args := m.Called(values)
	n, _ := args.Get(0).(*alipay.Notification)
	return n, args.Error(1)
}

// MockWechatClient 微信支付客户端 Mock
type MockWechatClient struct {
	mock.Mock
}

func (m *MockWechatClient) QueryOrderByOutTradeNo(ctx context.Context, req app.QueryOrderByOutTradeNoRequest) (*payments.Transaction, *core.APIResult, error) {
	args := m.Called(ctx, req)
	tx, _ := args.Get(0).(*payments.Transaction)
	return tx, nil, args.Error(1)
}

func (m *MockWechatClient) CloseOrder(ctx context.Context, req app.CloseOrderRequest) (*core.APIResult, error) {
	args := m.Called(ctx, req)
	return nil, args.Error(0)
}

type fakeParser struct {
	tx  payments.Transaction
	err error
}

func (p *fakeParser) ParseNotifyRequest(ctx context.Context, request *http.Request, content interface{}) (*notify.Request, error) {
	if p.err != nil {
		return nil, p.err
	}
	*(content.(*payments.Transaction)) = p.tx
	return &notify.Request{}, nil
}

func aliOrder() *model.Order {
	return &model.Order{OrderNo: "P042", Channel: model.ChannelAlipay, Amount: 1000, Status: model.OrderStatusPending}
}

func wxOrder() *model.Order {
	return &model.Order{OrderNo: "P000043", Channel: model.ChannelWechat, Amount: 1000, Status: model.OrderStatusPending}
}

func closeRsp(subCode string) *alipay.TradeCloseRsp {
	rsp := &alipay.TradeCloseRsp{}
	rsp.Code = "40004"
	rsp.SubCode = subCode
	return rsp
}

func queryRsp(status alipay.TradeStatus) *alipay.TradeQueryRsp {
	rsp := &alipay.TradeQueryRsp{}
	rsp.Code = alipay.CodeSuccess
	rsp.TradeStatus = status
	rsp.TradeNo = "2024040122001"
	rsp.TotalAmount = "10.00"
	rsp.SendPayDate = "2024-04-01 10:00:00"
	return rsp
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewAlipayStrategyWithClient(new(MockAlipayClient), 0, nil))

	t.Run("Resolve registered channel", func(t *testing.T) {
		s, err := r.Resolve(model.ChannelAlipay)
		require.NoError(t, err)
		assert.Equal(t, model.ChannelAlipay, s.Channel())
	})

	t.Run("Unknown channel is a defect", func(t *testing.T) {
		_, err := r.Resolve("UNION")
		assert.ErrorIs(t, err, ErrStrategyNotFound)
	})

	t.Run("Channels", func(t *testing.T) {
		r.Register(NewWechatStrategyWithClient(new(MockWechatClient), &fakeParser{}, "mch", 0, nil))
		assert.Equal(t, []string{model.ChannelAlipay, model.ChannelWechat}, r.Channels())
	})
}

func TestAlipayStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("Validate", func(t *testing.T) {
		s := NewAlipayStrategyWithClient(new(MockAlipayClient), 0, nil)
		assert.True(t, s.Validate(aliOrder()))
		assert.False(t, s.Validate(&model.Order{OrderNo: "P1", Channel: model.ChannelAlipay}))
		assert.False(t, s.Validate(wxOrder()))
	})

	t.Run("BeforeRepair fills finish time from gateway", func(t *testing.T) {
		client := new(MockAlipayClient)
		client.On("TradeQuery", alipay.TradeQuery{OutTradeNo: "P042"}).
			Return(queryRsp(alipay.TradeStatusSuccess), nil)
		s := NewAlipayStrategyWithClient(client, time.Second, nil)

		rc := &model.RepairContext{}
		require.NoError(t, s.BeforeRepair(ctx, aliOrder(), rc))

		require.NotNil(t, rc.FinishTime)
		assert.Equal(t, "2024-04-01T10:00:00+08:00", rc.FinishTime.Format(time.RFC3339))
		assert.Equal(t, "TRADE_SUCCESS", rc.GatewayStatus)
		assert.Equal(t, "2024040122001", rc.GatewayTradeNo)
	})

	t.Run("BeforeRepair skips query when callback primed the context", func(t *testing.T) {
		client := new(MockAlipayClient)
		s := NewAlipayStrategyWithClient(client, 0, nil)

		require.NoError(t, s.BeforeRepair(ctx, aliOrder(), &model.RepairContext{GatewayStatus: "TRADE_SUCCESS"}))
		client.AssertNotCalled(t, "TradeQuery", mock.Anything)
	})

	t.Run("Query trade not exist", func(t *testing.T) {
		client := new(MockAlipayClient)
		rsp := &alipay.TradeQueryRsp{}
		rsp.Code = "40004"
		rsp.SubCode = "ACQ.TRADE_NOT_EXIST"
		client.On("TradeQuery", mock.Anything).Return(rsp, nil)
		s := NewAlipayStrategyWithClient(client, 0, nil)

		trade, err := s.Query(ctx, aliOrder())
		require.NoError(t, err)
		assert.Equal(t, model.TradeNotExist, trade.State)
	})

	t.Run("Close is idempotent on an already closed trade", func(t *testing.T) {
		client := new(MockAlipayClient)
		client.On("TradeClose", alipay.TradeClose{OutTradeNo: "P042"}).
			Return(closeRsp("ACQ.TRADE_STATUS_ERROR"), nil)
		client.On("TradeQuery", mock.Anything).
			Return(queryRsp(alipay.TradeStatusClosed), nil)
		s := NewAlipayStrategyWithClient(client, 0, nil)

		assert.NoError(t, s.CloseRemote(ctx, aliOrder()))
		assert.NoError(t, s.CloseRemote(ctx, aliOrder()))
	})

	t.Run("Close of a trade missing at gateway succeeds", func(t *testing.T) {
		client := new(MockAlipayClient)
		client.On("TradeClose", mock.Anything).Return(closeRsp("ACQ.TRADE_NOT_EXIST"), nil)
		s := NewAlipayStrategyWithClient(client, 0, nil)

		assert.NoError(t, s.CloseRemote(ctx, aliOrder()))
		client.AssertNotCalled(t, "TradeQuery", mock.Anything)
	})

	t.Run("Business failure returned as SDK error", func(t *testing.T) {
		client := new(MockAlipayClient)
		client.On("TradeClose", mock.Anything).
			Return(nil, &alipay.Error{Code: "40004", SubCode: "ACQ.TRADE_NOT_EXIST", SubMsg: "交易不存在"})
		client.On("TradeQuery", mock.Anything).
			Return(nil, &alipay.Error{Code: "40004", SubCode: "ACQ.TRADE_NOT_EXIST", SubMsg: "交易不存在"})
		s := NewAlipayStrategyWithClient(client, 0, nil)

		assert.NoError(t, s.CloseRemote(ctx, aliOrder()))
		trade, err := s.Query(ctx, aliOrder())
		require.NoError(t, err)
		assert.Equal(t, model.TradeNotExist, trade.State)
	})

	t.Run("Slow gateway is bounded by the strategy timeout", func(t *testing.T) {
		client := new(MockAlipayClient)
		client.On("TradeQuery", mock.Anything).
			After(time.Second).Return(queryRsp(alipay.TradeStatusSuccess), nil)
		s := NewAlipayStrategyWithClient(client, 20*time.Millisecond, nil)

		start := time.Now()
		_, err := s.Query(ctx, aliOrder())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("Close of a paid trade is rejected", func(t *testing.T) {
		client := new(MockAlipayClient)
		client.On("TradeClose", mock.Anything).Return(closeRsp("ACQ.TRADE_STATUS_ERROR"), nil)
		client.On("TradeQuery", mock.Anything).Return(queryRsp(alipay.TradeStatusSuccess), nil)
		s := NewAlipayStrategyWithClient(client, 0, nil)

		assert.ErrorIs(t, s.CloseRemote(ctx, aliOrder()), ErrGatewayRejected)
	})

	t.Run("DecodeNotify", func(t *testing.T) {
		client := new(MockAlipayClient)
		values := url.Values{"out_trade_no": {"P042"}}
		client.On("DecodeNotification", values).Return(&alipay.Notification{
			OutTradeNo:  "P042",
			TradeNo:     "2024040122001",
			TradeStatus: alipay.TradeStatusSuccess,
			TotalAmount: "10.00",
			GmtPayment:  "2024-04-01 10:00:00",
		}, nil)
		s := NewAlipayStrategyWithClient(client, 0, nil)

		trade, err := s.DecodeNotify(ctx, values)
		require.NoError(t, err)
		assert.Equal(t, "P042", trade.OrderNo)
		assert.Equal(t, int64(1000), trade.Amount)
		assert.Equal(t, model.TradeSuccess, trade.State)
		require.NotNil(t, trade.FinishTime)
	})

	t.Run("DecodeNotify rejects wrong payload type", func(t *testing.T) {
		s := NewAlipayStrategyWithClient(new(MockAlipayClient), 0, nil)
		_, err := s.DecodeNotify(ctx, "not a form")
		assert.ErrorIs(t, err, ErrInvalidNotify)
	})
}

func TestWechatStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("Validate order number length", func(t *testing.T) {
		s := NewWechatStrategyWithClient(new(MockWechatClient), &fakeParser{}, "mch", 0, nil)
		assert.True(t, s.Validate(wxOrder()))
		short := wxOrder()
		short.OrderNo = "P43"
		assert.False(t, s.Validate(short))
	})

	t.Run("Close twice on a closed order succeeds both times", func(t *testing.T) {
		client := new(MockWechatClient)
		client.On("CloseOrder", mock.Anything, mock.Anything).Return(nil).Once()
		client.On("CloseOrder", mock.Anything, mock.Anything).
			Return(&core.APIError{StatusCode: 400, Code: "ORDER_CLOSED"}).Once()
		s := NewWechatStrategyWithClient(client, &fakeParser{}, "mch", 0, nil)

		assert.NoError(t, s.CloseRemote(ctx, wxOrder()))
		assert.NoError(t, s.CloseRemote(ctx, wxOrder()))
	})

	t.Run("Close of a paid order is rejected", func(t *testing.T) {
		client := new(MockWechatClient)
		client.On("CloseOrder", mock.Anything, mock.Anything).
			Return(&core.APIError{StatusCode: 400, Code: "ORDERPAID"})
		s := NewWechatStrategyWithClient(client, &fakeParser{}, "mch", 0, nil)

		assert.ErrorIs(t, s.CloseRemote(ctx, wxOrder()), ErrGatewayRejected)
	})

	t.Run("Transport failure is not a rejection", func(t *testing.T) {
		client := new(MockWechatClient)
		client.On("CloseOrder", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
		s := NewWechatStrategyWithClient(client, &fakeParser{}, "mch", 0, nil)

		err := s.CloseRemote(ctx, wxOrder())
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrGatewayRejected))
	})

	t.Run("Query success", func(t *testing.T) {
		client := new(MockWechatClient)
		client.On("QueryOrderByOutTradeNo", mock.Anything, mock.Anything).Return(&payments.Transaction{
			OutTradeNo:    core.String("P000043"),
			TransactionId: core.String("4200001"),
			TradeState:    core.String("SUCCESS"),
			SuccessTime:   core.String("2024-04-01T10:00:00+08:00"),
			Amount:        &payments.TransactionAmount{Total: core.Int64(1000)},
		}, nil)
		s := NewWechatStrategyWithClient(client, &fakeParser{}, "mch", 0, nil)

		trade, err := s.Query(ctx, wxOrder())
		require.NoError(t, err)
		assert.Equal(t, model.TradeSuccess, trade.State)
		assert.Equal(t, int64(1000), trade.Amount)
		require.NotNil(t, trade.FinishTime)
	})

	t.Run("Query order not exist", func(t *testing.T) {
		client := new(MockWechatClient)
		client.On("QueryOrderByOutTradeNo", mock.Anything, mock.Anything).
			Return(nil, &core.APIError{StatusCode: 404, Code: "ORDER_NOT_EXIST"})
		s := NewWechatStrategyWithClient(client, &fakeParser{}, "mch", 0, nil)

		trade, err := s.Query(ctx, wxOrder())
		require.NoError(t, err)
		assert.Equal(t, model.TradeNotExist, trade.State)
	})

	t.Run("DecodeNotify", func(t *testing.T) {
		parser := &fakeParser{tx: payments.Transaction{
			OutTradeNo: core.String("P000043"),
			TradeState: core.String("CLOSED"),
		}}
		s := NewWechatStrategyWithClient(new(MockWechatClient), parser, "mch", 0, nil)
		req, _ := http.NewRequest(http.MethodPost, "/payment/notify/wechat", nil)

		trade, err := s.DecodeNotify(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.TradeClosed, trade.State)
	})

	t.Run("DecodeNotify with bad signature", func(t *testing.T) {
		s := NewWechatStrategyWithClient(new(MockWechatClient), &fakeParser{err: errors.New("bad sign")}, "mch", 0, nil)
		req, _ := http.NewRequest(http.MethodPost, "/payment/notify/wechat", nil)

		_, err := s.DecodeNotify(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidNotify)
	})
}

func TestAmountConversion(t *testing.T) {
	assert.Equal(t, int64(1000), yuanToFen("10.00"))
	assert.Equal(t, int64(1), yuanToFen("0.01"))
	assert.Equal(t, int64(0), yuanToFen("abc"))
	assert.Equal(t, "10.00", FenToYuan(1000))
	assert.Equal(t, "0.05", FenToYuan(5))
}
