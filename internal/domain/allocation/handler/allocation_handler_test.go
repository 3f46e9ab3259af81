package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paycenter/internal/domain/allocation/model"
	"paycenter/internal/domain/allocation/repository"
	"paycenter/internal/domain/allocation/service"
	"paycenter/internal/domain/allocation/strategy"
	"paycenter/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReceiverService struct {
	mock.Mock
}

func (m *MockReceiverService) receiver(args mock.Arguments) (*model.AllocReceiver, error) {
	r, _ := args.Get(0).(*model.AllocReceiver)
	return r, args.Error(1)
}

func (m *MockReceiverService) Add(ctx context.Context, input *service.AddReceiverInput) (*model.AllocReceiver, error) {
	return m.receiver(m.Called(ctx, input))
}

func (m *MockReceiverService) Bind(ctx context.Context, receiverNo string) (*model.AllocReceiver, error) {
	return m.receiver(m.Called(ctx, receiverNo))
}

func (m *MockReceiverService) Unbind(ctx context.Context, receiverNo string) (*model.AllocReceiver, error) {
	return m.receiver(m.Called(ctx, receiverNo))
}

func (m *MockReceiverService) Remove(ctx context.Context, receiverNo string) error {
	return m.Called(ctx, receiverNo).Error(0)
}

func (m *MockReceiverService) Get(ctx context.Context, receiverNo string) (*model.AllocReceiver, error) {
	return m.receiver(m.Called(ctx, receiverNo))
}

func (m *MockReceiverService) List(ctx context.Context, channel string, page, pageSize int) ([]*model.AllocReceiver, int64, error) {
	args := m.Called(ctx, channel, page, pageSize)
	items, _ := args.Get(0).([]*model.AllocReceiver)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *MockReceiverService) SupportedTypes() map[string][]model.ReceiverType {
	return m.Called().Get(0).(map[string][]model.ReceiverType)
}

type MockAllocOrderService struct {
	mock.Mock
}

func (m *MockAllocOrderService) Get(ctx context.Context, allocNo string) (*model.AllocOrder, error) {
	args := m.Called(ctx, allocNo)
	o, _ := args.Get(0).(*model.AllocOrder)
	return o, args.Error(1)
}

func (m *MockAllocOrderService) ApplyResults(ctx context.Context, allocNo string, outcomes []service.DetailOutcome) (*model.AllocOrder, error) {
	args := m.Called(ctx, allocNo, outcomes)
	o, _ := args.Get(0).(*model.AllocOrder)
	return o, args.Error(1)
}

func setupRouter() (*gin.Engine, *MockReceiverService, *MockAllocOrderService) {
	gin.SetMode(gin.TestMode)
	receivers := new(MockReceiverService)
	orders := new(MockAllocOrderService)
	h := NewAllocationHandler(receivers, orders)

	r := gin.New()
	g := r.Group("/allocation")
	g.POST("/receiver", h.AddReceiver)
	g.GET("/receiver/types", h.ReceiverTypes)
	g.GET("/receiver/:receiver_no", h.GetReceiver)
	g.POST("/receiver/:receiver_no/bind", h.BindReceiver)
	g.POST("/receiver/:receiver_no/unbind", h.UnbindReceiver)
	g.DELETE("/receiver/:receiver_no", h.RemoveReceiver)
	g.GET("/receivers", h.ListReceivers)
	g.GET("/order/:alloc_no", h.GetOrder)
	g.POST("/order/:alloc_no/result", h.ApplyResults)
	return r, receivers, orders
}

func do(r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, response.Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestAllocationHandler_Receiver(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		r, receivers, _ := setupRouter()
		receivers.On("Add", mock.Anything, mock.MatchedBy(func(in *service.AddReceiverInput) bool {
			return in.Channel == "ALI" && in.ReceiverType == model.ReceiverUserID
		})).Return(&model.AllocReceiver{ReceiverNo: "AR1"}, nil)

		w, resp := do(r, http.MethodPost, "/allocation/receiver",
			`{"channel":"ALI","receiver_type":"user_id","receiver_account":"2088001"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, response.CodeSuccess, resp.Code)
	})

	t.Run("Add with missing fields", func(t *testing.T) {
		r, receivers, _ := setupRouter()

		w, resp := do(r, http.MethodPost, "/allocation/receiver", `{"channel":"ALI"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, response.ErrInvalidParam, resp.Code)
		receivers.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	})

	t.Run("Add invalid for channel", func(t *testing.T) {
		r, receivers, _ := setupRouter()
		receivers.On("Add", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: login_name needs a name", strategy.ErrInvalidReceiver))

		w, resp := do(r, http.MethodPost, "/allocation/receiver",
			`{"channel":"ALI","receiver_type":"login_name","receiver_account":"a@b.com"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, response.ErrReceiverInvalid, resp.Code)
	})

	t.Run("Bind busy", func(t *testing.T) {
		r, receivers, _ := setupRouter()
		receivers.On("Bind", mock.Anything, "AR1").Return(nil, service.ErrReceiverBusy)

		w, resp := do(r, http.MethodPost, "/allocation/receiver/AR1/bind", "")

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, response.ErrReceiverBusy, resp.Code)
	})

	t.Run("Unbind", func(t *testing.T) {
		r, receivers, _ := setupRouter()
		receivers.On("Unbind", mock.Anything, "AR1").Return(&model.AllocReceiver{ReceiverNo: "AR1"}, nil)

		w, _ := do(r, http.MethodPost, "/allocation/receiver/AR1/unbind", "")

		assert.Equal(t, http.StatusOK, w.Code)
		receivers.AssertExpectations(t)
	})

	t.Run("Remove bound receiver", func(t *testing.T) {
		r, receivers, _ := setupRouter()
		receivers.On("Remove", mock.Anything, "AR1").Return(service.ErrReceiverBound)

		w, resp := do(r, http.MethodDelete, "/allocation/receiver/AR1", "")

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, response.ErrReceiverBound, resp.Code)
	})

	t.Run("Get missing", func(t *testing.T) {
		r, receivers, _ := setupRouter()
		receivers.On("Get", mock.Anything, "AR9").Return(nil, repository.ErrReceiverNotFound)

		w, resp := do(r, http.MethodGet, "/allocation/receiver/AR9", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, response.ErrReceiverNotFound, resp.Code)
	})

	t.Run("List", func(t *testing.T) {
		r, receivers, _ := setupRouter()
		receivers.On("List", mock.Anything, "WECHAT", 2, 10).
			Return([]*model.AllocReceiver{{ReceiverNo: "AR1"}}, int64(11), nil)

		w, resp := do(r, http.MethodGet, "/allocation/receivers?channel=WECHAT&page=2&page_size=10", "")

		assert.Equal(t, http.StatusOK, w.Code)
		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(11), data["total"])
	})

	t.Run("Types", func(t *testing.T) {
		r, receivers, _ := setupRouter()
		receivers.On("SupportedTypes").Return(map[string][]model.ReceiverType{
			"WECHAT": {model.ReceiverMerchantNo, model.ReceiverOpenID},
		})

		w, resp := do(r, http.MethodGet, "/allocation/receiver/types", "")

		assert.Equal(t, http.StatusOK, w.Code)
		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.Len(t, data["WECHAT"], 2)
	})
}

func TestAllocationHandler_Order(t *testing.T) {
	t.Run("Get missing", func(t *testing.T) {
		r, _, orders := setupRouter()
		orders.On("Get", mock.Anything, "A404").Return(nil, repository.ErrAllocOrderNotFound)

		w, resp := do(r, http.MethodGet, "/allocation/order/A404", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, response.ErrAllocNotFound, resp.Code)
	})

	t.Run("Apply results", func(t *testing.T) {
		r, _, orders := setupRouter()
		orders.On("ApplyResults", mock.Anything, "A001", mock.MatchedBy(func(o []service.DetailOutcome) bool {
			return len(o) == 1 && o[0].ReceiverNo == "AR1" && o[0].Result == model.DetailSuccess
		})).Return(&model.AllocOrder{AllocNo: "A001", Result: model.OrderAllSuccess}, nil)

		w, resp := do(r, http.MethodPost, "/allocation/order/A001/result",
			`{"details":[{"receiver_no":"AR1","result":"success"}]}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, response.CodeSuccess, resp.Code)
	})

	t.Run("Unknown result value", func(t *testing.T) {
		r, _, orders := setupRouter()

		w, _ := do(r, http.MethodPost, "/allocation/order/A001/result",
			`{"details":[{"receiver_no":"AR1","result":"done"}]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		orders.AssertNotCalled(t, "ApplyResults", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unknown detail", func(t *testing.T) {
		r, _, orders := setupRouter()
		orders.On("ApplyResults", mock.Anything, "A001", mock.Anything).
			Return(nil, fmt.Errorf("%w: AR9", service.ErrDetailNotFound))

		w, resp := do(r, http.MethodPost, "/allocation/order/A001/result",
			`{"details":[{"receiver_no":"AR9","result":"fail"}]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, response.ErrAllocDetail, resp.Code)
	})
}
