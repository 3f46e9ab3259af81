package handler

import (
	"context"
	"errors"
	"net/http"

	"paycenter/internal/domain/payment/model"
	"paycenter/internal/domain/payment/repository"
	"paycenter/internal/domain/payment/service"
	"paycenter/pkg/logger"
	"paycenter/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderFinder 按业务单号加载订单
type OrderFinder interface {
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)
}

type PaymentHandler struct {
	orders     OrderFinder
	strategies service.StrategyResolver
	repair     service.RepairService
	callback   service.CallbackService
	sync       service.SyncService
}

func NewPaymentHandler(
	orders OrderFinder,
	strategies service.StrategyResolver,
	repair service.RepairService,
	callback service.CallbackService,
	sync service.SyncService,
) *PaymentHandler {
	return &PaymentHandler{
		orders:     orders,
		strategies: strategies,
		repair:     repair,
		callback:   callback,
		sync:       sync,
	}
}

type RepairInput struct {
	OrderNo string `json:"order_no" binding:"required,max=64"`
	Action  string `json:"action" binding:"required,oneof=success close_local close_gateway"`
}

// Repair 手动修复订单
func (h *PaymentHandler) Repair(c *gin.Context) {
	var input RepairInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	action, err := model.ParseRepairAction(input.Action)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	ctx := c.Request.Context()
	order, err := h.orders.GetByOrderNo(ctx, input.OrderNo)
	if err != nil {
		writeError(c, err)
		return
	}

	st, err := h.strategies.Resolve(order.Channel)
	if err != nil {
		writeError(c, err)
		return
	}
	if !st.Validate(order) {
		response.Error(c, http.StatusBadRequest, response.ErrOrderInvalid, "Order rejected by channel validation")
		return
	}

	rc := &model.RepairContext{Source: model.SourceManual}
	if operator := c.GetString("operator"); operator != "" {
		rc.Raw = map[string]any{"operator": operator}
	}

	result, err := h.repair.RepairWithContext(ctx, order, action, rc)
	if err != nil {
		writeError(c, err)
		return
	}
	if result.Skipped {
		response.Accepted(c, response.ErrRepairInProgress, "Order is being repaired, retry later", result)
		return
	}
	response.Success(c, result)
}

// SyncOrder 单笔订单对账
func (h *PaymentHandler) SyncOrder(c *gin.Context) {
	result, err := h.sync.SyncOrder(c.Request.Context(), c.Param("order_no"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// Sweep 立即执行一次批量对账
func (h *PaymentHandler) Sweep(c *gin.Context) {
	report, err := h.sync.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, report)
}

// AlipayNotify 支付宝回调
func (h *PaymentHandler) AlipayNotify(c *gin.Context) {
	// 支付宝回调是 POST Form 格式
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusOK, "fail")
		return
	}
	if err := h.callback.HandleNotify(c.Request.Context(), model.ChannelAlipay, c.Request.Form); err != nil {
		logger.Log.Warn("Alipay notify rejected", zap.Error(err))
		c.String(http.StatusOK, "fail") // 告诉支付宝处理失败，它会重试
		return
	}
	c.String(http.StatusOK, "success")
}

// WechatNotify 微信支付回调
func (h *PaymentHandler) WechatNotify(c *gin.Context) {
	// 验签需要原始请求头和报文
	if err := h.callback.HandleNotify(c.Request.Context(), model.ChannelWechat, c.Request); err != nil {
		logger.Log.Warn("Wechat notify rejected", zap.Error(err))
		// 返回 4xx/5xx 表示失败
		c.JSON(http.StatusInternalServerError, gin.H{"code": "FAIL", "message": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// writeError 业务错误映射为响应码
func writeError(c *gin.Context, err error) {
	var inconsistency *service.InconsistencyError
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		response.Error(c, http.StatusNotFound, response.ErrOrderNotFound, "Order not found")
	case errors.Is(err, service.ErrGatewayRejected):
		response.Error(c, http.StatusConflict, response.ErrGatewayRejected, err.Error())
	case errors.As(err, &inconsistency):
		response.Error(c, http.StatusInternalServerError, response.ErrInconsistent, err.Error())
	case errors.Is(err, service.ErrStrategyNotFound):
		response.Error(c, http.StatusInternalServerError, response.ErrChannelConfig, err.Error())
	case errors.Is(err, service.ErrInvalidOrder):
		response.Error(c, http.StatusBadRequest, response.ErrOrderInvalid, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}
