package handler

import (
	"errors"
	"net/http"
	"strconv"

	"paycenter/internal/domain/allocation/repository"
	"paycenter/internal/domain/allocation/service"
	"paycenter/internal/domain/allocation/strategy"
	"paycenter/pkg/response"

	"github.com/gin-gonic/gin"
)

type AllocationHandler struct {
	receivers service.ReceiverService
	orders    service.AllocOrderService
}

func NewAllocationHandler(receivers service.ReceiverService, orders service.AllocOrderService) *AllocationHandler {
	return &AllocationHandler{receivers: receivers, orders: orders}
}

// AddReceiver 新增分账接收方（未绑定）
func (h *AllocationHandler) AddReceiver(c *gin.Context) {
	var input service.AddReceiverInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	receiver, err := h.receivers.Add(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, receiver)
}

func (h *AllocationHandler) BindReceiver(c *gin.Context) {
	receiver, err := h.receivers.Bind(c.Request.Context(), c.Param("receiver_no"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, receiver)
}

func (h *AllocationHandler) UnbindReceiver(c *gin.Context) {
	receiver, err := h.receivers.Unbind(c.Request.Context(), c.Param("receiver_no"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, receiver)
}

func (h *AllocationHandler) RemoveReceiver(c *gin.Context) {
	if err := h.receivers.Remove(c.Request.Context(), c.Param("receiver_no")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *AllocationHandler) GetReceiver(c *gin.Context) {
	receiver, err := h.receivers.Get(c.Request.Context(), c.Param("receiver_no"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, receiver)
}

// ListReceivers 分页查询，channel 为空时返回全部渠道
func (h *AllocationHandler) ListReceivers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	items, total, err := h.receivers.List(c.Request.Context(), c.Query("channel"), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  items,
		"total": total,
		"page":  page,
	})
}

func (h *AllocationHandler) ReceiverTypes(c *gin.Context) {
	response.Success(c, h.receivers.SupportedTypes())
}

func (h *AllocationHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("alloc_no"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

type ApplyResultsInput struct {
	Details []service.DetailOutcome `json:"details" binding:"required,min=1,dive"`
}

// ApplyResults 回写网关分账结果
func (h *AllocationHandler) ApplyResults(c *gin.Context) {
	var input ApplyResultsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	order, err := h.orders.ApplyResults(c.Request.Context(), c.Param("alloc_no"), input.Details)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrReceiverNotFound):
		response.Error(c, http.StatusNotFound, response.ErrReceiverNotFound, "Receiver not found")
	case errors.Is(err, repository.ErrReceiverExists):
		response.Error(c, http.StatusConflict, response.ErrReceiverExists, "Receiver already exists")
	case errors.Is(err, strategy.ErrInvalidReceiver):
		response.Error(c, http.StatusBadRequest, response.ErrReceiverInvalid, err.Error())
	case errors.Is(err, strategy.ErrStrategyNotFound):
		response.Error(c, http.StatusBadRequest, response.ErrChannelConfig, err.Error())
	case errors.Is(err, service.ErrReceiverBusy):
		response.Error(c, http.StatusConflict, response.ErrReceiverBusy, err.Error())
	case errors.Is(err, service.ErrReceiverBound):
		response.Error(c, http.StatusConflict, response.ErrReceiverBound, err.Error())
	case errors.Is(err, repository.ErrAllocOrderNotFound):
		response.Error(c, http.StatusNotFound, response.ErrAllocNotFound, "Allocation order not found")
	case errors.Is(err, service.ErrDetailNotFound):
		response.Error(c, http.StatusBadRequest, response.ErrAllocDetail, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}
