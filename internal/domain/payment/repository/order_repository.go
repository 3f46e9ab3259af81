package repository

import (
	"context"
	"errors"
	"time"

	"paycenter/internal/domain/payment/model"
	"paycenter/pkg/database"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	// ErrStaleOrder 行状态已被其他请求修改
	ErrStaleOrder = errors.New("order changed by another request")
)

// OrderRepository 订单存储，写操作在 ctx 携带的事务中执行
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)
	// UpdateByID 按主键整行更新，仅当库中状态仍为 expectStatus 时生效
	UpdateByID(ctx context.Context, order *model.Order, expectStatus string) error
	// ListPending 创建时间早于 before 的待支付订单
	ListPending(ctx context.Context, before time.Time, limit int) ([]*model.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	if err := database.Conn(ctx, r.db).Create(order).Error; err != nil {
		if database.IsDuplicate(err) {
			return ErrDuplicateRecord
		}
		return err
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	if err := database.Conn(ctx, r.db).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	if err := database.Conn(ctx, r.db).Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) UpdateByID(ctx context.Context, order *model.Order, expectStatus string) error {
	db := database.Conn(ctx, r.db)
	// Select("*") 让 nil 时间字段也写回 NULL
	result := db.Model(order).
		Where("status = ?", expectStatus).
		Select("*").
		Omit("id", "created_at").
		Updates(order)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := db.Model(&model.Order{}).Where("id = ?", order.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return ErrStaleOrder
}

func (r *orderRepository) ListPending(ctx context.Context, before time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := database.Conn(ctx, r.db).
		Where("status = ? AND created_at < ?", model.OrderStatusPending, before).
		Order("id").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
