package repository

import (
	"context"
	"errors"

	"paycenter/internal/domain/allocation/model"
	"paycenter/pkg/database"

	"gorm.io/gorm"
)

// AllocOrderRepository 分账订单与明细
type AllocOrderRepository interface {
	Create(ctx context.Context, order *model.AllocOrder) error
	GetByAllocNo(ctx context.Context, allocNo string) (*model.AllocOrder, error)
	// SaveResult 更新明细结果与订单汇总结果
	SaveResult(ctx context.Context, order *model.AllocOrder) error
}

type allocOrderRepository struct {
	db *gorm.DB
}

func NewAllocOrderRepository(db *gorm.DB) AllocOrderRepository {
	return &allocOrderRepository{db: db}
}

func (r *allocOrderRepository) Create(ctx context.Context, order *model.AllocOrder) error {
	if err := database.Conn(ctx, r.db).Create(order).Error; err != nil {
		if database.IsDuplicate(err) {
			return ErrAllocOrderExists
		}
		return err
	}
	return nil
}

func (r *allocOrderRepository) GetByAllocNo(ctx context.Context, allocNo string) (*model.AllocOrder, error) {
	var order model.AllocOrder
	err := database.Conn(ctx, r.db).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("alloc_no = ?", allocNo).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAllocOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *allocOrderRepository) SaveResult(ctx context.Context, order *model.AllocOrder) error {
	db := database.Conn(ctx, r.db)
	for _, d := range order.Details {
		err := db.Model(d).
			Select("result", "error_code", "error_msg", "finish_time", "updated_at").
			Updates(d).Error
		if err != nil {
			return err
		}
	}
	return db.Model(order).Select("result", "finish_time", "updated_at").Updates(order).Error
}
