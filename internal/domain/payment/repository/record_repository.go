package repository

import (
	"context"

	"paycenter/internal/domain/payment/model"
	"paycenter/pkg/database"

	"gorm.io/gorm"
)

// RecordRepository 修复记录，只提供追加与查询
type RecordRepository interface {
	Append(ctx context.Context, record *model.RepairRecord) error
	ListByOrderID(ctx context.Context, orderID int64) ([]*model.RepairRecord, error)
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Append(ctx context.Context, record *model.RepairRecord) error {
	if err := database.Conn(ctx, r.db).Create(record).Error; err != nil {
		if database.IsDuplicate(err) {
			return ErrDuplicateRecord
		}
		return err
	}
	return nil
}

func (r *recordRepository) ListByOrderID(ctx context.Context, orderID int64) ([]*model.RepairRecord, error) {
	var records []*model.RepairRecord
	err := database.Conn(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at, id").
		Find(&records).Error
	return records, err
}
