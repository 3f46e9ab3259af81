package repository

import (
	"context"
	"errors"

	"paycenter/internal/domain/allocation/model"
	"paycenter/pkg/database"

	"gorm.io/gorm"
)

var (
	ErrReceiverNotFound   = errors.New("receiver not found")
	ErrReceiverExists     = errors.New("receiver already exists")
	ErrAllocOrderNotFound = errors.New("allocation order not found")
	ErrAllocOrderExists   = errors.New("allocation order already exists")
)

// ReceiverRepository 分账接收方存储
type ReceiverRepository interface {
	Create(ctx context.Context, r *model.AllocReceiver) error
	GetByNo(ctx context.Context, receiverNo string) (*model.AllocReceiver, error)
	Update(ctx context.Context, r *model.AllocReceiver) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, channel string, offset, limit int) ([]*model.AllocReceiver, int64, error)
}

type receiverRepository struct {
	db *gorm.DB
}

func NewReceiverRepository(db *gorm.DB) ReceiverRepository {
	return &receiverRepository{db: db}
}

func (r *receiverRepository) Create(ctx context.Context, receiver *model.AllocReceiver) error {
	if err := database.Conn(ctx, r.db).Create(receiver).Error; err != nil {
		if database.IsDuplicate(err) {
			return ErrReceiverExists
		}
		return err
	}
	return nil
}

func (r *receiverRepository) GetByNo(ctx context.Context, receiverNo string) (*model.AllocReceiver, error) {
	var receiver model.AllocReceiver
	if err := database.Conn(ctx, r.db).Where("receiver_no = ?", receiverNo).First(&receiver).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, err
	}
	return &receiver, nil
}

func (r *receiverRepository) Update(ctx context.Context, receiver *model.AllocReceiver) error {
	result := database.Conn(ctx, r.db).Model(receiver).
		Select("*").Omit("id", "created_at", "receiver_no").
		Updates(receiver)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReceiverNotFound
	}
	return nil
}

func (r *receiverRepository) Delete(ctx context.Context, id int64) error {
	result := database.Conn(ctx, r.db).Delete(&model.AllocReceiver{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReceiverNotFound
	}
	return nil
}

// List channel 为空时返回全部渠道
func (r *receiverRepository) List(ctx context.Context, channel string, offset, limit int) ([]*model.AllocReceiver, int64, error) {
	var (
		receivers []*model.AllocReceiver
		total     int64
	)
	q := database.Conn(ctx, r.db).Model(&model.AllocReceiver{})
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&receivers).Error
	return receivers, total, err
}
