package database

import (
	"context"

	"gorm.io/gorm"
)

// Transactor 在一个数据库事务内执行 fn，事务通过 ctx 传递给仓储层
type Transactor interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}

type contextTxKey struct{}

// GormTransactor 基于 gorm 的事务执行器
type GormTransactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

// Exec 执行事务，fn 返回错误时回滚
func (t *GormTransactor) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ctx = context.WithValue(ctx, contextTxKey{}, tx)
		return fn(ctx)
	})
}

// Conn 返回 ctx 中的事务连接，不在事务中时返回 db
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}
