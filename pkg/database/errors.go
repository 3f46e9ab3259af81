package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation PostgreSQL 唯一约束冲突
const pgUniqueViolation = "23505"

// IsDuplicate 唯一约束冲突，兼容 TranslateError 与原始 pgx 错误
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
