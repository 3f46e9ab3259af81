package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type ledgerRow struct {
	ID   int64 `gorm:"primaryKey"`
	Note string
}

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&ledgerRow{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestGormTransactor(t *testing.T) {
	t.Run("Commit makes writes visible", func(t *testing.T) {
		db := newTestDB(t)
		tr := NewTransactor(db)

		err := tr.Exec(context.Background(), func(ctx context.Context) error {
			return Conn(ctx, db).Create(&ledgerRow{ID: 1, Note: "a"}).Error
		})
		require.NoError(t, err)

		var count int64
		db.Model(&ledgerRow{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Error rolls back every write in fn", func(t *testing.T) {
		db := newTestDB(t)
		tr := NewTransactor(db)
		boom := errors.New("boom")

		err := tr.Exec(context.Background(), func(ctx context.Context) error {
			if err := Conn(ctx, db).Create(&ledgerRow{ID: 1, Note: "a"}).Error; err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var count int64
		db.Model(&ledgerRow{}).Count(&count)
		assert.Equal(t, int64(0), count)
	})

	t.Run("Conn outside a transaction uses db", func(t *testing.T) {
		db := newTestDB(t)
		conn := Conn(context.Background(), db)
		require.NoError(t, conn.Create(&ledgerRow{ID: 2}).Error)
	})
}
