package repository

import (
	"Lattice/internal/model"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 内存 sqlite，单连接保证并发用例行为确定
// TranslateError 必须开启，去重逻辑依赖 gorm.ErrDuplicatedKey。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Conversation{},
		&model.ConversationMember{},
		&model.UserBlock{},
		&model.User{},
	))
	return db
}
