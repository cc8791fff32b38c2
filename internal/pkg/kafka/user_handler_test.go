package kafka

import (
	"Lattice/internal/model"
	"Lattice/internal/repository"
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupUserHandler(t *testing.T) (*UserHandler, repository.UserRepo) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))

	repo := repository.NewUserRepo(db)
	return NewUserHandler(repo), repo
}

func canalMsg(payload string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Value: []byte(payload)}
}

func TestUserHandlerUpsert(t *testing.T) {
	h, repo := setupUserHandler(t)
	ctx := context.Background()

	err := h.logic(ctx, canalMsg(`{
		"table": "users",
		"type": "INSERT",
		"data": [{"id": "7", "username": "alice", "avatar_url": "http://a/x.png", "is_deleted": "0"}]
	}`))
	require.NoError(t, err)

	user, err := repo.GetUserById(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "alice", user.Username)

	// 同一行的 UPDATE 幂等覆盖
	err = h.logic(ctx, canalMsg(`{
		"table": "users",
		"type": "UPDATE",
		"data": [{"id": "7", "username": "alice2", "avatar_url": "", "is_deleted": "0"}]
	}`))
	require.NoError(t, err)

	user, err = repo.GetUserById(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "alice2", user.Username)
}

func TestUserHandlerDelete(t *testing.T) {
	h, repo := setupUserHandler(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertUser(ctx, &model.User{ID: 7, Username: "alice"}))

	err := h.logic(ctx, canalMsg(`{
		"table": "users",
		"type": "UPDATE",
		"data": [{"id": "7", "username": "alice", "is_deleted": "1"}]
	}`))
	require.NoError(t, err)

	// 软删：镜像行保留，标记删除
	user, err := repo.GetUserById(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.True(t, user.IsDeleted)
}

func TestUserHandlerWrongTable(t *testing.T) {
	h, _ := setupUserHandler(t)

	err := h.logic(context.Background(), canalMsg(`{
		"table": "posts",
		"type": "INSERT",
		"data": [{"id": "1"}]
	}`))
	require.Error(t, err)
}
