package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func TestMigrateCreatesTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, model := range models.All() {
		require.True(t, db.Migrator().HasTable(model))
	}
}

func TestConnectNATSDisabledWithoutURL(t *testing.T) {
	conn, err := ConnectNATS("", "test", zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, conn)
}

func TestConnectersRejectEmptyURLs(t *testing.T) {
	ctx := context.Background()
	_, err := ConnectPostgres(ctx, "", DefaultPoolOptions())
	require.Error(t, err)

	_, err = ConnectRedis(ctx, "")
	require.Error(t, err)
}

func TestConnectRedisPingsServer(t *testing.T) {
	mini := miniredis.RunT(t)
	addr := mini.Addr()

	client, err := ConnectRedis(context.Background(), "redis://"+addr+"/0")
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	mini.Close()
	_, err = ConnectRedis(context.Background(), "redis://"+addr+"/0")
	require.Error(t, err)
}
