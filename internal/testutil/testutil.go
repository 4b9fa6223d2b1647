// Package testutil wires in-memory backends for package tests.
package testutil

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/swap-market/internal/cache"
	"github.com/oggyb/swap-market/internal/db"
	"github.com/oggyb/swap-market/internal/domain"
	"github.com/oggyb/swap-market/internal/logger"
	"github.com/oggyb/swap-market/internal/server"
)

// NewDB opens a migrated in-memory SQLite database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// NewRedis starts a miniredis bound to the test lifetime.
func NewRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &cache.RedisCache{Client: client}, mr
}

// Logger discards everything.
func Logger() *slog.Logger {
	return logger.Discard()
}

// SeedAccount inserts an account with the given balance.
func SeedAccount(t *testing.T, gdb *gorm.DB, userID string, coins int64, tier domain.Tier) {
	t.Helper()
	require.NoError(t, gdb.Create(&db.Account{
		UserID:      userID,
		DisplayName: userID,
		Tier:        string(tier),
		CoinBalance: coins,
	}).Error)
}

// Balance reads the current coin balance of an account.
func Balance(t *testing.T, gdb *gorm.DB, userID string) int64 {
	t.Helper()
	var a db.Account
	require.NoError(t, gdb.First(&a, "user_id = ?", userID).Error)
	return a.CoinBalance
}

// Dial serves the registrars on an in-memory listener and returns a client
// connection using the JSON codec.
func Dial(t *testing.T, registrars ...server.Registrar) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(Logger(), nil, registrars...)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		server.ClientCodec(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
