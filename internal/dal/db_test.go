package dal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-pod-stream/config"
	"github.com/utrading/utrading-pod-stream/internal/models"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := Open(config.Archive{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "archive.db")})
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, db.Migrator().HasTable(&models.ClobBidRecord{}))
	assert.True(t, db.Migrator().HasTable(&models.AuctionBidRecord{}))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.Archive{Driver: "postgres", DSN: "x"})
	assert.ErrorContains(t, err, "postgres")
}

func TestMySQLDSNThroughProxy(t *testing.T) {
	dsn, err := mysqlDSN(config.Archive{DSN: "user:pw@tcp(db.internal:3306)/pod?parseTime=true"})
	require.NoError(t, err)
	assert.Equal(t, "user:pw@tcp(db.internal:3306)/pod?parseTime=true", dsn)

	dsn, err = mysqlDSN(config.Archive{
		DSN:       "user:pw@tcp(db.internal:3306)/pod?parseTime=true",
		ProxyAddr: "127.0.0.1:1080",
	})
	require.NoError(t, err)
	assert.Contains(t, dsn, "@socks5(db.internal:3306)/pod")

	_, err = mysqlDSN(config.Archive{DSN: "not a dsn", ProxyAddr: "127.0.0.1:1080"})
	assert.Error(t, err)
}
