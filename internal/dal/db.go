package dal

import (
	"context"
	"fmt"
	"net"
	"time"

	proxymysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/proxy"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/utrading/utrading-pod-stream/config"
	"github.com/utrading/utrading-pod-stream/internal/models"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// proxyNet is the DSN network name routed through the SOCKS5 dialer.
const proxyNet = "socks5"

type GormLogger struct{}

func (l GormLogger) Printf(f string, args ...any) {
	log.Printf(f, args...)
}

// registerProxyDialer makes DSNs using the socks5 network dial through
// proxyAddr.
func registerProxyDialer(proxyAddr string) error {
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, &net.Dialer{})
	if err != nil {
		return fmt.Errorf("create proxy dialer failed: %w", err)
	}

	proxymysql.RegisterDialContext(proxyNet, func(ctx context.Context, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, "tcp", addr)
		}
		return dialer.Dial("tcp", addr)
	})
	return nil
}

// mysqlDSN rewrites the DSN network to the proxy one when a proxy is set.
func mysqlDSN(cfg config.Archive) (string, error) {
	if cfg.ProxyAddr == "" {
		return cfg.DSN, nil
	}
	parsed, err := proxymysql.ParseDSN(cfg.DSN)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	parsed.Net = proxyNet
	return parsed.FormatDSN(), nil
}

// Open connects the archive database and migrates its tables.
func Open(cfg config.Archive) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		if cfg.ProxyAddr != "" {
			if err := registerProxyDialer(cfg.ProxyAddr); err != nil {
				return nil, err
			}
			logger.Infof("mysql proxy enabled: %s", cfg.ProxyAddr)
		}
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", cfg.Driver)
	}

	newLogger := gormlogger.New(
		GormLogger{}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("connect %s failed: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB failed: %w", err)
	}
	if cfg.MaxIdleConnections > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	if cfg.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Info().Str("driver", cfg.Driver).
		Int("max_idle", cfg.MaxIdleConnections).
		Int("max_open", cfg.MaxOpenConnections).
		Msg("archive database connected")

	AutoMigrate(db)
	return db, nil
}

func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error().Err(err).Msg("get sql.DB failed")
		return
	}
	if err = sqlDB.Close(); err != nil {
		logger.Error().Err(err).Msg("close archive database failed")
		return
	}
	logger.Infof("archive database closed")
}

// AutoMigrate migrates every archive table. Failures are logged and do not
// stop startup.
func AutoMigrate(db *gorm.DB) {
	modelList := []any{
		&models.ClobBidRecord{},
		&models.AuctionBidRecord{},
	}

	for _, model := range modelList {
		if err := db.AutoMigrate(model); err != nil {
			log.Warn().Err(err).
				Str("table", getTableName(model)).
				Msg("auto migrate failed, continuing anyway")
		} else {
			log.Info().Str("table", getTableName(model)).Msg("auto migrate success")
		}
	}
}

func getTableName(model any) string {
	if t, ok := model.(interface{ TableName() string }); ok {
		return t.TableName()
	}
	return "unknown"
}
