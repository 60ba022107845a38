package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
)

type WS struct {
	URL              string        `toml:"url"`
	MaxSubscriptions int           `toml:"max_subscriptions"`
	BufferSize       int           `toml:"buffer_size"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
	CloseTimeout     time.Duration `toml:"close_timeout"`
	ProxyAddr        string        `toml:"proxy_addr"`
	Reconnect        Reconnect     `toml:"reconnect"`
}

type Reconnect struct {
	Policy       string        `toml:"policy"` // exponential | never
	InitialDelay time.Duration `toml:"initial_delay"`
	MaxDelay     time.Duration `toml:"max_delay"`
	Multiplier   float64       `toml:"multiplier"`
	MaxAttempts  int           `toml:"max_attempts"`
	Unlimited    bool          `toml:"unlimited"`
}

// Startup bounds the retries of the very first connect.
type Startup struct {
	MaxTries   uint          `toml:"max_tries"`
	MaxElapsed time.Duration `toml:"max_elapsed"`
}

type Relay struct {
	OrderbookIDs  []string      `toml:"orderbook_ids"`
	Depth         int           `toml:"depth"`
	BidIDs        []string      `toml:"bid_ids"`
	AuctionBids   bool          `toml:"auction_bids"`
	AuctionIDs    []any         `toml:"auction_ids"` // numbers or strings
	DedupTTL      time.Duration `toml:"dedup_ttl"`
	BookCacheSize int           `toml:"book_cache_size"`
}

type NATS struct {
	Enabled       bool   `toml:"enabled"`
	Endpoint      string `toml:"endpoint"`
	SubjectPrefix string `toml:"subject_prefix"`
}

type Archive struct {
	Enabled            bool          `toml:"enabled"`
	Driver             string        `toml:"driver"` // mysql | sqlite
	DSN                string        `toml:"dsn"`
	ProxyAddr          string        `toml:"proxy_addr"`
	MaxIdleConnections int           `toml:"max_idle_connections"`
	MaxOpenConnections int           `toml:"max_open_connections"`
	ConnMaxLifetime    time.Duration `toml:"conn_max_lifetime"`
	Retention          time.Duration `toml:"retention"`
	CleanInterval      time.Duration `toml:"clean_interval"`
	BatchSize          int           `toml:"batch_size"`
	FlushInterval      time.Duration `toml:"flush_interval"`
}

type Health struct {
	Addr string `toml:"addr"`
}

type Logger struct {
	Level      string `toml:"level"`
	Dir        string `toml:"dir"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
}

type Config struct {
	WS      WS      `toml:"ws"`
	Startup Startup `toml:"startup"`
	Relay   Relay   `toml:"relay"`
	NATS    NATS    `toml:"nats"`
	Archive Archive `toml:"archive"`
	Health  Health  `toml:"health"`
	Logger  Logger  `toml:"log"`
}

var (
	cfg     *Config
	cfgLock sync.RWMutex
)

func Default() *Config {
	return &Config{
		WS: WS{
			URL:              "ws://localhost:8545/ws",
			MaxSubscriptions: 10,
			BufferSize:       100,
			HandshakeTimeout: 10 * time.Second,
			CloseTimeout:     5 * time.Second,
			Reconnect: Reconnect{
				Policy:       "exponential",
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     30 * time.Second,
				Multiplier:   2,
				MaxAttempts:  10,
			},
		},
		Startup: Startup{
			MaxTries:   5,
			MaxElapsed: time.Minute,
		},
		Relay: Relay{
			Depth:         10,
			DedupTTL:      30 * time.Minute,
			BookCacheSize: 1024,
		},
		NATS: NATS{
			Endpoint:      "nats://localhost:4222",
			SubjectPrefix: "pod",
		},
		Archive: Archive{
			Driver:             "sqlite",
			DSN:                "pod_stream.db",
			MaxIdleConnections: 4,
			MaxOpenConnections: 16,
			ConnMaxLifetime:    2 * time.Hour,
			Retention:          7 * 24 * time.Hour,
			CleanInterval:      time.Hour,
			BatchSize:          100,
			FlushInterval:      100 * time.Millisecond,
		},
		Health: Health{
			Addr: "0.0.0.0:16801",
		},
		Logger: Logger{
			Level:      "info",
			Dir:        "logs",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
		},
	}
}

// Load decodes the file over Default, validates it and makes it current.
func Load(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfgLock.Lock()
	cfg = c
	cfgLock.Unlock()
	return c, nil
}

func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

func (c *Config) Validate() error {
	var errs []error
	if c.WS.URL == "" {
		errs = append(errs, errors.New("ws.url is required"))
	}
	if c.WS.MaxSubscriptions <= 0 {
		errs = append(errs, errors.New("ws.max_subscriptions must be positive"))
	}
	switch c.WS.Reconnect.Policy {
	case "exponential", "never":
	default:
		errs = append(errs, fmt.Errorf("ws.reconnect.policy %q: want exponential or never", c.WS.Reconnect.Policy))
	}
	if c.WS.Reconnect.Multiplier < 0 {
		errs = append(errs, errors.New("ws.reconnect.multiplier must not be negative"))
	}
	if _, err := c.Relay.AuctionIDStrings(); err != nil {
		errs = append(errs, err)
	}
	if c.NATS.Enabled && c.NATS.Endpoint == "" {
		errs = append(errs, errors.New("nats.endpoint is required when nats is enabled"))
	}
	if c.Archive.Enabled {
		switch c.Archive.Driver {
		case "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("archive.driver %q: want mysql or sqlite", c.Archive.Driver))
		}
		if c.Archive.DSN == "" {
			errs = append(errs, errors.New("archive.dsn is required when archive is enabled"))
		}
	}
	return errors.Join(errs...)
}

// AuctionIDStrings renders auction_ids, which TOML allows as integers or
// strings, as strings.
func (r Relay) AuctionIDStrings() ([]string, error) {
	out := make([]string, 0, len(r.AuctionIDs))
	for _, v := range r.AuctionIDs {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("relay.auction_ids: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Streams reports whether any stream is configured.
func (r Relay) Streams() bool {
	return len(r.OrderbookIDs) > 0 || len(r.BidIDs) > 0 || r.AuctionBids
}
