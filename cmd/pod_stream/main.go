package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"

	"github.com/utrading/utrading-pod-stream/config"
	"github.com/utrading/utrading-pod-stream/internal/cleaner"
	"github.com/utrading/utrading-pod-stream/internal/dal"
	"github.com/utrading/utrading-pod-stream/internal/dao"
	"github.com/utrading/utrading-pod-stream/internal/manager"
	"github.com/utrading/utrading-pod-stream/internal/monitor"
	"github.com/utrading/utrading-pod-stream/internal/nats"
	"github.com/utrading/utrading-pod-stream/internal/processor"
	"github.com/utrading/utrading-pod-stream/internal/ws"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
	"github.com/utrading/utrading-pod-stream/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	if err = initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Str("config", configFile).Msg("pod_stream service starting...")
	monitor.InitMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// archive
	var (
		db          *gorm.DB
		bidDAO      *dao.BidDAO
		batchWriter *processor.BatchWriter
		dataCleaner *cleaner.Cleaner
	)
	if cfg.Archive.Enabled {
		db, err = dal.Open(cfg.Archive)
		if err != nil {
			logger.Fatal().Err(err).Msg("open archive failed")
		}
		bidDAO = dao.NewBidDAO(db)

		batchWriter = processor.NewBatchWriter(bidDAO, &processor.BatchWriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		})
		batchWriter.Start()

		dataCleaner = cleaner.NewCleaner(bidDAO, cfg.Archive.Retention, cfg.Archive.CleanInterval)
		dataCleaner.Start()
	}

	// relay
	var (
		publisher    *nats.Publisher
		relay        processor.Publisher
		publisherRef monitor.PublisherRef
	)
	if cfg.NATS.Enabled {
		publisher, err = nats.NewPublisher(cfg.NATS.Endpoint, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("init nats publisher failed")
		}
		relay, publisherRef = publisher, publisher
	}

	conn := ws.NewConnection(cfg.WS.URL,
		ws.WithDialer(newDialer(cfg.WS)),
		ws.WithMaxSubscriptions(cfg.WS.MaxSubscriptions),
		ws.WithReconnect(reconnectPolicy(cfg.WS.Reconnect)),
	)
	conn.AddEventListener(logEvent)

	managerOpts := []manager.Opt{
		manager.WithRecoveryBackOff(cfg.WS.Reconnect.InitialDelay, cfg.WS.Reconnect.MaxDelay),
	}
	if bidDAO != nil {
		managerOpts = append(managerOpts, manager.WithArchiveCounter(bidDAO))
	}
	subManager, err := manager.NewSubscriptionManager(conn, cfg.Relay, cfg.WS.BufferSize, relay, batchWriter, managerOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("init subscription manager failed")
	}
	if bidDAO != nil {
		if err = subManager.Deduper().LoadFromDB(bidDAO); err != nil {
			logger.Warn().Err(err).Msg("failed to load archived bids into dedup cache")
		}
	}

	healthServer := monitor.NewHealthServer(cfg.Health.Addr, conn, publisherRef, subManager)
	if err = healthServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	if err = connect(ctx, conn, cfg); err != nil {
		logger.Fatal().Err(err).Str("url", cfg.WS.URL).Msg("connect to node failed")
	}
	if err = subManager.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start subscription manager failed")
	}

	logger.Info().
		Str("ws_url", cfg.WS.URL).
		Str("health_addr", healthServer.Addr()).
		Bool("nats", cfg.NATS.Enabled).
		Bool("archive", cfg.Archive.Enabled).
		Msg("pod_stream service started successfully")

	sigproc.GracefulShutdown(30*time.Second, func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")
		defer cancel()

		if dataCleaner != nil {
			dataCleaner.Stop()
		}

		subManager.Close()
		if err := conn.Close(); err != nil {
			logger.Warn().Err(err).Msg("close node connection")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("stop health server")
		}

		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn().Err(err).Msg("close nats publisher")
			}
		}

		if batchWriter != nil {
			if err := batchWriter.GracefulShutdown(10 * time.Second); err != nil {
				logger.Warn().Err(err).Msg("batch writer shutdown")
			}
		}
		dal.Close(db)

		logger.Info().Msg("pod_stream service stopped")
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		SetDir(cfg.Logger.Dir).
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}

func newDialer(c config.WS) *ws.GorillaDialer {
	opts := []ws.DialerOpt{
		ws.WithHandshakeTimeout(c.HandshakeTimeout),
		ws.WithCloseTimeout(c.CloseTimeout),
	}
	if c.ProxyAddr != "" {
		opts = append(opts, ws.WithSOCKS5Proxy(c.ProxyAddr))
	}
	return ws.NewGorillaDialer(opts...)
}

func reconnectPolicy(r config.Reconnect) ws.ReconnectPolicy {
	if r.Policy == "never" {
		return ws.NeverReconnect()
	}
	p := ws.ReconnectPolicy{
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
		MaxAttempts:  r.MaxAttempts,
	}
	if r.Unlimited {
		p.MaxAttempts = ws.UnlimitedAttempts
	}
	return p
}

// connect retries the first connect; later drops are handled by the
// connection's own reconnect policy.
func connect(ctx context.Context, conn *ws.Connection, cfg *config.Config) error {
	b := backoff.NewExponentialBackOff()
	if cfg.WS.Reconnect.InitialDelay > 0 {
		b.InitialInterval = cfg.WS.Reconnect.InitialDelay
	}
	if cfg.WS.Reconnect.MaxDelay > 0 {
		b.MaxInterval = cfg.WS.Reconnect.MaxDelay
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warn().Err(err).Dur("retry_in", d).Msg("connect to node failed, retrying")
		}),
	}
	if cfg.Startup.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(cfg.Startup.MaxTries))
	}
	if cfg.Startup.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(cfg.Startup.MaxElapsed))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := conn.Connect(ctx)
		if errors.Is(err, ws.ErrConnectAborted) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, opts...)
	return err
}

func logEvent(ev ws.Event) {
	switch ev.Type {
	case ws.EventError:
		logger.Error().Err(ev.Err).Str("reason", ev.Reason).Msg("node connection error")
	case ws.EventReconnecting:
		logger.Warn().Int("attempt", ev.Attempt).Dur("delay", ev.Delay).Msg("reconnecting to node")
	default:
		logger.Info().Str("event", ev.String()).Msg("node connection event")
	}
}
