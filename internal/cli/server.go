package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenlimit/warden/internal/clock"
	"github.com/wardenlimit/warden/internal/config"
	"github.com/wardenlimit/warden/internal/engine"
	"github.com/wardenlimit/warden/internal/event"
	"github.com/wardenlimit/warden/internal/rule"
	"github.com/wardenlimit/warden/internal/server"
	"github.com/wardenlimit/warden/internal/store"
	"github.com/wardenlimit/warden/internal/throttle"
)

func newServerCmd() *cobra.Command {
	var (
		configFile      string
		addr            string
		backend         string
		redisHost       string
		redisPort       int
		redisPassword   string
		redisDB         int
		cleanupInterval time.Duration
		sampleInterval  time.Duration
		initialLoad     float64
		loadFile        string
		logJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the warden engine and HTTP API",
		Long: `Starts the admission-control engine with the three default rules, the
management API, and the websocket event stream.

Endpoints:
  GET  /health                   Health check
  POST /api/v1/check             Admission decision
  GET  /api/v1/rules             List rules
  POST /api/v1/rules             Add a rule
  DEL  /api/v1/rules/{id}        Remove a rule
  GET  /api/v1/blocked           List blocked identifiers
  POST /api/v1/blocked           Block an identifier
  DEL  /api/v1/blocked/{id}      Unblock an identifier
  GET  /api/v1/stats             Engine statistics
  WS   /ws                       Live event stream`,
		Example: `  warden server
  warden server --addr :9090 --cleanup-interval 30s
  warden server --config warden.json --storage redis --redis-host redis.internal`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFile(configFile)
				if err != nil {
					return err
				}
			}

			// Flags beat config file values when set.
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("storage") {
				cfg.Storage.Backend = backend
			}
			if cmd.Flags().Changed("redis-host") {
				cfg.Storage.Redis.Host = redisHost
			}
			if cmd.Flags().Changed("redis-port") {
				cfg.Storage.Redis.Port = redisPort
			}
			if cmd.Flags().Changed("redis-password") {
				cfg.Storage.Redis.Password = redisPassword
			}
			if cmd.Flags().Changed("redis-db") {
				cfg.Storage.Redis.DB = redisDB
			}
			if cmd.Flags().Changed("cleanup-interval") {
				cfg.Cleanup.Interval = cleanupInterval
			}
			if cmd.Flags().Changed("load-sample-interval") {
				cfg.Load.SampleInterval = sampleInterval
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(logJSON)
			clk := clock.NewRealClock()

			blocks, err := newBlockStore(cfg, clk)
			if err != nil {
				return err
			}
			defer blocks.Close()

			rules := rule.NewStore(clk)
			eng := engine.New(engine.Options{
				Clock:  clk,
				Logger: logger,
				Rules:  rules,
				Blocks: blocks,
			})
			for _, spec := range cfg.Rules {
				r, err := spec.ToRule()
				if err != nil {
					return fmt.Errorf("config rule %q: %w", spec.Name, err)
				}
				if err := eng.AddRule(r); err != nil {
					return fmt.Errorf("config rule %q: %w", spec.Name, err)
				}
			}
			eng.LoadSource().Set(initialLoad)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go eng.RunCleanupLoop(ctx, cfg.Cleanup.Interval)
			go logEvents(ctx, eng, logger)
			if loadFile != "" {
				go eng.LoadSource().Run(ctx, clk, cfg.Load.SampleInterval, fileLoadProvider(loadFile), logger)
			}

			srv := server.New(cfg.Server.Addr, eng, clk, logger)

			logger.Info("starting warden",
				"addr", cfg.Server.Addr,
				"storage", cfg.Storage.Backend,
				"rules", rules.Len(),
			)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to JSON config file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&backend, "storage", store.BackendMemory, "block store backend (memory, redis)")
	cmd.Flags().StringVar(&redisHost, "redis-host", "localhost", "redis host")
	cmd.Flags().IntVar(&redisPort, "redis-port", 6379, "redis port")
	cmd.Flags().StringVar(&redisPassword, "redis-password", "", "redis password")
	cmd.Flags().IntVar(&redisDB, "redis-db", 0, "redis database index")
	cmd.Flags().DurationVar(&cleanupInterval, "cleanup-interval", time.Minute, "block entry sweep interval")
	cmd.Flags().DurationVar(&sampleInterval, "load-sample-interval", 10*time.Second, "system load sample interval")
	cmd.Flags().Float64Var(&initialLoad, "load", 0, "initial system load sample (0..1)")
	cmd.Flags().StringVar(&loadFile, "load-file", "", "file holding a load sample (0..1), polled on the sample interval")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "log as JSON instead of text")

	return cmd
}

func newLogger(asJSON bool) *slog.Logger {
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newBlockStore(cfg config.Config, clk clock.Clock) (store.BlockStore, error) {
	switch cfg.Storage.Backend {
	case store.BackendMemory:
		return store.NewMemoryStore(clk), nil
	case store.BackendRedis:
		return store.NewRedisStore(&store.RedisConfig{
			Host:     cfg.Storage.Redis.Host,
			Port:     cfg.Storage.Redis.Port,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		}, clk)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// fileLoadProvider reads a load sample written by an external monitor, e.g.
// a cron job publishing normalized CPU or connection pressure.
func fileLoadProvider(path string) throttle.Provider {
	return func(ctx context.Context) (float64, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %s: %w", path, err)
		}
		return v, nil
	}
}

// logEvents mirrors the notification surface into the structured log.
func logEvents(ctx context.Context, eng *engine.Engine, logger *slog.Logger) {
	events, cancel := eng.Events().Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			attrs := make([]any, 0, 2*len(e.Payload))
			for k, v := range e.Payload {
				attrs = append(attrs, k, v)
			}
			switch e.Topic {
			case event.TopicCleanupError, event.TopicRateLimitError:
				logger.Error(string(e.Topic), attrs...)
			default:
				logger.Info(string(e.Topic), attrs...)
			}
		}
	}
}
