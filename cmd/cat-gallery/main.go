package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/cat-gallery/internal/config"
	"github.com/Sternrassler/cat-gallery/internal/tui"
	"github.com/Sternrassler/cat-gallery/pkg/catapi"
	"github.com/Sternrassler/cat-gallery/pkg/gallery"
	"github.com/Sternrassler/cat-gallery/pkg/logging"
	"github.com/Sternrassler/cat-gallery/pkg/metrics"
	"github.com/Sternrassler/cat-gallery/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const usage = `Usage:
  cat-gallery [flags]             browse TheCatAPI images in the terminal
  cat-gallery dump [flags]        write pages of cats as JSON lines to stdout

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "cat-gallery: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line overrides of config.Config.
type options struct {
	dump        bool
	pages       int
	concurrency int
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Flags override the environment, so validation waits until both are applied.
	cfg, err := config.Parse(os.LookupEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := options{}
	if len(args) > 0 && args[0] == "dump" {
		opts.dump = true
		args = args[1:]
	}

	fs := flag.NewFlagSet("cat-gallery", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	bindFlags(fs, &cfg, &opts)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logCfg := cfg.Logging()
	if opts.dump {
		logCfg.Output = stderr
	} else if logCfg.File == "" {
		// The terminal belongs to the UI.
		logCfg.Output = io.Discard
	}
	logger, logCloser, err := logging.SetupFile(logCfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	redisClient := connectRedis(ctx, cfg.RedisURL, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	apiCfg := cfg.CatAPI()
	apiCfg.Redis = redisClient
	client, err := catapi.New(apiCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	if opts.dump {
		n, err := dump(ctx, client, cfg, opts, stdout)
		logger.Info().Int("cats", n).Msg("Dump finished")
		return err
	}

	return browse(client, cfg, logger)
}

func bindFlags(fs *flag.FlagSet, cfg *config.Config, opts *options) {
	fs.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "image search endpoint (CAT_API_URL)")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "TheCatAPI key (CAT_API_KEY)")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header (USER_AGENT)")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis url for the shared rate limit gate (REDIS_URL)")
	fs.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "cats per page (PAGE_SIZE)")
	fs.Func("order", "asc, desc or rand (ORDER)", func(s string) error {
		order, err := catapi.ParseOrder(s)
		if err != nil {
			return err
		}
		cfg.Order = order
		return nil
	})
	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "page change debounce window (DEBOUNCE)")
	fs.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP request timeout (HTTP_TIMEOUT)")
	fs.Func("log-level", "debug, info, warn, error or disabled (LOG_LEVEL)", func(s string) error {
		cfg.LogLevel = logging.LogLevel(s)
		return nil
	})
	fs.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "human readable logs (LOG_PRETTY)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append logs to this file (LOG_FILE)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve /metrics and /health on this address (METRICS_ADDR)")

	fs.IntVar(&opts.pages, "pages", 1, "dump: number of pages to fetch (0 = all)")
	fs.IntVar(&opts.concurrency, "concurrency", pagination.DefaultConfig().MaxConcurrency, "dump: parallel requests")
}

// connectRedis returns nil when no url is configured or redis is unreachable;
// the client then runs without the shared rate limit gate.
func connectRedis(ctx context.Context, rawURL string, logger zerolog.Logger) *redis.Client {
	if rawURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid REDIS_URL, rate limit gate disabled")
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unavailable, rate limit gate disabled")
		client.Close()
		return nil
	}

	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return client
}

func browse(client *catapi.Client, cfg config.Config, logger zerolog.Logger) error {
	state := gallery.NewState()
	ctrl, err := gallery.NewController(client, state, cfg.Gallery(), logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	return tui.Run(ctrl, logger)
}

// dump writes the cats of the requested pages as JSON lines in page order and
// returns how many were written.
func dump(ctx context.Context, client *catapi.Client, cfg config.Config, opts options, w io.Writer) (int, error) {
	if opts.pages < 0 {
		return 0, fmt.Errorf("pages must be >= 0 (got %d)", opts.pages)
	}

	source := catapi.PageSource{Client: client, Limit: cfg.PageSize, Order: cfg.Order}
	batchCfg := pagination.DefaultConfig()
	batchCfg.MaxPages = opts.pages
	if opts.concurrency > 0 {
		batchCfg.MaxConcurrency = opts.concurrency
	}
	if cfg.HTTPTimeout > 0 {
		batchCfg.Timeout = cfg.HTTPTimeout
	}

	pages, fetchErr := pagination.NewBatchFetcher[catapi.Cat](source, batchCfg).FetchAllPages(ctx)

	enc := json.NewEncoder(w)
	written := 0
	for _, cat := range pagination.Flatten(pages) {
		if err := enc.Encode(cat); err != nil {
			return written, fmt.Errorf("write cat %s: %w", cat.ID, err)
		}
		written++
	}
	return written, fetchErr
}
