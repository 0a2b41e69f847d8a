// Command bytebin runs the content storage engine as a standalone HTTP
// service, wiring together the index, storage backends, cache,
// coordinator, housekeeper, and request handlers described by the
// internal packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lucko/bytebin/internal/cache"
	bytebinconfig "github.com/lucko/bytebin/internal/config"
	"github.com/lucko/bytebin/internal/content"
	"github.com/lucko/bytebin/internal/coordinator"
	"github.com/lucko/bytebin/internal/executor"
	"github.com/lucko/bytebin/internal/expiry"
	"github.com/lucko/bytebin/internal/handler"
	"github.com/lucko/bytebin/internal/housekeeper"
	"github.com/lucko/bytebin/internal/index"
	"github.com/lucko/bytebin/internal/logging"
	"github.com/lucko/bytebin/internal/logsink"
	"github.com/lucko/bytebin/internal/metrics"
	"github.com/lucko/bytebin/internal/ratelimit"
	"github.com/lucko/bytebin/internal/storage"
	"github.com/lucko/bytebin/internal/storage/selector"
	"github.com/lucko/bytebin/internal/token"

	"github.com/prometheus/client_golang/prometheus"
)

func trap(cancel context.CancelFunc, errch chan error) int {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)

	select {
	case sig := <-sigch:
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt:
			cancel()
			if err := <-errch; err != nil {
				log.Println(err)
				return 1
			}
			return 0
		}
	case err := <-errch:
		if err != nil {
			log.Println(err)
			return 1
		}
	}
	return 0
}

func main() {
	configPath := flag.String("config", os.Getenv("BYTEBIN_CONFIG_FILE"), "path to a JSON config file")
	flag.Parse()

	cfg, err := bytebinconfig.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(logging.Options{})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	idx, err := index.Open(cfg.IndexPath)
	if err != nil {
		logger.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer idx.Close()

	backends, sel, err := buildBackends(cfg, logger)
	if err != nil {
		logger.Error("failed to build storage backends", "error", err)
		os.Exit(1)
	}

	coord := coordinator.New(idx, backends, sel, m)

	rebuildIndexIfEmpty(idx, backends, logger)

	// Every blocking operation the coordinator performs (backend I/O,
	// index writes) is scheduled on this pool, capped at
	// ExecutorPoolSize concurrent operations; request handlers and the
	// housekeeper submit to the same pool and compete for its slots
	// fairly, matching spec.md §5's bounded-worker-pool model.
	pool := executor.New(cfg.ExecutorPoolSize)

	var loader cache.Loader
	if cfg.CacheMaxSize > 0 {
		loader = cache.NewCached(cfg.CacheMaxSize, pool.WrapLoad(coord.Load), m)
	} else {
		loader = cache.NewDirect(pool.WrapLoad(coord.Load))
	}

	postLimiter, err := ratelimit.New(time.Duration(cfg.PostRatePeriod), cfg.PostRateLimit)
	if err != nil {
		logger.Error("failed to build post rate limiter", "error", err)
		os.Exit(1)
	}
	defer postLimiter.Close()

	updateLimiter, err := ratelimit.New(time.Duration(cfg.UpdateRatePeriod), cfg.UpdateRateLimit)
	if err != nil {
		logger.Error("failed to build update rate limiter", "error", err)
		os.Exit(1)
	}
	defer updateLimiter.Close()

	readLimiter, err := ratelimit.New(time.Duration(cfg.ReadRatePeriod), cfg.ReadRateLimit)
	if err != nil {
		logger.Error("failed to build read rate limiter", "error", err)
		os.Exit(1)
	}
	defer readLimiter.Close()

	var notFoundLimiter *ratelimit.Backoff
	if cfg.ReadNotFoundRateLimit > 0 {
		notFoundLimiter = ratelimit.NewBackoff(time.Duration(cfg.ReadNotFoundRatePeriod), cfg.ReadNotFoundMultiplier, time.Duration(cfg.ReadNotFoundMax))
	}

	var sink logsink.Sink = logsink.Noop{}
	if cfg.LoggingHTTPURI != "" {
		sink = logsink.NewHTTPBatcher(cfg.LoggingHTTPURI, time.Duration(cfg.LoggingHTTPFlushPeriod), logger)
	}
	defer sink.Close()

	hk := housekeeper.New(coord, m, logger, time.Duration(cfg.HousekeeperInterval), cfg.AuditEveryNTicks, pool)

	ctx, cancel := context.WithCancel(context.Background())
	hk.Start(ctx)

	srv := handler.NewServer()
	srv.Log = logger
	srv.Tokens = token.New(cfg.KeyLength)
	srv.PostLimiter = postLimiter
	srv.UpdateLimiter = updateLimiter
	srv.ReadLimiter = readLimiter
	srv.NotFoundLimiter = notFoundLimiter
	srv.RateLimitAPIKeys = toSet(cfg.RateLimitAPIKeys)
	srv.AdminAPIKeys = toSet(cfg.AdminAPIKeys)
	srv.Expiry = &expiry.Policy{
		Default:   time.Duration(cfg.MaxContentLifetime),
		UserAgent: toDurationMap(cfg.MaxContentLifetimeByUA),
		Origin:    toDurationMap(cfg.MaxContentLifetimeByOrigin),
		Host:      toDurationMap(cfg.MaxContentLifetimeByHost),
	}
	srv.Cache = loader
	srv.Coord = coord
	srv.Metrics = m
	srv.Sink = sink
	srv.Pool = pool
	srv.RequestTimeout = time.Duration(cfg.RequestTimeout)
	srv.MaxContentLength = cfg.MaxContentLength
	srv.HostAliases = cfg.HTTPHostAliases
	srv.MetricsEnabled = cfg.MetricsEnabled

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  time.Duration(cfg.RequestTimeout),
		WriteTimeout: time.Duration(cfg.RequestTimeout),
	}

	errch := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		err := httpSrv.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		errch <- err
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		logger.Info("shutting down")
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	os.Exit(trap(cancel, errch))
}

// buildBackends constructs the registered storage backends and the
// selector that routes writes between them, following the size/expiry
// thresholds from configuration. Local disk is always present; S3 is
// added and given routing priority when enabled.
func buildBackends(cfg bytebinconfig.Config, logger *slog.Logger) (map[string]storage.Backend, selector.Rule, error) {
	disk, err := storage.NewLocalDisk("disk", cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	backends := map[string]storage.Backend{"disk": disk}

	var sel selector.Rule = selector.Static{Backend: disk}

	if cfg.S3Enabled {
		awsCfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		s3Backend := storage.NewS3("s3", cfg.S3Bucket, client)
		backends["s3"] = s3Backend

		sel = selector.Static{Backend: disk}
		if cfg.S3ExpiryThreshold > 0 {
			sel = selector.IfExpiryGt{Threshold: time.Duration(cfg.S3ExpiryThreshold), Backend: s3Backend, Next: sel}
		}
		if cfg.S3SizeThreshold > 0 {
			sel = selector.IfSizeGt{ThresholdBytes: cfg.S3SizeThreshold, Backend: s3Backend, Next: sel}
		}
		logger.Info("s3 backend enabled", "bucket", cfg.S3Bucket)
	}

	return backends, sel, nil
}

// rebuildIndexIfEmpty restores the index from each backend's listing
// when the database starts out with no rows, e.g. after the index file
// is lost but the backends still hold their objects.
func rebuildIndexIfEmpty(idx *index.Index, backends map[string]storage.Backend, logger *slog.Logger) {
	aggs, err := idx.GroupBy()
	if err != nil {
		logger.Error("failed to inspect index for rebuild", "error", err)
		return
	}
	if len(aggs) > 0 {
		return
	}

	var all []*content.Record
	for _, backend := range backends {
		recs, err := backend.List(context.Background())
		if err != nil {
			logger.Error("failed to list backend during index rebuild", "backend", backend.BackendID(), "error", err)
			continue
		}
		all = append(all, recs...)
	}
	if len(all) == 0 {
		return
	}

	if err := idx.PutAll(all); err != nil {
		logger.Error("failed to rebuild index", "error", err)
		return
	}
	logger.Info("rebuilt index from backend listings", "count", len(all))
}

func toSet(keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

func toDurationMap(in map[string]bytebinconfig.Duration) map[string]time.Duration {
	if in == nil {
		return nil
	}
	out := make(map[string]time.Duration, len(in))
	for k, v := range in {
		out[k] = time.Duration(v)
	}
	return out
}
