package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"

    "github.com/local/pdfassembler/internal/assembly"
    cfgpkg "github.com/local/pdfassembler/internal/config"
    "github.com/local/pdfassembler/internal/imagerender"
    logpkg "github.com/local/pdfassembler/internal/logger"
    "github.com/local/pdfassembler/internal/metrics"
    "github.com/local/pdfassembler/internal/orchestrator"
    "github.com/local/pdfassembler/internal/statuscheck"
    "github.com/local/pdfassembler/internal/storage"
    "github.com/local/pdfassembler/internal/store"
    "github.com/local/pdfassembler/internal/usage"
)

// redisPinger adapts the client to statuscheck.RedisPinger.
type redisPinger struct{ c redis.UniversalClient }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

func main() {
    cfg := cfgpkg.Load()

    // Init logging
    if err := logpkg.Init(logpkg.OptionsFrom(cfg)); err != nil {
        fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
    }
    defer logpkg.Close()
    metrics.Init()

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // Redis is optional: without it usage is counted per process and job
    // status lives in memory.
    var (
        rdb    *redis.Client
        remote usage.Counter
        status orchestrator.StatusStore
        pinger statuscheck.RedisPinger
    )
    memStatus := store.NewMemoryStatus(cfg.Redis.StatusTTL)
    status = memStatus
    if cfg.Redis.URL != "" {
        opt, err := redis.ParseURL(cfg.Redis.URL)
        if err != nil { log.Fatal().Err(err).Msg("invalid REDIS_URL") }
        rdb = redis.NewClient(opt)
        defer rdb.Close()
        if err := rdb.Ping(ctx).Err(); err != nil {
            log.Warn().Err(err).Msg("redis unreachable at startup; usage will reconcile once it recovers")
        }
        remote = usage.NewBreakerCounter(usage.NewRedisCounter(rdb), cfg.Usage.BreakerBase, cfg.Usage.BreakerMax)
        status = store.NewRedisStatus(rdb, cfg.Redis.StatusTTL)
        pinger = redisPinger{c: rdb}
    }

    local := usage.NewMemoryCounter()
    ledger := usage.NewQuotaLedger(usage.Options{
        Local:  local,
        Remote: remote,
        Quota:  cfg.Usage.Quota,
        Period: cfg.Usage.Period,
        Prefix: cfg.Usage.KeyPrefix,
    })

    engine := assembly.NewEngine(assembly.EngineOptions{
        Backend:          assembly.NewLibraryBackend(cfg.Engine.RelaxedPDF),
        Ledger:           ledger,
        JPEGQuality:      cfg.Engine.JPEGQuality,
        ParseConcurrency: cfg.Engine.ParseConcurrency,
        PDFSizeHint:      cfg.Engine.PDFSizeHintMB << 20,
        ImageSizeHint:    cfg.Engine.ImageSizeHintMB << 20,
    })

    sink, err := storage.New(ctx, storage.Options{
        Kind:      cfg.Storage.Sink,
        LocalDir:  cfg.Storage.LocalDir,
        Retention: cfg.Storage.Retention,
        Prefix:    cfg.Storage.Prefix,
        S3: storage.S3Options{
            Bucket:    cfg.Storage.S3Bucket,
            Region:    cfg.Storage.S3Region,
            AccessKey: cfg.Storage.S3AccessKey,
            SecretKey: cfg.Storage.S3SecretKey,
            Endpoint:  cfg.Storage.S3Endpoint,
        },
        GCSBucket: cfg.Storage.GCSBucket,
    })
    if err != nil { log.Fatal().Err(err).Str("sink", cfg.Storage.Sink).Msg("failed to init artifact sink") }
    if c, ok := sink.(interface{ Close() error }); ok { defer c.Close() }

    deps := orchestrator.Dependencies{
        Engine: engine,
        Status: status,
        Guard:  usage.NewInflightGuard(cfg.Usage.MaxInflight),
        Limits: orchestrator.Limits{
            MaxMemoryBytes: cfg.Server.MaxUploadMB << 20,
            TrustProxy:     cfg.Server.TrustProxy,
            PreviewDPI:     cfg.Engine.PreviewDPI,
            PreviewMaxDPI:  cfg.Engine.PreviewMaxDPI,
            RelaxedPDF:     cfg.Engine.RelaxedPDF,
        },
    }
    healthOpts := statuscheck.Options{Redis: pinger, Renderer: imagerender.SelfTest}
    if sink != nil {
        deps.Sink = sink
        healthOpts.Sink = sink
    }
    deps.Health = statuscheck.New(healthOpts)

    orch := orchestrator.New(deps)
    mux := http.NewServeMux()
    orch.RegisterRoutes(mux)
    mux.Handle("/metrics", metrics.Handler())

    // Periodic sweep of in-process caches
    go func() {
        t := time.NewTicker(10 * time.Minute)
        defer t.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-t.C:
                n := local.Sweep() + memStatus.Sweep()
                if n > 0 { log.Debug().Int("dropped", n).Msg("swept expired usage and status entries") }
            }
        }
    }()

    port := cfg.Server.Port
    srv := &http.Server{
        Addr:         ":" + port,
        Handler:      mux,
        ReadTimeout:  cfg.Server.ReadTimeout,
        WriteTimeout: cfg.Server.WriteTimeout,
    }

    go func(){
        log.Info().Str("sink", cfg.Storage.Sink).Bool("redis", rdb != nil).Int64("quota", cfg.Usage.Quota).Msgf("HTTP server listening on :%s", port)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    cancel()
    shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
    defer shutdownCancel()
    _ = srv.Shutdown(shutdownCtx)
    log.Info().Msg("shutdown complete")
}
