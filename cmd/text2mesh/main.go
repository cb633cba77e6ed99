package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gaspardpetit/text2mesh/internal/config"
	"github.com/gaspardpetit/text2mesh/internal/generate"
	"github.com/gaspardpetit/text2mesh/internal/inflight"
	"github.com/gaspardpetit/text2mesh/internal/logx"
	"github.com/gaspardpetit/text2mesh/internal/mcpserver"
	"github.com/gaspardpetit/text2mesh/internal/metrics"
	"github.com/gaspardpetit/text2mesh/internal/pipeline"
	"github.com/gaspardpetit/text2mesh/internal/pipeline/procedural"
	"github.com/gaspardpetit/text2mesh/internal/pipeline/remote"
	"github.com/gaspardpetit/text2mesh/internal/secret"
	"github.com/gaspardpetit/text2mesh/internal/server"
	"github.com/gaspardpetit/text2mesh/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func newBackend(cfg config.ServerConfig) pipeline.Backend {
	if cfg.Backend == config.BackendRemote {
		ev := logx.Log.Info().Str("url", cfg.BackendURL)
		if cfg.BackendKey != "" {
			ev = ev.Str("key", secret.Mask(cfg.BackendKey))
		}
		ev.Msg("using remote inference worker")
		return remote.New(cfg.BackendURL, cfg.BackendKey, 0)
	}
	logx.Log.Info().Msg("using procedural backend")
	return procedural.New()
}

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if cfg.ShowVersion {
		fmt.Printf("text2mesh version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("load config")
	}
	logx.Configure(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(ctx, cfg.RedisAddr, cfg.InstanceID)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Str("instance", cfg.InstanceID).Msg("using redis state store")
	}
	serverstate.SetState(serverstate.StatusLoading)

	preg := prometheus.NewRegistry()
	preg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(preg)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	p, err := pipeline.Load(ctx, newBackend(cfg), pipeline.Options{
		Model:          cfg.Model,
		Device:         cfg.Device,
		UseFP16:        cfg.UseFP16,
		GuidanceScale:  cfg.Guidance(),
		MaxConcurrency: cfg.MaxConcurrency,
		LoadRetries:    cfg.LoadRetries,
	})
	if err != nil {
		serverstate.SetState(serverstate.StatusNotReady)
		logx.Log.Fatal().Err(err).Msg("load pipeline")
	}
	serverstate.SetModel(p.Model().Name, p.Device())
	metrics.SetModelInfo(p.Model().Name, p.Device())

	counter := &inflight.Counter{}
	counter.OnChange(metrics.SetInflight)
	svc := generate.NewService(p, cfg.RequestTimeout)
	deps := server.Deps{
		Service:  svc,
		Device:   p.Device(),
		Inflight: counter,
		Gatherer: preg,
	}
	if cfg.MCP {
		deps.MCP = mcpserver.NewHandler(&mcpserver.Tools{Service: svc, Device: p.Device()}, version)
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           server.New(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var metricsSrv *http.Server
	if !cfg.MetricsOnMainPort() {
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: server.MetricsHandler(preg), ReadHeaderTimeout: 10 * time.Second}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Int64("inflight", counter.Load()).
				Msg("draining; send SIGTERM again to terminate immediately")
			go func() {
				wctx := ctx
				if cfg.DrainTimeout > 0 {
					var wcancel context.CancelFunc
					wctx, wcancel = context.WithTimeout(ctx, cfg.DrainTimeout)
					defer wcancel()
				}
				if counter.WaitForZero(wctx) {
					logx.Log.Info().Msg("drain complete")
				} else if ctx.Err() == nil {
					logx.Log.Warn().Msg("drain timeout exceeded; terminating")
				}
				cancel()
			}()
		}
	}()
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	serverstate.SetState(serverstate.StatusReady)
	logx.Log.Info().Str("addr", srv.Addr).Str("device", p.Device()).Str("model", p.Model().Name).
		Str("version", version).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
