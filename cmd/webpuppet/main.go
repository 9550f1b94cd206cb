package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webpuppet/webpuppet/internal/bridge"
	"github.com/webpuppet/webpuppet/internal/browser"
	"github.com/webpuppet/webpuppet/internal/config"
	"github.com/webpuppet/webpuppet/internal/logx"
	"github.com/webpuppet/webpuppet/internal/metrics"
	"github.com/webpuppet/webpuppet/internal/server"
	"github.com/webpuppet/webpuppet/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	// Allow --config to override file path before loading it
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent()
	flag.Parse()
	if *showVersion {
		fmt.Printf("webpuppet version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)

	preg := prometheus.NewRegistry()
	metrics.Register(preg)
	metrics.SetServerBuildInfo(version, buildSHA, buildDate)

	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bridge.New(cfg.RequestTimeout, cfg.PingInterval)
	go b.Run(ctx)
	facade := browser.New(b, cfg.RequestTimeout)

	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: server.New(cfg, facade, preg, version),
	}
	wsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WSPort),
		Handler: server.NewWSHandler(cfg, b),
	}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.HTTPPort) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
			go func() {
				t := time.NewTimer(cfg.DrainTimeout)
				defer t.Stop()
				select {
				case <-t.C:
					logx.Log.Warn().Msg("drain timeout exceeded; terminating")
					cancel()
				case <-ctx.Done():
				}
			}()
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			logx.Log.Error().Err(err).Msg("api server shutdown")
		}
		if err := wsSrv.Shutdown(shutdownCtx); err != nil {
			logx.Log.Error().Err(err).Msg("ws server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
		if err := b.Close(); err != nil {
			logx.Log.Error().Err(err).Msg("bridge close")
		}
	}()

	if cfg.APIKey != "" {
		logx.Log.Info().Msg("API key auth enabled")
	}
	if cfg.ClientKey != "" {
		logx.Log.Info().Msg("Client key required")
	}
	serverstate.SetState("ready")

	go func() {
		logx.Log.Info().Int("port", cfg.WSPort).Str("path", cfg.WSPath).Msg("websocket server starting")
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Log.Fatal().Err(err).Msg("websocket server error")
		}
	}()
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	logx.Log.Info().Int("port", cfg.HTTPPort).Msg("api server starting")
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
