// Command web serves the demo methods as JSON-RPC over HTTP POST, with
// Prometheus metrics alongside.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mnehpets/rpcserve/config"
	"github.com/mnehpets/rpcserve/example/demo"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/web"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	logger := cfg.Logger()
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	root, err := demo.NewHandler()
	if err != nil {
		logger.Error("building handler", "error", err)
		os.Exit(1)
	}
	metrics, err := jsonrpc.NewMetrics(prometheus.DefaultRegisterer, "rpcserve")
	if err != nil {
		logger.Error("registering metrics", "error", err)
		os.Exit(1)
	}
	d := jsonrpc.NewDispatcher(root, jsonrpc.WithLogger(logger), jsonrpc.WithMetrics(metrics))

	mux := http.NewServeMux()
	mux.Handle(cfg.HTTP.Path, web.NewResource(d,
		web.WithLogger(logger),
		web.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		web.WithProcessors(
			web.AccessLog(logger),
			web.NewSecurityHeaders(web.WithHSTS(0, false)),
			web.RateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
		),
	))
	mux.Handle(cfg.HTTP.MetricsPath, promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http server listening", "addr", cfg.HTTP.Addr, "path", cfg.HTTP.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
