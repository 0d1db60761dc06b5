// Command tcp serves the demo methods as netstring-framed JSON-RPC over TCP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mnehpets/rpcserve/config"
	"github.com/mnehpets/rpcserve/example/demo"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/netstring"
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
	d := jsonrpc.NewDispatcher(root, jsonrpc.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := netstring.NewServer(d,
		netstring.WithLogger(logger),
		netstring.WithMaxLength(cfg.TCP.MaxLength),
		netstring.WithMaxInFlight(cfg.TCP.MaxInFlight),
		netstring.WithWriteTimeout(cfg.TCP.WriteTimeout),
	)
	if err := srv.ListenAndServe(ctx, cfg.TCP.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
