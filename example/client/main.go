// Command client calls the demo methods over one of the transports and prints
// each result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/mnehpets/rpcserve/config"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/netstring"
	"github.com/mnehpets/rpcserve/web"
)

type caller interface {
	Call(ctx context.Context, method string, reply any, params ...any) error
}

type call struct {
	method string
	params []any
}

var calls = []call{
	{"system.listMethods", nil},
	{"echo", []any{"bite me"}},
	{"testing.getList", nil},
	{"math.add", []any{3, 5}},
	{"math.divide", []any{1, 0}},
	{"testing.fail", nil},
	{"whoami", nil},
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	transport := flag.String("transport", "http", "tcp, conn or http")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	logger := cfg.Logger()
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	version, err := jsonrpc.ParseVersion(cfg.Client.Version)
	if err != nil {
		logger.Error("client version", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var c caller
	switch *transport {
	case "tcp":
		c = netstring.NewProxy(cfg.Client.Addr, netstring.WithVersion(version))
	case "conn":
		conn, err := netstring.Dial(ctx, cfg.Client.Addr, netstring.WithVersion(version), netstring.WithLogger(logger))
		if err != nil {
			logger.Error("dial", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		c = conn
	case "http":
		opts := []web.ProxyOption{web.WithVersion(version)}
		if cfg.Client.User != "" {
			opts = append(opts, web.WithBasicAuth(cfg.Client.User, cfg.Client.Password))
		}
		if cfg.Client.Token != "" {
			opts = append(opts, web.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Client.Token, TokenType: "Bearer"})))
		}
		p, err := web.NewProxy(cfg.Client.URL, opts...)
		if err != nil {
			logger.Error("proxy", "error", err)
			os.Exit(1)
		}
		c = p
	default:
		logger.Error("unknown transport", "transport", *transport)
		os.Exit(2)
	}

	for _, cl := range calls {
		var result any
		err := c.Call(ctx, cl.method, &result, cl.params...)
		var te *jsonrpc.TransportError
		switch {
		case err == nil:
			fmt.Printf("%s: %v\n", cl.method, result)
		case errors.As(err, &te) && te.Status == 401:
			fmt.Printf("%s: not authorized\n", cl.method)
		default:
			fmt.Printf("%s: error %v\n", cl.method, err)
		}
	}
}
