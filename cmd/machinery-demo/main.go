// machinery-demo serves the greeting services over framed TCP and HTTP, and
// calls them back with "machinery-demo call".
//
// Usage:
//
//	machinery-demo [--config file] [--listen addr] [--http addr] ...
//	machinery-demo call [--addr host:port | --url http://host:port | --etcd ep] greeting.format 'Hi {}' Ana
package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"machinery/config"
	"machinery/message"
	"machinery/metrics"
	"machinery/middleware"
	"machinery/registry"
	"machinery/schema"
	"machinery/server"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "call" {
		err = runCall(os.Args[2:])
	} else {
		err = runServe(os.Args[1:])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	var configPath string
	cfg := config.Default()

	flagSet := pflag.NewFlagSet("machinery-demo", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file")
	flagSet.String("listen", cfg.ListenAddress, "TCP frame server address (empty disables)")
	flagSet.String("http", cfg.HTTPAddress, "HTTP binding address (empty disables)")
	flagSet.String("advertise", "", "address registered in etcd (default: --listen)")
	flagSet.StringSlice("etcd", nil, "etcd endpoints; enables service registration")
	flagSet.String("metrics", "", "Prometheus /metrics address (empty disables)")
	flagSet.String("schema", "", "analyzer output served by introspection (JSONC)")
	flagSet.String("log-level", cfg.Log.Level, "debug, info, warn or error")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// Flags given on the command line override the file.
	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddress = f.Value.String()
		case "http":
			cfg.HTTPAddress = f.Value.String()
		case "advertise":
			cfg.AdvertiseAddress = f.Value.String()
		case "etcd":
			cfg.Etcd.Endpoints, _ = flagSet.GetStringSlice("etcd")
		case "metrics":
			cfg.Metrics.Address = f.Value.String()
		case "schema":
			cfg.SchemaPath = f.Value.String()
		case "log-level":
			cfg.Log.Level = f.Value.String()
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	return serve(cfg, logger)
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	desc := greetingSchema()
	if cfg.SchemaPath != "" {
		loaded, err := schema.Load(cfg.SchemaPath)
		if err != nil {
			return err
		}
		desc = loaded
	}

	dispatcher, err := server.NewDispatcher(greetingServices(),
		server.WithIntrospection(desc),
		server.WithLogger(logger))
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithLogger(logger)}
	if len(cfg.Etcd.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout, logger)
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.Advertise(), cfg.Etcd.LeaseTTL))
	}
	svr := server.NewServer(dispatcher, opts...)

	promRegistry := metrics.NewRegistry()
	svr.Use(middleware.RecoverMiddleware(logger))
	svr.Use(middleware.LoggingMiddleware(logger))
	svr.Use(metrics.Middleware(metrics.NewPromObserver(promRegistry), dispatcher.ServiceIDs()...))
	if cfg.RateLimit.Rate > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.Timeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.Timeout))
	}

	errCh := make(chan error, 3)
	var httpServers []*http.Server

	if cfg.ListenAddress != "" {
		go func() {
			if err := svr.Serve("tcp", cfg.ListenAddress); err != nil && !errors.Is(err, server.ErrServerClosed) {
				errCh <- fmt.Errorf("frame server: %w", err)
			}
		}()
	}
	if cfg.HTTPAddress != "" {
		mux := http.NewServeMux()
		mux.Handle(message.HTTPPath, svr.HTTPHandler())
		httpServers = append(httpServers, listenHTTP("http binding", cfg.HTTPAddress, mux, logger, errCh))
	}
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(promRegistry))
		httpServers = append(httpServers, listenHTTP("metrics", cfg.Metrics.Address, mux, logger, errCh))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	for _, hs := range httpServers {
		hs.Shutdown(ctx)
	}
	if cfg.ListenAddress != "" {
		if shutdownErr := svr.Shutdown(cfg.ShutdownTimeout); shutdownErr != nil {
			logger.Warn("shutdown", zap.Error(shutdownErr))
		}
	}
	return err
}

func listenHTTP(name, addr string, h http.Handler, logger *zap.Logger, errCh chan<- error) *http.Server {
	hs := &http.Server{Addr: addr, Handler: h}
	go func() {
		logger.Info("listening", zap.String("server", name), zap.String("addr", addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s: %w", name, err)
		}
	}()
	return hs
}
