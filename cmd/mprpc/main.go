// Command mprpc calls remote methods and publishes providers from the shell.
//
//	mprpc call --service UserServiceRpc --method Login --data @req.bin > resp.bin
//	mprpc publish --service UserServiceRpc --method Login --addr 127.0.0.1:8888
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"mprpc/client"
	"mprpc/codec"
	"mprpc/config"
	"mprpc/logger"
	"mprpc/middleware"
	"mprpc/registry"
)

func main() {
	zlog, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zlog.Sync()

	app := cli.NewApp()
	app.Name = "mprpc"
	app.Usage = "Call mprpc providers and publish their addresses"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "call",
			Usage: "Invoke service.method and write the raw response to stdout",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "service", Required: true},
				&cli.StringFlag{Name: "method", Required: true},
				&cli.StringFlag{Name: "endpoint", Usage: "host:port, skips the registry"},
				&cli.StringFlag{Name: "data", Value: "-", Usage: "request payload: @file, - for stdin, or a literal"},
			},
			Action: func(c *cli.Context) error {
				return runCall(c, zlog)
			},
		},
		{
			Name:  "publish",
			Usage: "Announce a provider address in etcd until interrupted",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "service", Required: true},
				&cli.StringFlag{Name: "method", Required: true},
				&cli.StringFlag{Name: "addr", Required: true, Usage: "provider host:port"},
				&cli.Int64Flag{Name: "ttl", Value: 10, Usage: "lease TTL in seconds"},
			},
			Action: func(c *cli.Context) error {
				return runPublish(c, zlog)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zlog.Error("mprpc failed", zap.Error(err))
		zlog.Sync()
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func runCall(c *cli.Context, zlog *zap.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	payload, err := readPayload(c.String("data"))
	if err != nil {
		return err
	}

	var request, response any
	var raw []byte
	var rawJSON json.RawMessage
	switch cfg.CodecType() {
	case codec.CodecTypeBinary:
		request, response = payload, &raw
	case codec.CodecTypeJSON:
		request, response = json.RawMessage(payload), &rawJSON
	default:
		return fmt.Errorf("codec %s needs generated message types; use binary with a pre-encoded payload", cfg.CodecType())
	}

	l := logger.Start(
		logger.WithDir(cfg.Log.Dir),
		logger.WithLevel(cfg.LogLevel()),
		logger.WithQueueSize(cfg.Log.QueueSize),
		logger.WithErrorHandler(func(err error) { zlog.Warn("log file unavailable", zap.Error(err)) }),
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Stop(ctx); err != nil {
			zlog.Warn("log queue not drained", zap.Error(err))
		}
	}()

	service, method := c.String("service"), c.String("method")
	var reg registry.Registry
	if endpoint := c.String("endpoint"); endpoint != "" {
		static := registry.NewStaticRegistry()
		static.Set(service, method, endpoint)
		reg = static
	} else {
		etcd, err := registry.NewEtcdRegistry(registry.EtcdConfig{
			Endpoints:   cfg.Registry.Endpoints,
			DialTimeout: cfg.Registry.DialTimeout,
			Logger:      zlog.Named("etcd"),
		})
		if err != nil {
			return err
		}
		defer etcd.Close()
		reg = etcd
	}

	ch := client.NewChannel(reg,
		client.WithCodec(codec.GetCodec(cfg.CodecType())),
		client.WithTimeout(cfg.Call.Timeout),
		client.WithMaxResponseSize(cfg.Call.MaxResponseSize),
		client.WithLogger(l),
		client.WithMiddleware(middleware.LoggingMiddleware(l)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := &client.Controller{}
	if err := ch.Call(ctx, service, method, request, response, ctrl); err != nil {
		zlog.Error("call failed",
			zap.String("path", registry.MethodPath(service, method)),
			zap.Stringer("kind", client.KindOf(err)),
			zap.String("reason", ctrl.ErrorText()))
		return err
	}

	out := raw
	if cfg.CodecType() == codec.CodecTypeJSON {
		out = rawJSON
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runPublish(c *cli.Context, zlog *zap.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if _, err := registry.ParseEndpoint(c.String("addr")); err != nil {
		return err
	}

	reg, err := registry.NewEtcdRegistry(registry.EtcdConfig{
		Endpoints:   cfg.Registry.Endpoints,
		DialTimeout: cfg.Registry.DialTimeout,
		Logger:      zlog.Named("etcd"),
	})
	if err != nil {
		return err
	}
	defer reg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, method := c.String("service"), c.String("method")
	if err := reg.Publish(ctx, service, method, c.String("addr"), c.Int64("ttl")); err != nil {
		return err
	}
	zlog.Info("published",
		zap.String("path", registry.MethodPath(service, method)),
		zap.String("addr", c.String("addr")))

	<-ctx.Done()

	unpubCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return reg.Unpublish(unpubCtx, service, method)
}

func readPayload(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(arg[1:])
	}
	return []byte(arg), nil
}
