package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/clichat/internal/chatd"
	"github.com/danmuck/clichat/internal/config"
	"github.com/danmuck/clichat/internal/logging"
	"github.com/gin-gonic/gin"
)

type options struct {
	configPath string
	listen     string
	admin      string
}

func main() {
	logging.ConfigureRuntime()
	gin.SetMode(gin.ReleaseMode)

	opts := parseFlags(os.Args[1:])
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatd: %v\n", err)
		os.Exit(1)
	}
	if os.Getenv(logging.EnvLogLevel) == "" && cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := chatd.NewServiceWithConfig(cfg).Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chatd: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(argv []string) options {
	var opts options
	fs := flag.NewFlagSet("chatd", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "", "server config file (toml)")
	fs.StringVar(&opts.listen, "listen", "", "relay listen address (overrides config)")
	fs.StringVar(&opts.admin, "admin", "", "admin HTTP address, \"off\" to disable (overrides config)")
	_ = fs.Parse(argv)
	return opts
}

func loadConfig(opts options) (config.ServerConfig, error) {
	cfg, err := config.LoadServer(opts.configPath)
	if err != nil {
		return config.ServerConfig{}, err
	}
	if v := strings.TrimSpace(opts.listen); v != "" {
		cfg.ListenAddr = v
	}
	switch v := strings.TrimSpace(opts.admin); v {
	case "":
	case "off":
		cfg.AdminAddr = ""
	default:
		cfg.AdminAddr = v
	}
	return cfg, nil
}
