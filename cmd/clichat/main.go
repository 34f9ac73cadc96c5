package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/clichat/internal/config"
	"github.com/danmuck/clichat/internal/logging"
	"github.com/pterm/pterm"
)

var errUsage = errors.New("usage")

type options struct {
	configPath string
	root       string
	server     string
	logLevel   string
	accept     bool
}

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, cfg config.ClientConfig, opts options, args []string) error
}

var commands = []command{
	{"signup", "<username>", "register with the server and create the local profile", runSignup},
	{"connect", "<peer>", "ask a user to become a peer and wait for the answer", runConnect},
	{"send", "<peer> <text...>", "send one chat message to a peer", runSend},
	{"listen", "", "stay online, store incoming chats and answer peer requests", runListen},
	{"history", "<peer>", "print the stored conversation with a peer", runHistory},
	{"peers", "", "list established peers", runPeers},
}

func main() {
	opts, rest := parseFlags(os.Args[1:])
	logging.ConfigureRuntime()

	cfg, err := resolveConfig(opts)
	if err != nil {
		fatalf("%v", err)
	}
	if os.Getenv(logging.EnvLogLevel) == "" && cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}
	if len(rest) == 0 {
		usage()
		os.Exit(2)
	}

	cmd, ok := lookup(rest[0])
	if !ok {
		pterm.Error.Printfln("unknown command %q", rest[0])
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.run(ctx, cfg, opts, rest[1:]); err != nil {
		if errors.Is(err, errUsage) {
			pterm.Error.Printfln("usage: clichat %s %s", cmd.name, cmd.args)
			os.Exit(2)
		}
		fatalf("%s: %v", cmd.name, err)
	}
}

func parseFlags(argv []string) (options, []string) {
	var opts options
	fs := flag.NewFlagSet("clichat", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "", "client config file (toml)")
	fs.StringVar(&opts.root, "root", "", "profile directory (overrides config)")
	fs.StringVar(&opts.server, "server", "", "relay address host:port (overrides config)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")
	fs.BoolVar(&opts.accept, "accept", false, "listen: accept every peer request without prompting")
	fs.Usage = usage
	_ = fs.Parse(argv)
	return opts, fs.Args()
}

func resolveConfig(opts options) (config.ClientConfig, error) {
	cfg, err := config.LoadClient(opts.configPath)
	if err != nil {
		return config.ClientConfig{}, err
	}
	if v := strings.TrimSpace(opts.root); v != "" {
		cfg.Root = v
	}
	if v := strings.TrimSpace(opts.server); v != "" {
		cfg.ServerAddr = v
	}
	if v := strings.TrimSpace(opts.logLevel); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage() {
	pterm.Println("usage: clichat [flags] <command> [args]")
	pterm.Println()
	rows := [][]string{{"command", "args", "description"}}
	for _, c := range commands {
		rows = append(rows, []string{c.name, c.args, c.summary})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	pterm.Println()
	pterm.Println("flags: -config <path> -root <dir> -server <addr> -log-level <level> -accept")
}

func fatalf(format string, args ...any) {
	pterm.Error.Println(fmt.Sprintf(format, args...))
	os.Exit(1)
}
