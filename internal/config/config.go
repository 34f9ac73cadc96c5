package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/clichat/internal/protocol"
	"github.com/danmuck/clichat/internal/protocol/frame"
	"github.com/danmuck/clichat/internal/protocol/session"
	"github.com/danmuck/clichat/internal/storage"
)

// ClientConfig drives cmd/clichat.
type ClientConfig struct {
	Root       string
	Username   string
	ServerAddr string
	LogLevel   string
	Session    session.Config
}

// ServerConfig drives cmd/chatd.
type ServerConfig struct {
	ListenAddr  string
	AdminAddr   string
	CorsOrigins []string
	LogLevel    string
	Session     session.Config
}

func DefaultClientConfig() ClientConfig {
	root, err := storage.DefaultRoot()
	if err != nil {
		root = storage.DefaultRootName
	}
	return ClientConfig{
		Root:       root,
		ServerAddr: "127.0.0.1:7878",
		LogLevel:   "warn",
		Session:    session.DefaultConfig(),
	}
}

// DefaultServerConfig bounds reads until a connection verifies; verified
// connections have no read deadline.
func DefaultServerConfig() ServerConfig {
	sc := session.DefaultConfig()
	sc.ReadTimeout = 5 * time.Minute
	return ServerConfig{
		ListenAddr:  ":7878",
		AdminAddr:   "127.0.0.1:7879",
		CorsOrigins: []string{"http://localhost:3000"},
		LogLevel:    "info",
		Session:     sc,
	}
}

type transportFile struct {
	DialTimeout     string `toml:"dial_timeout"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	MaxMessageBytes int64  `toml:"max_message_bytes"`
}

type clientFile struct {
	Root       string `toml:"root"`
	Username   string `toml:"username"`
	ServerAddr string `toml:"server_addr"`
	LogLevel   string `toml:"log_level"`
	transportFile
}

type serverFile struct {
	ListenAddr  string   `toml:"listen_addr"`
	AdminAddr   string   `toml:"admin_addr"`
	CorsOrigins []string `toml:"cors_origins"`
	LogLevel    string   `toml:"log_level"`
	transportFile
}

// LoadClient overlays the keys present in path on DefaultClientConfig.
// An empty path yields the defaults.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("root") {
		root, err := expandHome(raw.Root)
		if err != nil {
			return ClientConfig{}, err
		}
		cfg.Root = root
	}
	if meta.IsDefined("username") {
		name := strings.TrimSpace(raw.Username)
		if _, err := protocol.NewUsername(name); err != nil {
			return ClientConfig{}, fmt.Errorf("parse username: %w", err)
		}
		cfg.Username = name
	}
	if meta.IsDefined("server_addr") {
		cfg.ServerAddr = strings.TrimSpace(raw.ServerAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if err := applyTransport(meta, raw.transportFile, &cfg.Session); err != nil {
		return ClientConfig{}, err
	}
	return cfg, validateClient(cfg)
}

// LoadServer overlays the keys present in path on DefaultServerConfig.
func LoadServer(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if err := applyTransport(meta, raw.transportFile, &cfg.Session); err != nil {
		return ServerConfig{}, err
	}
	return cfg, validateServer(cfg)
}

func applyTransport(meta toml.MetaData, raw transportFile, sc *session.Config) error {
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"dial_timeout", raw.DialTimeout, &sc.DialTimeout},
		{"read_timeout", raw.ReadTimeout, &sc.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &sc.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v < 0 {
			return fmt.Errorf("parse %s: negative duration %s", d.key, v)
		}
		*d.dst = v
	}
	if meta.IsDefined("max_message_bytes") {
		if raw.MaxMessageBytes <= 0 || raw.MaxMessageBytes > 1<<32-1 {
			return fmt.Errorf("parse max_message_bytes: out of range: %d", raw.MaxMessageBytes)
		}
		sc.Limits = frame.Limits{MaxMessageBytes: uint32(raw.MaxMessageBytes)}
	}
	return nil
}

func validateClient(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Root) == "" {
		return fmt.Errorf("client config: root is required")
	}
	if strings.TrimSpace(cfg.ServerAddr) == "" {
		return fmt.Errorf("client config: server_addr is required")
	}
	return nil
}

func validateServer(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("server config: listen_addr is required")
	}
	return nil
}

func expandHome(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand root: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
