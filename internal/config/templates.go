package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "server":
		return serverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// Validate loads path as kind and reports the first problem.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		_, err := LoadClient(path)
		return err
	case "server":
		_, err := LoadServer(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `root = "~/.cli_chat"
username = ""
server_addr = "127.0.0.1:7878"
log_level = "warn"
dial_timeout = "5s"
read_timeout = "15s"
write_timeout = "15s"
max_message_bytes = 65536
`

const serverTemplate = `listen_addr = ":7878"
admin_addr = "127.0.0.1:7879"
cors_origins = ["http://localhost:3000"]
log_level = "info"
read_timeout = "5m"
write_timeout = "15s"
max_message_bytes = 65536
`
