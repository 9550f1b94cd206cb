package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSetDefaults(t *testing.T) {
	var c ServerConfig
	c.SetDefaults()
	if c.HTTPPort != 3100 {
		t.Errorf("http port: got %d want 3100", c.HTTPPort)
	}
	if c.WSPort != 3101 {
		t.Errorf("ws port: got %d want 3101", c.WSPort)
	}
	if c.MetricsAddr != ":3100" {
		t.Errorf("metrics addr: got %q want %q", c.MetricsAddr, ":3100")
	}
	if c.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout: got %v want 30s", c.RequestTimeout)
	}
	if c.PingInterval != 30*time.Second {
		t.Errorf("ping interval: got %v want 30s", c.PingInterval)
	}
	if c.WSPath != "/ws" {
		t.Errorf("ws path: got %q want %q", c.WSPath, "/ws")
	}
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("WS_PORT", "9001")
	t.Setenv("METRICS_PORT", "9100")
	t.Setenv("REQUEST_TIMEOUT", "2.5")
	t.Setenv("PING_INTERVAL", "10s")
	t.Setenv("CLIENT_KEY", "sekrit")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")

	var c ServerConfig
	c.SetDefaults()
	c.ApplyEnv()
	if c.HTTPPort != 9000 || c.WSPort != 9001 {
		t.Errorf("ports: got %d/%d want 9000/9001", c.HTTPPort, c.WSPort)
	}
	if c.MetricsAddr != ":9100" {
		t.Errorf("metrics addr: got %q want %q", c.MetricsAddr, ":9100")
	}
	if c.RequestTimeout != 2500*time.Millisecond {
		t.Errorf("request timeout: got %v want 2.5s", c.RequestTimeout)
	}
	if c.PingInterval != 10*time.Second {
		t.Errorf("ping interval: got %v want 10s", c.PingInterval)
	}
	if c.ClientKey != "sekrit" {
		t.Errorf("client key: got %q", c.ClientKey)
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("allowed origins: got %v", c.AllowedOrigins)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	data := "http_port: 4500\nws_port: 4501\nclient_key: abc\nrequest_timeout: 5s\nallowed_origins:\n  - http://localhost:5173\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	var c ServerConfig
	c.SetDefaults()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPPort != 4500 || c.WSPort != 4501 {
		t.Errorf("ports: got %d/%d want 4500/4501", c.HTTPPort, c.WSPort)
	}
	if c.ClientKey != "abc" {
		t.Errorf("client key: got %q", c.ClientKey)
	}
	if c.RequestTimeout != 5*time.Second {
		t.Errorf("request timeout: got %v want 5s", c.RequestTimeout)
	}
	if len(c.AllowedOrigins) != 1 {
		t.Errorf("allowed origins: got %v", c.AllowedOrigins)
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name        string
		goos        string
		home        string
		programData string
		want        string
	}{
		{name: "linux", goos: "linux", home: "/home/user", want: "/etc/webpuppet/server.yaml"},
		{name: "darwin", goos: "darwin", home: "/Users/test", want: "/Users/test/Library/Application Support/webpuppet/server.yaml"},
		{name: "windows", goos: "windows", programData: "C:\\ProgramData", want: "C:/ProgramData/webpuppet/server.yaml"},
		{name: "windows default ProgramData", goos: "windows", want: "C:/ProgramData/webpuppet/server.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveConfigPath(tt.goos, tt.home, tt.programData, "server.yaml")
			got = strings.ReplaceAll(got, "\\", "/")
			if got != tt.want {
				t.Errorf("config path: got %q want %q", got, tt.want)
			}
		})
	}
}
