package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_EnvFallbacks(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("FRAMELINK_LISTEN_ADDR", ":9999")
	t.Setenv("HOST_AUTH_TOKEN", "tok")

	cfg := Default()
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, "tok", cfg.Server.AuthToken)
	assert.Equal(t, "tok", cfg.Client.AuthToken)
	assert.Equal(t, "/ws/app", cfg.Server.AppPath)
}

func TestLoad_EmptyPath(t *testing.T) {
	t.Setenv("FRAMELINK_LISTEN_ADDR", "")
	cfg, err := Load("")
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, "", want.Server.ListenAddr)
	want.Server.ListenAddr = ":8080"
	assert.Equal(t, want, cfg)
}

func TestLoad_ListenAddrPrecedence(t *testing.T) {
	t.Setenv("FRAMELINK_LISTEN_ADDR", "")
	cfg, err := Load(writeFile(t, "explicit.json", `{"server": {"listen_addr": ":7000", "host": "127.0.0.1", "port": 9000}}`))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.ListenAddr)

	t.Setenv("FRAMELINK_LISTEN_ADDR", ":9999")
	cfg, err = Load(writeFile(t, "hostport.json", `{"server": {"host": "127.0.0.1", "port": 9000}}`))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr, "environment wins over host and port")
}

func TestLoad_JSONWithComments(t *testing.T) {
	t.Setenv("FRAMELINK_LISTEN_ADDR", "")
	path := writeFile(t, "framelink.hujson", `{
		// host side
		"server": {"host": "127.0.0.1", "port": 9000},
		"origins": {
			"builtin": ["*.host.example.com"],
			"additional": ["http://localhost:3000"],
		},
		"client": {"codec": "cbor", "handshake_timeout_ms": 2500},
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"*.host.example.com"}, cfg.Origins.Builtin)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Origins.Additional)
	assert.Equal(t, "cbor", cfg.Client.Codec)
	assert.Equal(t, 2500*time.Millisecond, cfg.Client.HandshakeTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.Client.QueuePollInterval())
	assert.Equal(t, 1500*time.Millisecond, cfg.Origins.RemoteTimeout())
	assert.Equal(t, "/ws/app", cfg.Server.AppPath)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "framelink.yaml", `
host:
  frame_context: sidePanel
  client_type: desktop
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sidePanel", cfg.Host.FrameContext)
	assert.Equal(t, "desktop", cfg.Host.ClientType)
	assert.Equal(t, "{}", cfg.Host.RuntimeConfig, "unset fields keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 24*time.Hour, cfg.Server.ProcessedTTL())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read config failed")

	_, err = Load(writeFile(t, "bad.json", `{"server": `))
	assert.ErrorContains(t, err, "parse config failed")

	_, err = Load(writeFile(t, "typo.yaml", "sever:\n  port: 1\n"))
	assert.ErrorContains(t, err, "parse config failed")

	_, err = Load(writeFile(t, "codec.json", `{"client": {"codec": "xml"}}`))
	assert.ErrorContains(t, err, "client.codec")

	_, err = Load(writeFile(t, "level.json", `{"log": {"level": "loud"}}`))
	assert.ErrorContains(t, err, "log.level")
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf, false)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	logger, err = LogConfig{Level: "error"}.NewLogger(&buf, true)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug), "verbose forces debug")
}
