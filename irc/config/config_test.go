package config

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mq:kernel", cfg.Kernel.Queue)
	assert.Equal(t, 2*time.Minute, cfg.Kernel.PingTimeout.Duration)
	assert.Equal(t, "127.0.0.1:8080", cfg.AdminAddress())
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"ircd.yaml": `
server:
  name: irc.example.net
kernel:
  ping_timeout: 90s
admin:
  enabled: true
  port: 9090
`,
		"ircd.toml": `
[server]
name = "irc.example.net"
[kernel]
ping_timeout = "90s"
[admin]
enabled = true
port = 9090
`,
		"ircd.json": `{
  "server": {"name": "irc.example.net"},
  "kernel": {"ping_timeout": "90s"},
  "admin": {"enabled": true, "port": 9090}
}`,
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, body)
			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "irc.example.net", cfg.Server.Name)
			assert.Equal(t, 90*time.Second, cfg.Kernel.PingTimeout.Duration)
			assert.True(t, cfg.Admin.Enabled)
			assert.Equal(t, 9090, cfg.Admin.Port)
			// untouched keys keep their defaults
			assert.Equal(t, "localhost:6379", cfg.Store.Addr)
			assert.Equal(t, path, cfg.Source)
		})
	}
}

func TestLoadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ircd.yaml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("server:\n  name: remote.example.net\n"))
	}))
	defer srv.Close()

	cfg, err := Load(srv.URL + "/ircd.yaml")
	require.NoError(t, err)
	assert.Equal(t, "remote.example.net", cfg.Server.Name)

	_, err = Load(srv.URL + "/missing.yaml")
	assert.ErrorContains(t, err, "404")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IRCD_SERVER_NAME", "env.example.net")
	t.Setenv("IRCD_STORE_DB", "3")
	t.Setenv("IRCD_ADMIN_ENABLED", "yes")
	t.Setenv("IRCD_POP_TIMEOUT", "250ms")
	t.Setenv("IRCD_PING_TIMEOUT", "not a duration")

	path := writeFile(t, "ircd.yaml", "server:\n  name: file.example.net\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.example.net", cfg.Server.Name)
	assert.Equal(t, 3, cfg.Store.DB)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Kernel.PopTimeout.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Kernel.PingTimeout.Duration, "unparsable value is ignored")
}

func TestValidate(t *testing.T) {
	for name, body := range map[string]string{
		"level":   "log:\n  level: loud\n",
		"addr":    "store:\n  addr: nowhere\n",
		"timeout": "kernel:\n  pop_timeout: 0s\n",
		"queue":   "kernel:\n  queue: \"\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "ircd.yaml", body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load(writeFile(t, "ircd.yaml", "server: [\n"))
	assert.ErrorContains(t, err, "parse config")
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestReload(t *testing.T) {
	path := writeFile(t, "ircd.yaml", "server:\n  name: one.example.net\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  name: two.example.net\n"), 0o600))
	require.NoError(t, cfg.Reload(""))
	assert.Equal(t, "two.example.net", cfg.Server.Name)

	other := writeFile(t, "other.toml", "[server]\nname = \"three.example.net\"\n")
	require.NoError(t, cfg.Reload(other))
	assert.Equal(t, "three.example.net", cfg.Server.Name)
	assert.Equal(t, other, cfg.Source)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	log := cfg.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "component", "test")

	out := strings.TrimSpace(buf.String())
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"component":"test"`)
}
