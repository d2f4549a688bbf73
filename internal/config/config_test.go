package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/ucl-kintone/internal/connector/kintone"
	"github.com/nucleus/ucl-kintone/internal/sink"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"KINTONE_DOMAIN", "KINTONE_USERNAME", "KINTONE_PASSWORD", "KINTONE_API_TOKEN",
		"KINTONE_APP_IDS", "KINTONE_GUEST_SPACE_ID", "KINTONE_PAGE_SIZE",
		"KINTONE_METRICS_ADDR", "KINTONE_SINK_DSN", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kintone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
kintone:
  domain: example.cybozu.com/
  appIds: ["7", " 8 "]
  authType:
    option: username_password
    username: user
    password: pass
  includeLabel: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.cybozu.com", cfg.Kintone.Domain)
	assert.Equal(t, []string{"7", "8"}, cfg.Kintone.AppIDs)
	assert.True(t, cfg.Kintone.IncludeLabel)
	assert.Equal(t, kintone.DefaultPageSize, cfg.Kintone.PageSize)
	assert.Equal(t, kintone.DefaultLang, cfg.Kintone.Lang)
	assert.Equal(t, SinkJSONL, cfg.Sink.Type)
	assert.Equal(t, DefaultMetricsAddr, cfg.Metrics.Addr)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KINTONE_DOMAIN", "https://env.cybozu.com")
	t.Setenv("KINTONE_APP_IDS", "1,2")
	t.Setenv("KINTONE_API_TOKEN", "tok")
	t.Setenv("KINTONE_PAGE_SIZE", "100")
	t.Setenv("KINTONE_METRICS_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.cybozu.com", cfg.Kintone.Domain)
	assert.Equal(t, []string{"1", "2"}, cfg.Kintone.AppIDs)
	assert.Equal(t, kintone.AuthAPIToken, cfg.Kintone.AuthType.Option)
	assert.Equal(t, 100, cfg.Kintone.PageSize)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
}

func TestLoad_SinkDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
kintone:
  domain: https://example.cybozu.com
  appIds: ["7"]
  authType: {username: u, password: p}
sink:
  type: object
  bucket: raw
  minio:
    endpointUrl: localhost:9000
schedule:
  cron: "@hourly"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sink.FormatParquet, cfg.Sink.Format)
	assert.Equal(t, "localhost:9000", cfg.Sink.Minio.EndpointURL)
	assert.Equal(t, "@hourly", cfg.Schedule.Cron)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing domain",
			body: "kintone:\n  appIds: [\"7\"]\n",
			want: "domain",
		},
		{
			name: "missing password",
			body: "kintone:\n  domain: x.cybozu.com\n  appIds: [\"7\"]\n  authType: {username: u}\n",
			want: "username and password",
		},
		{
			name: "postgres without dsn",
			body: "kintone:\n  domain: x.cybozu.com\n  appIds: [\"7\"]\n  authType: {username: u, password: p}\nsink:\n  type: postgres\n",
			want: "sink.dsn",
		},
		{
			name: "unknown sink",
			body: "kintone:\n  domain: x.cybozu.com\n  appIds: [\"7\"]\n  authType: {username: u, password: p}\nsink:\n  type: kafka\n",
			want: "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
