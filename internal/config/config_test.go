package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
db_driver: postgres
debug: true
script_timeout: 2s
cors_origins: ["https://a.example", "https://b.example"]
`), 0o644))
	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("ALLOW_UNSAFE_CODE", "yes")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", c.HTTPAddr)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.True(t, c.Debug)
	assert.True(t, c.AllowUnsafe)
	assert.Equal(t, 2*time.Second, c.ScriptTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
	assert.Equal(t, "capa", c.XQueueName)
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " http://x , ,http://y")
	t.Setenv("EXTERNAL_TIMEOUT", "not a duration")
	c := FromEnv()
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, []string{"http://x", "http://y"}, c.CORSOrigins)
	assert.Equal(t, 30*time.Second, c.ExternalTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
