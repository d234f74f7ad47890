package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.toml", `
[app]
port = 9000

[database]
driver = "sqlite"
sqlite_path = "from-file.db"

[admin]
secret = "file-secret"

[rag]
top_k = 6
`)
	t.Setenv("CONFIG_FILE", cfgPath)
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("SQLITE_PATH", "from-env.db")
	t.Setenv("TWILIO_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, "from-env.db", cfg.Database.SQLitePath)
	assert.Equal(t, "file-secret", cfg.Admin.Secret)
	assert.Equal(t, 6, cfg.RAG.TopK)
	assert.True(t, cfg.Twilio.Enabled)
	assert.Equal(t, 1600, cfg.Twilio.MaxTextLength)
	assert.Equal(t, 4096, cfg.WhatsApp.MaxTextLength)
	assert.Equal(t, "0.0.0.0:9000", cfg.HTTPAddr())
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "none.toml"))
	t.Setenv("ENV_FILE", writeFile(t, dir, ".env", "ADMIN_API_KEY=dotenv-secret\nVERIFY_TOKEN=vt\n"))
	t.Cleanup(func() {
		os.Unsetenv("ADMIN_API_KEY")
		os.Unsetenv("VERIFY_TOKEN")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret", cfg.Admin.Secret)
	assert.Equal(t, "vt", cfg.WhatsApp.VerifyToken)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	assert.Error(t, cfg.Validate(), "admin secret missing")

	cfg.Admin.Secret = "x"
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Driver = "gcs"
	assert.Error(t, cfg.Validate())
	cfg.Storage.Bucket = "pdfs"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate())
	cfg.Database.Driver = "mysql"

	cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestTimeoutDefaults(t *testing.T) {
	var tc TimeoutConfig
	assert.Equal(t, 120*time.Second, tc.Ingest())
	assert.Equal(t, 180*time.Second, tc.Webhook())
	tc.AnswerSeconds = 5
	assert.Equal(t, 5*time.Second, tc.Answer())
}
