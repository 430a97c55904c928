package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestInitConfig_DefaultLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := InitConfig(InitOptions{})
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfigPath(), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, section := range []string{"# dittocdn configuration file", "logging:", "site:", "cdn:", "queue:", "api:"} {
		assert.Contains(t, string(content), section)
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0600))

	err := InitConfigToPath(path, InitOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	content, _ := os.ReadFile(path)
	assert.Equal(t, "existing", string(content))
}

func TestInitConfigToPath_Force(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0600))

	require.NoError(t, InitConfigToPath(path, InitOptions{Force: true}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, "existing", string(content))
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, InitConfigToPath(path, InitOptions{
		SiteRoot:      "/srv/blog",
		SiteURL:       "https://blog.example.com",
		Engine:        "minio",
		AdminPassword: "hunter22",
	}))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "/srv/blog", cfg.Site.Root)
	assert.Equal(t, "https://blog.example.com", cfg.Site.URL)
	assert.Equal(t, "minio", cfg.CDN.Engine)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "admin", cfg.API.Admin.Username)
	assert.GreaterOrEqual(t, len(cfg.API.JWT.Secret), 32)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(cfg.API.Admin.PasswordHash), []byte("hunter22")))
	assert.True(t, cfg.CDN.Groups.Uploads)
}

func TestGenerateSecret_Unique(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
