package confload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/goSyncAuth/configsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log:
  level: debug
http:
  address: ":9100"
  shutdown_timeout: 3s
database:
  url: postgres://auth@localhost/auth
  max_conns: 4
redis:
  addrs: ["localhost:6379"]
token:
  secret: 0123456789abcdef0123456789abcdef
sync:
  shard_name: eu-1
  failed_auth_for_temp_ban: 7
  whitelisted_ips: ["10.0.0.1", "10.0.0.2"]
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gosyncauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileOverDefaults(t *testing.T) {
	cfg, err := NewLoader(WithConfigFile(writeFile(t, sampleYAML)), WithEnvPrefix("GSA_TEST_FILE_")).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9100", cfg.HTTP.Address)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, "public", cfg.Database.Schema)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, 6*time.Hour, cfg.Token.Lifetime)

	assert.Equal(t, 7, cfg.Sync.FailedAuthForTempBan)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Sync.WhitelistedIPs)
	assert.Equal(t, configsync.DefaultSettings().TempBanDurationInMinutes, cfg.Sync.TempBanDurationInMinutes)
	assert.Equal(t, configsync.RolePrimary, cfg.Sync.Role())
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("GSA_TEST_ENV_HTTP__ADDRESS", ":9200")
	t.Setenv("GSA_TEST_ENV_SYNC__MAIN_SERVER_ADDRESS", "http://primary:8080")
	t.Setenv("GSA_TEST_ENV_SYNC__TEMP_BAN_DURATION_IN_MINUTES", "15")

	cfg, err := NewLoader(WithConfigFile(writeFile(t, sampleYAML)), WithEnvPrefix("GSA_TEST_ENV_")).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9200", cfg.HTTP.Address)
	assert.Equal(t, 15, cfg.Sync.TempBanDurationInMinutes)
	assert.Equal(t, configsync.RoleSecondary, cfg.Sync.Role())
	assert.Equal(t, "eu-1", cfg.Sync.ShardName)
}

func TestValidateRejectsIncompleteConfig(t *testing.T) {
	_, err := NewLoader(WithEnvPrefix("GSA_TEST_EMPTY_")).Load()
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)

	cfg := Default()
	cfg.Database.URL = "postgres://x"
	assert.ErrorIs(t, cfg.Validate(), ErrMissingRedisAddrs)

	cfg.Redis.Addrs = []string{"localhost:6379"}
	cfg.Sync.MainServerAddress = "http://primary"
	assert.ErrorIs(t, cfg.Validate(), ErrMissingShardName)

	cfg.Sync.ShardName = "eu-2"
	assert.NoError(t, cfg.Validate())
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
