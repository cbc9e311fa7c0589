package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/beacon/cmd/beacon-hub/app/options"
)

type recordingReloader struct{ modes []string }

func (r *recordingReloader) SetPersistModes(modes []string) { r.modes = modes }

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hub.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http:
  addr: 127.0.0.1:9090
ingest:
  generation: legacy
  persist-modes: [EMERGENCY]
  persist-timeout: 2s
store:
  backend: memory
`), 0o600))

	t.Setenv("BEACON_MQTT_TOPIC_ROOT", "fleet/v2")

	cmd := NewHubCommand(context.Background())
	require.NoError(t, cmd.Flags().Parse([]string{"--log.level=debug"}))

	opts := options.NewHubOptions()
	require.NoError(t, loadConfig(viper.New(), cmd, file, opts))

	assert.Equal(t, "127.0.0.1:9090", opts.HttpOptions.Addr)
	assert.Equal(t, "legacy", opts.IngestOptions.Generation)
	assert.Equal(t, []string{"EMERGENCY"}, opts.IngestOptions.PersistModes)
	assert.Equal(t, 2*time.Second, opts.IngestOptions.PersistTimeout)
	assert.Equal(t, "fleet/v2", opts.MqttOptions.TopicRoot)
	assert.Equal(t, "debug", opts.Log.Level)
	assert.Equal(t, int64(64<<10), opts.HttpOptions.MaxBodyBytes)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cmd := NewHubCommand(context.Background())
	err := loadConfig(viper.New(), cmd, filepath.Join(t.TempDir(), "absent.yaml"), options.NewHubOptions())
	assert.Error(t, err)
}

func TestApplyReload(t *testing.T) {
	v := viper.New()
	v.Set("ingest.persist-modes", []string{"STATUS", "EMERGENCY"})
	v.Set("log.level", "warn")

	r := &recordingReloader{}
	applyReload(v, r)
	assert.Equal(t, []string{"STATUS", "EMERGENCY"}, r.modes)
}

func TestCommandFlags(t *testing.T) {
	cmd := NewHubCommand(context.Background())
	for _, name := range []string{"config", "http.addr", "ingest.generation", "store.backend", "kafka.brokers", "log.level"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
