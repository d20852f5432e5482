package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsUnknownPrefetchMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime.PrefetchMode = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeWorkerCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime.WorkerCount = -1
	require.Error(t, cfg.Validate())
}

func TestPrefetchModeValueTranslatesEachMode(t *testing.T) {
	cases := map[string]tasking.PrefetchMode{
		"off":       tasking.PrefetchOff,
		"fixed":     tasking.PrefetchFixed,
		"automatic": tasking.PrefetchAutomatic,
	}
	for mode, want := range cases {
		r := RuntimeConfig{PrefetchMode: mode}
		require.Equal(t, want, r.PrefetchModeValue())
	}
}

func TestWriteExampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mxtasking.yaml")
	require.NoError(t, WriteExample(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Config
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	require.Equal(t, *DefaultConfig(), loaded)
}
