package tpnav

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerFakeStrategies(t *testing.T) {
	t.Helper()
	RegisterPTG("config-test-ptg", func(raw json.RawMessage) (PTG, error) {
		return &fakePTG{numPaths: 4, refDist: 1}, nil
	})
	RegisterHolonomic("config-test-holo", func(raw json.RawMessage) (HolonomicMethod, error) {
		return &fakeHolonomic{}, nil
	})
	RegisterOptimizer("config-test-opt", func(raw json.RawMessage) (Optimizer, error) {
		return &fakeOptimizer{}, nil
	})
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigValidConfig(t *testing.T) {
	registerFakeStrategies(t)

	path := writeConfig(t, `{
		"ptgs": [{"class": "config-test-ptg"}],
		"holonomic": {"class": "config-test-holo"},
		"optimizer": {"class": "config-test-opt"},
		"robot": {"inbound_addr": "127.0.0.1:9000", "outbound_addr": "127.0.0.1:9001"}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "config-test-ptg", cfg.PTGs[0].Class)
	assert.Equal(t, 10.0, cfg.HzDecision, "defaults should have been applied")
}

func TestLoadConfigUnknownStrategyClass(t *testing.T) {
	registerFakeStrategies(t)

	path := writeConfig(t, `{
		"ptgs": [{"class": "nonexistent-ptg"}],
		"holonomic": {"class": "config-test-holo"},
		"optimizer": {"class": "config-test-opt"},
		"robot": {"inbound_addr": "127.0.0.1:9000", "outbound_addr": "127.0.0.1:9001"}
	}`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	var unknown *UnknownStrategyClassError
	require.ErrorAs(t, err, &unknown)
}

func TestLoadConfigMissingRobotAddr(t *testing.T) {
	registerFakeStrategies(t)

	path := writeConfig(t, `{
		"ptgs": [{"class": "config-test-ptg"}],
		"holonomic": {"class": "config-test-holo"},
		"optimizer": {"class": "config-test-opt"},
		"robot": {"inbound_addr": "127.0.0.1:9000"}
	}`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	var invalid *ConfigInvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "robot.outbound_addr", invalid.Key)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
