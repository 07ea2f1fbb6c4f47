package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/polar"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, drift.GeneratorSource{}, cfg.DriftSource())
	assert.Zero(t, cfg.CRCLen())
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, `
code:
  code_length: 256
  info_length: 100
  crc: "111010101"
channel:
  ps: 0.005
  pass_ratio: 0.8
decoder:
  list_size: 8
storage:
  drift_tables: /tmp/tables
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, polar.Params{CodeLength: 256, InfoLength: 100, NumSegments: 2}, cfg.PolarParams())
	assert.Equal(t, 0.005, cfg.ChannelParams().Ps)
	assert.Equal(t, 0.8, cfg.DriftParams().PassRatio)
	assert.Equal(t, 1.0, cfg.Channel.DriftStddev, "untouched keys keep their default")
	assert.Equal(t, 8, cfg.Decoder.ListSize)
	assert.Equal(t, drift.FileSource{Dir: "/tmp/tables"}, cfg.DriftSource())

	poly, err := cfg.CRCPoly()
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 1, 1, 0, 1, 0, 1, 0, 1}, poly)
	assert.Equal(t, 8, cfg.CRCLen())
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "code:\n  length: 8\n"))
	require.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	want := Default()
	want.Code.CRC = StandardCRC
	want.Simulation.Seed = 42
	b, err := Marshal(want)
	require.NoError(t, err)
	got, err := Load(writeFile(t, string(b)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMapRoundTrip(t *testing.T) {
	want := Default()
	want.Channel.OffsetRate = 0.25
	m, err := ToMap(want)
	require.NoError(t, err)
	assert.Contains(t, m, "channel")
	got, err := FromMap(m)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// numbers arriving as float64 still fill integer fields
	got, err = FromMap(map[string]any{"code": map[string]any{"code_length": float64(64)}})
	require.NoError(t, err)
	assert.Equal(t, 64, got.Code.CodeLength)

	_, err = FromMap(map[string]any{"bogus": 1})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mut := range map[string]func(*Config){
		"code length":   func(c *Config) { c.Code.CodeLength = 100 },
		"info length":   func(c *Config) { c.Code.InfoLength = 2000 },
		"list size":     func(c *Config) { c.Decoder.ListSize = 0 },
		"segments":      func(c *Config) { c.Decoder.NumSegments = 0 },
		"crc bits":      func(c *Config) { c.Code.CRC = "10x1" },
		"crc leading":   func(c *Config) { c.Code.CRC = "011" },
		"crc overflow":  func(c *Config) { c.Code.InfoLength = 1020; c.Code.CRC = StandardCRC },
		"negative md":   func(c *Config) { c.Channel.MaxDrift = -1 },
	} {
		cfg := Default()
		mut(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
