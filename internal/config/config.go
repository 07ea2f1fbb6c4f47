// Package config loads experiment configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Observe-l/tdc-polar/channel"
	"github.com/Observe-l/tdc-polar/drift"
	"github.com/Observe-l/tdc-polar/polar"
)

// Config is the top-level experiment configuration.
type Config struct {
	Code       CodeConfig       `yaml:"code"`
	Channel    ChannelConfig    `yaml:"channel"`
	Decoder    DecoderConfig    `yaml:"decoder"`
	Simulation SimulationConfig `yaml:"simulation"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
}

// CodeConfig is the polar code shape.
type CodeConfig struct {
	CodeLength int `yaml:"code_length"`
	InfoLength int `yaml:"info_length"`
	// CRC is the generator polynomial as a bit string, most significant
	// coefficient first. Empty disables the CRC.
	CRC string `yaml:"crc"`
}

// ChannelConfig are the timing-drift channel parameters.
type ChannelConfig struct {
	Ps          float64 `yaml:"ps"`
	PassRatio   float64 `yaml:"pass_ratio"`
	DriftStddev float64 `yaml:"drift_stddev"`
	MaxDrift    int     `yaml:"max_drift"`
	OffsetRate  float64 `yaml:"offset_rate"`
}

// DecoderConfig selects the decoder.
type DecoderConfig struct {
	NumSegments int `yaml:"num_segments"`
	// ListSize 1 selects the SC decoder.
	ListSize int `yaml:"list_size"`
}

// SimulationConfig bounds a Monte-Carlo run.
type SimulationConfig struct {
	Seed           uint64 `yaml:"seed"`
	Workers        int    `yaml:"workers"`
	Epochs         int    `yaml:"epochs"`
	MinErrorWords  int    `yaml:"min_error_words"`
	MaxSimulations int    `yaml:"max_simulations"`
	FrozenTrials   int    `yaml:"frozen_trials"`
	AnalysisEpoch  int    `yaml:"analysis_epoch"`
}

// StorageConfig locates tables, rankings and checkpoints on disk.
type StorageConfig struct {
	// DriftTables is the directory of drift probability tables. Empty means
	// tables are generated in memory.
	DriftTables string `yaml:"drift_tables"`
	// Capacities is the directory of capacity record files. Empty disables them.
	Capacities string `yaml:"capacities"`
	// Badger is the capacity database directory. Empty disables it.
	Badger     string `yaml:"badger"`
	Checkpoint string `yaml:"checkpoint"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Code: CodeConfig{CodeLength: 1024, InfoLength: 512},
		Channel: ChannelConfig{
			Ps:          1e-2,
			PassRatio:   1.0,
			DriftStddev: 1.0,
			MaxDrift:    2,
		},
		Decoder: DecoderConfig{NumSegments: 2, ListSize: 1},
		Simulation: SimulationConfig{
			Workers:        12,
			Epochs:         100,
			MinErrorWords:  100,
			MaxSimulations: 10000,
			FrozenTrials:   1000,
			AnalysisEpoch:  100,
		},
		Storage: StorageConfig{Capacities: "."},
		Server:  ServerConfig{Addr: "127.0.0.1:50051", MetricsAddr: "127.0.0.1:9090"},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) { return yaml.Marshal(cfg) }

// ToMap returns cfg as a generic map keyed by the YAML names.
func ToMap(cfg Config) (map[string]any, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap is the inverse of ToMap. Missing keys keep their defaults.
func FromMap(m map[string]any) (Config, error) {
	b, err := yaml.Marshal(m)
	if err != nil {
		return Default(), err
	}
	return Parse(b)
}

// Validate checks structural constraints. Channel values are not range checked.
func (c Config) Validate() error {
	if err := c.PolarParams().Validate(); err != nil {
		return err
	}
	if c.Decoder.ListSize < 1 {
		return fmt.Errorf("config: list size must be at least 1, got %d", c.Decoder.ListSize)
	}
	if c.Channel.MaxDrift < 0 {
		return fmt.Errorf("config: max drift must not be negative, got %d", c.Channel.MaxDrift)
	}
	if _, err := c.CRCPoly(); err != nil {
		return err
	}
	if k := c.Code.InfoLength + c.CRCLen(); k > c.Code.CodeLength {
		return fmt.Errorf("config: %d information and check bits exceed code length %d", k, c.Code.CodeLength)
	}
	return nil
}

// PolarParams returns the code shape the decoders take.
func (c Config) PolarParams() polar.Params {
	return polar.Params{
		CodeLength:  c.Code.CodeLength,
		InfoLength:  c.Code.InfoLength,
		NumSegments: c.Decoder.NumSegments,
	}
}

// ChannelParams returns the channel section as channel.Params.
func (c Config) ChannelParams() channel.Params {
	ch := c.Channel
	return channel.Params{
		Ps:          ch.Ps,
		PassRatio:   ch.PassRatio,
		DriftStddev: ch.DriftStddev,
		MaxDrift:    ch.MaxDrift,
		OffsetRate:  ch.OffsetRate,
	}
}

// DriftParams returns the drift table parameters for the configured
// segment count.
func (c Config) DriftParams() drift.Params {
	return c.ChannelParams().DriftParams(c.Decoder.NumSegments)
}

// DriftSource returns where drift tables come from.
func (c Config) DriftSource() drift.Source {
	if c.Storage.DriftTables == "" {
		return drift.GeneratorSource{}
	}
	return drift.FileSource{Dir: c.Storage.DriftTables}
}

// CRCPoly parses the CRC polynomial. It returns nil when the CRC is disabled.
func (c Config) CRCPoly() ([]uint8, error) {
	if c.Code.CRC == "" {
		return nil, nil
	}
	poly := make([]uint8, len(c.Code.CRC))
	for i, r := range c.Code.CRC {
		switch r {
		case '0':
		case '1':
			poly[i] = 1
		default:
			return nil, fmt.Errorf("config: crc polynomial %q is not a bit string", c.Code.CRC)
		}
	}
	if len(poly) < 2 || poly[0] != 1 {
		return nil, fmt.Errorf("config: crc polynomial %q needs degree >= 1 and a leading 1", c.Code.CRC)
	}
	return poly, nil
}

// CRCLen is the number of check bits, 0 without a CRC.
func (c Config) CRCLen() int {
	if c.Code.CRC == "" {
		return 0
	}
	return len(c.Code.CRC) - 1
}

// StandardCRC is g(x) = x^8 + x^7 + x^6 + x^4 + x^2 + 1.
const StandardCRC = "111010101"
