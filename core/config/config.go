// Package config loads participant/domain configuration from TOML node
// configuration files.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level participant configuration file shape.
type Config struct {
	Domain    DomainConfig
	Transport TransportConfig
	Discovery DiscoveryConfig
	QoS       QoSDefaults
}

// DomainConfig selects the DDS domain and optional domain tag (spec §3,
// §4.7).
type DomainConfig struct {
	DomainID      uint32
	DomainTag     string
	ParticipantID uint32
}

// TransportConfig binds the participant's transport (spec §6).
type TransportConfig struct {
	UnicastBindAddress string
	MTU                int `toml:"mtu"`
}

// DiscoveryConfig tunes SPDP/SEDP timing (spec §4.7, §4.10).
type DiscoveryConfig struct {
	SPDPAnnounceInterval Duration
	LeaseDuration        Duration
	LeaseSlack           Duration
}

// QoSDefaults holds the defaults applied to entities that don't override
// them.
type QoSDefaults struct {
	HeartbeatPeriod        Duration
	NackResponseDelay      Duration
	NackSuppressionDuration Duration
	HeartbeatResponseDelay Duration
	HeartbeatSuppressionDuration Duration
}

// Duration wraps time.Duration so it can be parsed from a TOML string
// like "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML string
// values.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in default configuration: domain 0, the
// RTPS-specified SPDP cadence, and conservative reliability pacing.
func Default() Config {
	return Config{
		Domain: DomainConfig{DomainID: 0},
		Transport: TransportConfig{
			UnicastBindAddress: "0.0.0.0:0",
			MTU:                1400,
		},
		Discovery: DiscoveryConfig{
			SPDPAnnounceInterval: Duration{300 * time.Millisecond},
			LeaseDuration:        Duration{100 * time.Second},
			LeaseSlack:           Duration{10 * time.Second},
		},
		QoS: QoSDefaults{
			HeartbeatPeriod:              Duration{200 * time.Millisecond},
			NackResponseDelay:            Duration{200 * time.Millisecond},
			NackSuppressionDuration:      Duration{0},
			HeartbeatResponseDelay:       Duration{500 * time.Millisecond},
			HeartbeatSuppressionDuration: Duration{0},
		},
	}
}

// LoadFile parses a TOML configuration file at path, layering it over
// Default().
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadString parses a TOML configuration document from a string, layering
// it over Default(). Primarily used by tests.
func LoadString(doc string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(doc, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
