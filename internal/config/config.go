/**
 * Configuration Definitions.
 *
 * Defines the comprehensive configuration structures for the application,
 * including protocol timing, capture settings, logging and storage paths.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server-side static configuration: everything the
// external-tool protocol and packet chain need that isn't carried on a
// per-source definition string elsewhere.
type Config struct {
	Protocol ProtocolConfig `yaml:"protocol"`
	Capture  CaptureConfig  `yaml:"capture"`
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ProtocolConfig holds the external-tool protocol's session timing.
type ProtocolConfig struct {
	// PingInterval is how often the session state machine sends PING
	// frames to a connected capture helper. Default 10s.
	PingInterval time.Duration `yaml:"ping_interval"`
	// PongDeadlineMultiple is loaded but not read by the session, whose
	// timeout is fixed at 2x the ping interval.
	PongDeadlineMultiple int `yaml:"pong_deadline_multiple"`
	// MaxFrameBytes is loaded but not read; the framing codec enforces
	// its own wire.MaxFrameTotal.
	MaxFrameBytes int `yaml:"max_frame_bytes"`
}

// CaptureConfig holds capture defaults. Only VerifyFCS is read (by
// kismet_server); the hop and retry fields are not passed to capture
// helpers, whose channel hopper gives up after a fixed 3 consecutive
// failures.
type CaptureConfig struct {
	// DefaultHopRate is hops/sec when a source definition doesn't name
	// one explicitly.
	DefaultHopRate float64 `yaml:"default_hop_rate"`
	// ShuffleChannels enables Fisher-Yates reordering of the hop list.
	ShuffleChannels bool `yaml:"shuffle_channels"`
	// ShuffleSpacing is how many hops elapse between reshuffles.
	ShuffleSpacing int `yaml:"shuffle_spacing"`
	// ChannelControlRetries bounds consecutive chancontrol failures
	// before a source is marked errored and spun down. Default 3.
	ChannelControlRetries int `yaml:"channel_control_retries"`
	// VerifyFCS enables CRC32 recomputation/comparison in the radiotap
	// dissector when the capture source claims to validate FCS.
	VerifyFCS bool `yaml:"verify_fcs"`
}

// LoggingConfig configures the pcap-ng streaming logger.
type LoggingConfig struct {
	// PcapNGPath is the output file the logger streams blocks into.
	PcapNGPath string `yaml:"pcapng_path"`
	// MaxBacklogBytes and BlockForBacklog are loaded but not read; the
	// pcap-ng logger writes each block to the file as it is logged.
	MaxBacklogBytes int  `yaml:"max_backlog_bytes"`
	BlockForBacklog bool `yaml:"block_for_backlog"`
}

// StorageConfig configures the kismetdb-replay datastore.
type StorageConfig struct {
	// KismetDBPath is the sqlite file the replay datastore reads from
	// (and, for a live server, appends to).
	KismetDBPath string `yaml:"kismetdb_path"`
}

// Load reads and parses a YAML config file, filling in any zero-valued
// fields from Defaults() first so a partial file is valid.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
