/**
 * Configuration Defaults.
 *
 * Provides sane default values for application configuration to ensure
 * NetScope can run out-of-the-box without extensive setup.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package config

import "time"

// Defaults returns a Config populated with sane baseline values
// (ping interval 10s, pong deadline 2x, channel-control retry budget 3)
// and reasonable server-side defaults for everything else.
func Defaults() *Config {
	return &Config{
		Protocol: ProtocolConfig{
			PingInterval:         10 * time.Second,
			PongDeadlineMultiple: 2,
			MaxFrameBytes:        16384,
		},
		Capture: CaptureConfig{
			DefaultHopRate:        1.0,
			ShuffleChannels:       true,
			ShuffleSpacing:        1,
			ChannelControlRetries: 3,
			VerifyFCS:             false,
		},
		Logging: LoggingConfig{
			PcapNGPath:      "kismet.pcapng",
			MaxBacklogBytes: 16 << 20,
			BlockForBacklog: true,
		},
		Storage: StorageConfig{
			KismetDBPath: "kismet.kismetdb",
		},
	}
}
