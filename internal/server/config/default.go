// Package config defines the server configuration structure.
package config

import (
	"encoding/hex"
	"time"
)

// Default configuration values.
const (
	DefaultAddr              = "0.0.0.0:5850"
	DefaultObservabilityAddr = "127.0.0.1:5851"
	DefaultMaxPeers          = 256

	DefaultTickRate             = 60
	DefaultSnapshotInterval     = 2
	DefaultMaxPayload           = 1400
	DefaultMaxEntitiesPerPacket = 64

	DefaultMaxRetries        = 5
	DefaultRetryTimeout      = 250 * time.Millisecond
	DefaultKeepaliveInterval = time.Second

	DefaultInterpolationWindow = 100 * time.Millisecond
	DefaultEpsilonPos          = 0.1
	DefaultEpsilonRot          = 0.01
	DefaultStalenessCutoff     = time.Second
	DefaultMaxSpeed            = 10

	DefaultDataDir            = "/var/lib/meshsync-server/data"
	DefaultGCInterval         = 10 * time.Minute
	DefaultCheckpointInterval = 30 * time.Second
	DefaultCheckpointKeep     = 3
	DefaultCipher             = "auto"

	DefaultAdminRateLimit = 50

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Addr:              DefaultAddr,
			ObservabilityAddr: DefaultObservabilityAddr,
			MaxPeers:          DefaultMaxPeers,
		},
		Protocol: ProtocolSection{
			TickRate:             DefaultTickRate,
			SnapshotInterval:     DefaultSnapshotInterval,
			MaxPayload:           DefaultMaxPayload,
			MaxEntitiesPerPacket: DefaultMaxEntitiesPerPacket,
		},
		Reliability: ReliabilitySection{
			MaxRetries:        DefaultMaxRetries,
			RetryTimeout:      DefaultRetryTimeout,
			KeepaliveInterval: DefaultKeepaliveInterval,
		},
		Replication: ReplicationSection{
			InterpolationWindow: DefaultInterpolationWindow,
			EpsilonPos:          DefaultEpsilonPos,
			EpsilonRot:          DefaultEpsilonRot,
			StalenessCutoff:     DefaultStalenessCutoff,
			MaxSpeed:            DefaultMaxSpeed,
		},
		Storage: StorageSection{
			DataDir:            DefaultDataDir,
			GCInterval:         DefaultGCInterval,
			CheckpointInterval: DefaultCheckpointInterval,
			CheckpointKeep:     DefaultCheckpointKeep,
			Cipher:             DefaultCipher,
		},
		Admin: AdminSection{
			RateLimit: DefaultAdminRateLimit,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// TickDuration returns the wall time of one simulation tick.
func (p *ProtocolSection) TickDuration() time.Duration {
	return time.Second / time.Duration(p.TickRate)
}

// EffectivePeerTimeout resolves the peer timeout, deriving three
// missed keepalives when unset.
func (r *ReliabilitySection) EffectivePeerTimeout() time.Duration {
	if r.PeerTimeout > 0 {
		return r.PeerTimeout
	}
	return 3 * r.KeepaliveInterval
}

// EncryptionKeyBytes decodes the at-rest encryption key. Returns nil
// when encryption is disabled. Verify has already checked the format.
func (s *StorageSection) EncryptionKeyBytes() []byte {
	if s.EncryptionKey == "" {
		return nil
	}
	key, err := hex.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil
	}
	return key
}
