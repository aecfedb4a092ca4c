// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for meshsync-server.
type ServerConfig struct {
	Server      ServerSection      `koanf:"server"`
	Protocol    ProtocolSection    `koanf:"protocol"`
	Reliability ReliabilitySection `koanf:"reliability"`
	Replication ReplicationSection `koanf:"replication"`
	Storage     StorageSection     `koanf:"storage"`
	Admin       AdminSection       `koanf:"admin"`
	Log         LogSection         `koanf:"log"`
}

// ServerSection configures the server's listeners and capacity.
type ServerSection struct {
	// Addr is the UDP bind address for game traffic.
	Addr string `koanf:"addr"`

	// ObservabilityAddr serves /metrics and /healthz over HTTP.
	// Empty disables the listener.
	ObservabilityAddr string `koanf:"observability_addr"`

	// WebSocketAddr serves the WebSocket datagram bridge for clients
	// that cannot open a UDP socket. Empty disables the bridge.
	WebSocketAddr string `koanf:"websocket_addr"`

	// MaxPeers caps concurrent sessions.
	MaxPeers int `koanf:"max_peers"`

	// TLSCertFile and TLSKeyFile enable HTTPS on the observability
	// listener. Both must be set; the certificate is reloaded when
	// either file changes on disk.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`
}

// ProtocolSection configures the simulation and wire cadence.
type ProtocolSection struct {
	// TickRate is simulation ticks per second.
	TickRate int `koanf:"tick_rate"`

	// SnapshotInterval is how many ticks pass between snapshots.
	SnapshotInterval int `koanf:"snapshot_interval"`

	// MaxPayload is the largest datagram the server will send.
	MaxPayload int `koanf:"max_payload"`

	// MaxEntitiesPerPacket caps entities in one snapshot.
	MaxEntitiesPerPacket int `koanf:"max_entities_per_packet"`
}

// ReliabilitySection configures retransmission and liveness.
type ReliabilitySection struct {
	// MaxRetries is how many times a reliable packet is resent before
	// its peer is declared unreachable.
	MaxRetries int `koanf:"max_retries"`

	// RetryTimeout is the wait before each retransmission.
	RetryTimeout time.Duration `koanf:"retry_timeout"`

	// KeepaliveInterval is how often idle links emit keepalives.
	KeepaliveInterval time.Duration `koanf:"keepalive_interval"`

	// PeerTimeout is how long a silent peer survives before eviction.
	// Zero derives it from the keepalive interval.
	PeerTimeout time.Duration `koanf:"peer_timeout"`
}

// ReplicationSection configures interpolation and reconciliation.
type ReplicationSection struct {
	// InterpolationWindow is how far behind real time remote entities
	// are rendered.
	InterpolationWindow time.Duration `koanf:"interpolation_window"`

	// EpsilonPos is the position divergence below which reconciliation
	// leaves a prediction alone.
	EpsilonPos float32 `koanf:"epsilon_pos"`

	// EpsilonRot is the rotation divergence threshold.
	EpsilonRot float32 `koanf:"epsilon_rot"`

	// StalenessCutoff is how long without updates before an entity is
	// flagged stale.
	StalenessCutoff time.Duration `koanf:"staleness_cutoff"`

	// MaxSpeed clamps entity movement from client input, units/s.
	MaxSpeed float32 `koanf:"max_speed"`
}

// StorageSection configures persistence.
type StorageSection struct {
	DataDir            string        `koanf:"data_dir"`
	SyncWrites         bool          `koanf:"sync_writes"`
	GCInterval         time.Duration `koanf:"gc_interval"`
	CheckpointInterval time.Duration `koanf:"checkpoint_interval"`
	CheckpointKeep     int           `koanf:"checkpoint_keep"`

	// EncryptionKey enables at-rest encryption of stored values when
	// set. Hex encoded, 32 bytes.
	EncryptionKey string `koanf:"encryption_key"`

	// Cipher selects the encryption algorithm: "auto", "aes-gcm" or
	// "chacha20-poly1305". Only consulted when EncryptionKey is set.
	Cipher string `koanf:"cipher"`
}

// AdminSection configures the admin HTTP API, mounted on the
// observability listener and on the local management socket.
type AdminSection struct {
	// TokenHash is the hex SHA-256 of the admin bearer token. Empty
	// disables the admin API on the observability listener; the local
	// socket never requires a token.
	TokenHash string `koanf:"token_hash"`

	// AllowList restricts admin API callers by IP or CIDR. Empty
	// means no network restriction.
	AllowList []string `koanf:"allow_list"`

	// RateLimit is the per-IP request budget in requests per second.
	RateLimit int `koanf:"rate_limit"`

	// LocalSocket is the Unix socket path for unauthenticated local
	// management access. Empty disables it.
	LocalSocket string `koanf:"local_socket"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
