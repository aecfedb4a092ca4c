// Package config defines the server configuration structure.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/unknownsaying/meshsync/internal/wire"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyProtocol(&cfg.Protocol); err != nil {
		return err
	}
	if err := verifyReliability(&cfg.Reliability); err != nil {
		return err
	}
	if err := verifyReplication(&cfg.Replication); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	return verifyAdmin(&cfg.Admin)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.MaxPeers < 1 {
		return errors.New("server.max_peers must be at least 1")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file must be set together")
	}
	return nil
}

func verifyProtocol(cfg *ProtocolSection) error {
	if cfg.TickRate < 1 || cfg.TickRate > 240 {
		return fmt.Errorf("protocol.tick_rate %d out of range [1, 240]", cfg.TickRate)
	}
	if cfg.SnapshotInterval < 1 {
		return errors.New("protocol.snapshot_interval must be at least 1")
	}
	if cfg.MaxPayload < wire.HeaderSize+64 || cfg.MaxPayload > wire.MaxPacketSize {
		return fmt.Errorf("protocol.max_payload %d out of range [%d, %d]",
			cfg.MaxPayload, wire.HeaderSize+64, wire.MaxPacketSize)
	}
	if cfg.MaxEntitiesPerPacket < 1 {
		return errors.New("protocol.max_entities_per_packet must be at least 1")
	}
	return nil
}

func verifyReliability(cfg *ReliabilitySection) error {
	if cfg.MaxRetries < 1 {
		return errors.New("reliability.max_retries must be at least 1")
	}
	if cfg.RetryTimeout <= 0 {
		return errors.New("reliability.retry_timeout must be positive")
	}
	if cfg.KeepaliveInterval <= 0 {
		return errors.New("reliability.keepalive_interval must be positive")
	}
	if cfg.PeerTimeout != 0 && cfg.PeerTimeout < cfg.KeepaliveInterval {
		return errors.New("reliability.peer_timeout shorter than keepalive interval")
	}
	return nil
}

func verifyReplication(cfg *ReplicationSection) error {
	if cfg.InterpolationWindow <= 0 {
		return errors.New("replication.interpolation_window must be positive")
	}
	if cfg.EpsilonPos < 0 || cfg.EpsilonRot < 0 {
		return errors.New("replication epsilons must not be negative")
	}
	if cfg.StalenessCutoff <= 0 {
		return errors.New("replication.staleness_cutoff must be positive")
	}
	if cfg.MaxSpeed <= 0 {
		return errors.New("replication.max_speed must be positive")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	if cfg.CheckpointKeep < 1 {
		return errors.New("storage.checkpoint_keep must be at least 1")
	}
	if cfg.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("storage.encryption_key is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("storage.encryption_key must be 32 bytes, got %d", len(key))
		}
		switch cfg.Cipher {
		case "", "auto", "aes-gcm", "chacha20-poly1305":
		default:
			return fmt.Errorf("storage.cipher %q unknown", cfg.Cipher)
		}
	}
	return nil
}

func verifyAdmin(cfg *AdminSection) error {
	if cfg.TokenHash != "" {
		h, err := hex.DecodeString(cfg.TokenHash)
		if err != nil {
			return fmt.Errorf("admin.token_hash is not valid hex: %w", err)
		}
		if len(h) != sha256.Size {
			return fmt.Errorf("admin.token_hash must be a SHA-256 digest, got %d bytes", len(h))
		}
	}
	if cfg.RateLimit < 0 {
		return errors.New("admin.rate_limit must not be negative")
	}
	return nil
}
