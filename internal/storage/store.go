// Package storage persists peer profiles and world checkpoints in
// Badger so sessions and world state survive a server restart.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unknownsaying/meshsync/pkg/crypto/adaptive"
)

// Common errors.
var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: closed")
)

// Key prefixes. Profiles are keyed by display name, checkpoints by
// their big-endian id so prefix scans iterate in order.
var (
	prefixProfile    = []byte("profile/")
	prefixCheckpoint = []byte("world/")
)

// Config holds the Badger tuning knobs the server exposes.
type Config struct {
	Dir         string
	SyncWrites  bool
	CacheSize   int64
	GCInterval  time.Duration
	GCThreshold float64

	// EncryptionKey enables at-rest encryption of stored values when
	// set. Must be 32 bytes.
	EncryptionKey []byte

	// Cipher picks the algorithm when encryption is on: "aes-gcm",
	// "chacha20-poly1305", or empty/"auto" for hardware selection.
	Cipher string
}

// Store is the persistence layer.
type Store struct {
	db     *badger.DB
	cfg    Config
	aead   adaptive.Cipher
	logger *slog.Logger

	gcRuns prometheus.Counter
	lsm    prometheus.Gauge
	vlog   prometheus.Gauge

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (or creates) the store at cfg.Dir and starts the
// background value-log GC loop.
func Open(cfg Config, logger *slog.Logger, reg prometheus.Registerer) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("storage: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.GCThreshold <= 0 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if len(cfg.EncryptionKey) > 0 {
		s.aead, err = newCipher(cfg.EncryptionKey, cfg.Cipher)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: init cipher: %w", err)
		}
	}
	if reg != nil {
		factory := promauto.With(reg)
		s.gcRuns = factory.NewCounter(prometheus.CounterOpts{
			Namespace: "meshsync",
			Subsystem: "store",
			Name:      "gc_runs_total",
			Help:      "Completed Badger value log GC runs.",
		})
		s.lsm = factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshsync",
			Subsystem: "store",
			Name:      "lsm_size_bytes",
			Help:      "Badger LSM tree size in bytes.",
		})
		s.vlog = factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshsync",
			Subsystem: "store",
			Name:      "value_log_size_bytes",
			Help:      "Badger value log size in bytes.",
		})
	}

	go s.gcLoop()

	logger.Info("store opened",
		"dir", cfg.Dir,
		"sync_writes", cfg.SyncWrites,
		"encrypted", s.aead != nil,
		"gc_interval", cfg.GCInterval)
	return s, nil
}

func newCipher(key []byte, name string) (adaptive.Cipher, error) {
	switch name {
	case "", "auto":
		return adaptive.New(key)
	default:
		return adaptive.NewWithType(key, adaptive.CipherType(name))
	}
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.doneCh
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("storage: close db: %w", err)
	}
	s.logger.Info("store closed")
	return nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.open(key, value)
}

func (s *Store) set(key, value []byte) error {
	value, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *Store) scan(prefix []byte, fn func(key, value []byte) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			value, err = s.open(it.Item().Key(), value)
			if err != nil {
				return err
			}
			if !fn(it.Item().Key(), value) {
				break
			}
		}
		return nil
	})
}

// seal encrypts a value for storage. The record key is bound in as
// additional data so ciphertexts cannot be swapped between keys.
func (s *Store) seal(key, value []byte) ([]byte, error) {
	if s.aead == nil {
		return value, nil
	}
	sealed, err := s.aead.Encrypt(value, key)
	if err != nil {
		return nil, fmt.Errorf("storage: encrypt value: %w", err)
	}
	return sealed, nil
}

func (s *Store) open(key, value []byte) ([]byte, error) {
	if s.aead == nil {
		return value, nil
	}
	plain, err := s.aead.Decrypt(value, key)
	if err != nil {
		return nil, fmt.Errorf("storage: decrypt value: %w", err)
	}
	return plain, nil
}

// gcLoop runs periodic value log garbage collection until Close.
func (s *Store) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(s.cfg.GCThreshold)
				if errors.Is(err, badger.ErrNoRewrite) {
					break
				}
				if err != nil {
					s.logger.Error("value log gc failed", "error", err)
					break
				}
				if s.gcRuns != nil {
					s.gcRuns.Inc()
				}
			}
			if s.lsm != nil {
				lsm, vlog := s.db.Size()
				s.lsm.Set(float64(lsm))
				s.vlog.Set(float64(vlog))
			}
		case <-s.stopCh:
			return
		}
	}
}

func checkpointKey(id uint64) []byte {
	key := make([]byte, len(prefixCheckpoint)+8)
	copy(key, prefixCheckpoint)
	binary.BigEndian.PutUint64(key[len(prefixCheckpoint):], id)
	return key
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal: %w", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("storage: unmarshal: %w", err)
	}
	return nil
}

// badgerLogger adapts slog to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
