package storage

import (
	"context"
	"errors"
	"time"
)

// Profile is a peer's persisted identity: the display name it connects
// under and the state worth keeping across sessions.
type Profile struct {
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Sessions  uint64    `json:"sessions"`

	// LastTokenHash is the SHA-256 of the most recent session token.
	// The plaintext token is never persisted.
	LastTokenHash string `json:"last_token_hash,omitempty"`
}

// SaveProfile stores a profile keyed by its display name.
func (s *Store) SaveProfile(ctx context.Context, p Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := marshalJSON(p)
	if err != nil {
		return err
	}
	return s.set(append(append([]byte(nil), prefixProfile...), p.Name...), b)
}

// LoadProfile fetches a profile by display name. Returns ErrNotFound
// for a name never seen before.
func (s *Store) LoadProfile(ctx context.Context, name string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	b, err := s.get(append(append([]byte(nil), prefixProfile...), name...))
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := unmarshalJSON(b, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// TouchProfile records a connection under name, creating the profile
// on first sight, and returns the updated record. tokenHash is the
// hash of the session token issued for this connection; empty leaves
// the stored hash alone.
func (s *Store) TouchProfile(ctx context.Context, name, tokenHash string, now time.Time) (Profile, error) {
	p, err := s.LoadProfile(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		p = Profile{Name: name, FirstSeen: now}
	default:
		return Profile{}, err
	}
	p.LastSeen = now
	p.Sessions++
	if tokenHash != "" {
		p.LastTokenHash = tokenHash
	}
	if err := s.SaveProfile(ctx, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Profiles returns every stored profile.
func (s *Store) Profiles(ctx context.Context) ([]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Profile
	var decodeErr error
	err := s.scan(prefixProfile, func(_, value []byte) bool {
		var p Profile
		if decodeErr = unmarshalJSON(value, &p); decodeErr != nil {
			return false
		}
		out = append(out, p)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}
