// Package tokenstore keeps a guest's claim tokens.  The mapping is local
// to one client process and persisted as a JSON file so it survives
// restarts.  It is the only place a claimant's proof of ownership lives:
// losing the file forfeits voluntary release, and the item then frees up
// through lease expiry instead.
package tokenstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/akarels/giftregistry/internal/model"
)

// Store maps item IDs to the claim tokens this process holds.
type Store struct {
	mu     sync.Mutex
	path   string
	tokens map[string]string
}

// Open loads the token file at path, creating state for a fresh file when
// it does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, tokens: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.tokens); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Token returns the token held for the item, if any.
func (s *Store) Token(itemID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[itemID]
	return tok, ok
}

// Put records a token for the item and persists the file.
func (s *Store) Put(itemID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[itemID] = token
	return s.flushLocked()
}

// Forget drops the token for the item, if present, and persists.
func (s *Store) Forget(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[itemID]; !ok {
		return nil
	}
	delete(s.tokens, itemID)
	return s.flushLocked()
}

// Prune reconciles the store against a feed snapshot.  A token survives
// only while its item is still held (not expired) under that exact token;
// entries for deleted, released, expired or re-claimed items are dropped.
// It returns the IDs that were pruned.
func (s *Store) Prune(items []model.ItemView) ([]string, error) {
	byID := make(map[string]model.ItemView, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned []string
	for id, tok := range s.tokens {
		it, ok := byID[id]
		if ok && it.Lease == model.LeaseHeld && it.ClaimFingerprint == model.TokenFingerprint(tok) {
			continue
		}
		delete(s.tokens, id)
		pruned = append(pruned, id)
	}
	if len(pruned) == 0 {
		return nil, nil
	}
	return pruned, s.flushLocked()
}

// flushLocked writes the file atomically via a temp-file rename.
func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.tokens, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
