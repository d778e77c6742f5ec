package repository

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/bewirtungsbeleg/internal/domain"
)

type memoryEntry struct {
	token     domain.EmailToken
	expiresAt time.Time
}

type memoryIndex struct {
	hashes    map[string]struct{}
	expiresAt time.Time
}

// MemoryTokenStore keeps email tokens in process memory. It is used in
// development and tests; entries disappear on restart.
type MemoryTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]memoryEntry
	byEmail map[string]*memoryIndex
	now     func() time.Time
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens:  make(map[string]memoryEntry),
		byEmail: make(map[string]*memoryIndex),
		now:     time.Now,
	}
}

// WithClock sets the clock used for TTL eviction.
func (s *MemoryTokenStore) WithClock(now func() time.Time) *MemoryTokenStore {
	s.now = now
	return s
}

// Get retrieves a token by hash.
func (s *MemoryTokenStore) Get(_ context.Context, hash string) (*domain.EmailToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(hash)
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	token := entry.token
	return &token, nil
}

// Set stores a token until ttl has elapsed since its creation. The entry is
// still returned at exactly CreatedAt+ttl.
func (s *MemoryTokenStore) Set(_ context.Context, token *domain.EmailToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *token
	stored.Value = ""
	s.tokens[token.Hash] = memoryEntry{token: stored, expiresAt: expiresAt(token, ttl, s.now)}
	return nil
}

// Delete removes a token and reports whether it existed.
func (s *MemoryTokenStore) Delete(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.live(hash)
	delete(s.tokens, hash)
	return ok, nil
}

// Take removes and returns a token in one step.
func (s *MemoryTokenStore) Take(_ context.Context, hash string) (*domain.EmailToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(hash)
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	delete(s.tokens, hash)
	token := entry.token
	return &token, nil
}

// SetByEmail adds hash to the index of tokens issued for email and kind.
func (s *MemoryTokenStore) SetByEmail(_ context.Context, email string, kind domain.TokenKind, hash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailIndexKey(email, kind)
	idx, ok := s.byEmail[key]
	if !ok || s.now().After(idx.expiresAt) {
		idx = &memoryIndex{hashes: make(map[string]struct{})}
		s.byEmail[key] = idx
	}
	idx.hashes[hash] = struct{}{}
	idx.expiresAt = s.now().Add(ttl)
	return nil
}

// DeleteByEmail removes the index for email and kind together with every
// token it references. It returns the number of tokens removed.
func (s *MemoryTokenStore) DeleteByEmail(_ context.Context, email string, kind domain.TokenKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailIndexKey(email, kind)
	idx, ok := s.byEmail[key]
	delete(s.byEmail, key)

	removed := 0
	if ok {
		for hash := range idx.hashes {
			if _, live := s.live(hash); live {
				removed++
			}
			delete(s.tokens, hash)
		}
	}

	// Tokens of this email and kind that slipped past the index (for example
	// after the index itself expired) are swept as well.
	for hash, entry := range s.tokens {
		if entry.token.Kind == kind && entry.token.Email == email {
			delete(s.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

// live returns the entry for hash if present and not expired. Expired
// entries are evicted. Callers must hold s.mu.
func (s *MemoryTokenStore) live(hash string) (memoryEntry, bool) {
	entry, ok := s.tokens[hash]
	if !ok {
		return memoryEntry{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.tokens, hash)
		return memoryEntry{}, false
	}
	return entry, true
}
