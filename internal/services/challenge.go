package services

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/moltbook-governance/recruiter/internal/models"
)

const challengeTokenBytes = 32

// ChallengeStore issues and tracks one-time verification challenges. One live
// challenge per identity; consumption is atomic, so two concurrent
// verifications can never both succeed on the same challenge.
type ChallengeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	challenges map[string]*models.Challenge
	now        func() time.Time
}

// NewChallengeStore creates a challenge store with the given token TTL
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{
		ttl:        ttl,
		challenges: make(map[string]*models.Challenge),
		now:        time.Now,
	}
}

// Issue creates and stores a fresh random token for the identity, replacing
// any prior unconsumed challenge
func (s *ChallengeStore) Issue(username string) (*models.Challenge, error) {
	buf := make([]byte, challengeTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate challenge token: %w", err)
	}

	challenge := &models.Challenge{
		Username: username,
		Token:    base64.RawURLEncoding.EncodeToString(buf),
		Status:   models.ChallengeIssued,
		IssuedAt: s.now(),
	}

	s.mu.Lock()
	s.challenges[username] = challenge
	s.mu.Unlock()

	cp := *challenge
	return &cp, nil
}

// Verify returns true iff the identity has an issued, unexpired challenge whose
// token equals response. On success the challenge is marked consumed, so a
// replay of the same response fails.
func (s *ChallengeStore) Verify(username, response string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[username]
	if !ok || challenge.Status != models.ChallengeIssued {
		return false
	}
	if s.now().Sub(challenge.IssuedAt) > s.ttl {
		challenge.Status = models.ChallengeExpired
		return false
	}
	if response == "" || response != challenge.Token {
		return false
	}

	challenge.Status = models.ChallengeConsumed
	return true
}

// Token returns the identity's live token, if one is issued and unexpired
func (s *ChallengeStore) Token(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[username]
	if !ok || challenge.Status != models.ChallengeIssued {
		return "", false
	}
	if s.now().Sub(challenge.IssuedAt) > s.ttl {
		challenge.Status = models.ChallengeExpired
		return "", false
	}
	return challenge.Token, true
}

// SweepStale expires issued challenges older than the TTL and returns how many
// were expired
func (s *ChallengeStore) SweepStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, challenge := range s.challenges {
		if challenge.Status == models.ChallengeIssued && now.Sub(challenge.IssuedAt) > s.ttl {
			challenge.Status = models.ChallengeExpired
			expired++
		}
	}
	return expired
}
