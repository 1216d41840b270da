package peerprotocol

import (
	"sync"
	"time"
)

// Reputation scoring and bans, per spec.md §4.6: penalties drive a peer's
// score down, rewards bring it back up, and a score below banThreshold
// bans the peer for banDuration. Banned entries age out lazily, the next
// time anything reads them.
const (
	penaltyInvalidBlock    = -10
	penaltyInvalidTx       = -2
	penaltyRateLimitBreach = -5
	penaltyOversizedMsg    = -15

	rewardValidBlock = 2
	rewardValidTx    = 1

	banThreshold = -100
	banDuration  = time.Hour
)

type reputationEntry struct {
	score       int64
	bannedUntil time.Time
}

// ReputationTable tracks one reputationEntry per peer identifier.
type ReputationTable struct {
	mu      sync.Mutex
	entries map[string]*reputationEntry
}

// NewReputationTable constructs an empty table.
func NewReputationTable() *ReputationTable {
	return &ReputationTable{entries: make(map[string]*reputationEntry)}
}

func (t *ReputationTable) entry(peerID string) *reputationEntry {
	e, ok := t.entries[peerID]
	if !ok {
		e = &reputationEntry{}
		t.entries[peerID] = e
	}
	return e
}

// IsBanned reports whether peerID is currently banned, ageing the ban out
// (and resetting the score) if it has expired.
func (t *ReputationTable) IsBanned(peerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[peerID]
	if !ok {
		return false
	}
	if e.bannedUntil.IsZero() {
		return false
	}
	if time.Now().After(e.bannedUntil) {
		e.bannedUntil = time.Time{}
		e.score = 0
		return false
	}
	return true
}

func (t *ReputationTable) adjust(peerID string, delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(peerID)
	e.score += delta
	if e.score < banThreshold && e.bannedUntil.IsZero() {
		e.bannedUntil = time.Now().Add(banDuration)
	}
}

// PenalizeInvalidBlock, PenalizeInvalidTx, PenalizeRateLimit and
// PenalizeOversizedMessage apply the fixed penalties from spec.md §4.6.
func (t *ReputationTable) PenalizeInvalidBlock(peerID string) { t.adjust(peerID, penaltyInvalidBlock) }
func (t *ReputationTable) PenalizeInvalidTx(peerID string)    { t.adjust(peerID, penaltyInvalidTx) }
func (t *ReputationTable) PenalizeRateLimit(peerID string)    { t.adjust(peerID, penaltyRateLimitBreach) }
func (t *ReputationTable) PenalizeOversizedMessage(peerID string) {
	t.adjust(peerID, penaltyOversizedMsg)
}

// RewardValidBlock and RewardValidTx apply the fixed rewards.
func (t *ReputationTable) RewardValidBlock(peerID string) { t.adjust(peerID, rewardValidBlock) }
func (t *ReputationTable) RewardValidTx(peerID string)    { t.adjust(peerID, rewardValidTx) }

// Score returns peerID's current score, 0 for an unknown peer.
func (t *ReputationTable) Score(peerID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[peerID]
	if !ok {
		return 0
	}
	return e.score
}
