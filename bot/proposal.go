package bot

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/focuslock/cooagent/action"
)

// Proposal is a staged, unapplied set of actions awaiting the
// operator's decision.
type Proposal struct {
	ID        string
	UserID    int64
	Actions   []action.Action
	Reply     string
	CreatedAt time.Time
}

// ProposalStore holds at most one pending proposal per operator.
// Staging overwrites any prior proposal for the same operator without
// merging or queueing: the last proposal wins. The mutex only keeps the
// map safe under concurrent update handlers; the overwrite race between
// two near-simultaneous inputs is accepted for a single-operator
// deployment.
type ProposalStore struct {
	mu      sync.Mutex
	pending map[int64]*Proposal
}

// NewProposalStore creates an empty store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{pending: make(map[int64]*Proposal)}
}

// Stage replaces the operator's pending proposal and returns it.
func (s *ProposalStore) Stage(userID int64, actions []action.Action, reply string) *Proposal {
	p := &Proposal{
		ID:        uuid.New().String(),
		UserID:    userID,
		Actions:   actions,
		Reply:     reply,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.pending[userID] = p
	s.mu.Unlock()
	return p
}

// Take removes and returns the operator's pending proposal. The second
// return is false when nothing was staged.
func (s *ProposalStore) Take(userID int64) (*Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[userID]
	if ok {
		delete(s.pending, userID)
	}
	return p, ok
}

// Clear discards the operator's pending proposal, reporting whether
// there was one.
func (s *ProposalStore) Clear(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[userID]
	delete(s.pending, userID)
	return ok
}

// Len returns the number of operators with a pending proposal.
func (s *ProposalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
