package workflow

import (
	"sync"

	"github.com/google/uuid"
)

type approvalKey struct {
	userID int64
	stepID int64
	guid   uuid.UUID
	siteID int64
}

// ApprovalScope memoizes CanUserApprove answers for one request. Create one
// per operation and drop it when the operation ends; a nil scope disables
// memoization. The zero value is ready to use.
type ApprovalScope struct {
	mu      sync.Mutex
	answers map[approvalKey]bool
}

// NewApprovalScope returns an empty scope.
func NewApprovalScope() *ApprovalScope {
	return &ApprovalScope{answers: make(map[approvalKey]bool)}
}

func (s *ApprovalScope) get(k approvalKey) (allowed, ok bool) {
	if s == nil {
		return false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed, ok = s.answers[k]
	return allowed, ok
}

func (s *ApprovalScope) put(k approvalKey, allowed bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answers == nil {
		s.answers = make(map[approvalKey]bool)
	}
	s.answers[k] = allowed
}

// Len returns the number of memoized answers.
func (s *ApprovalScope) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}
