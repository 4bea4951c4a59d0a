package medrec

import "github.com/pkg/errors"

var ErrNotAuthorized = errors.New("caller is not authorized")
var ErrAlreadyGranted = errors.New("access already granted")
var ErrUserNotEligible = errors.New("user is not eligible for a grant")

// ErrAccessNotEvaluated means a (record, user) pair has never been
// granted. It is deliberately not the same thing as "denied": the grant
// table is insert-only and holds no explicit denials, so absence only
// says the pair was never evaluated. Callers that need a strict boolean
// should treat it as deny.
var ErrAccessNotEvaluated = errors.New("access never evaluated")

// GrantAccess lets the record's owner grant user access to it. The
// record must exist, granter must own it and user must pass the
// configured eligibility policy. Granting is create-only: repeating a
// grant for the same pair fails with ErrAlreadyGranted rather than
// silently succeeding.
func (s *Store) GrantAccess(id uint64, granter, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDatabaseAlreadyClosed
	}

	return s.e.grantAccess(id, granter, user)
}

// CheckAccess reports whether user holds a grant on the record. A pair
// that was never granted yields (false, ErrAccessNotEvaluated); the
// record itself is not required to exist, since grants may outlive their
// record.
func (s *Store) CheckAccess(id uint64, user string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrDatabaseAlreadyClosed
	}

	return s.e.checkAccess(id, user)
}
