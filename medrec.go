// Package medrec is an embedded, authorized store of patient records.
// Every record is owned by the identity that created it; only the owner
// may mutate, transfer or delete it. Access for anyone else is governed
// by explicit, insert-only grants kept in a separate table. Caller
// identity and the creation height are supplied by the surrounding
// execution context on every call.
package medrec

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// InMemory opens a store without a backing file.
const InMemory = ":memory:"

type Closer func() error

func NullCloser() error { return nil }

type Store struct {
	e      *engine
	mu     sync.RWMutex
	closed bool
}

// Open creates or reopens a record store backed by the file at path, or a
// purely in-memory one when path is medrec.InMemory. An existing file is
// replayed before Open returns.
func Open(path string, cfgs ...*Config) (*Store, Closer, error) {
	cfg := &Config{}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	cfg.setDefaults()

	e, err := newEngine(path, cfg)
	if err != nil {
		return nil, NullCloser, err
	}

	if err := e.init(); err != nil {
		return nil, NullCloser, err
	}

	s := Store{e: e}

	return &s, s.close, nil
}

func (s *Store) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDatabaseAlreadyClosed
	}

	if err := s.e.close(); err != nil {
		return err
	}

	s.e = nil
	s.closed = true
	return nil
}

// AddRecord validates the supplied fields, allocates the next record id
// and stores the record owned by caller, together with the caller's own
// access grant. Ids are 1-based, strictly increasing and never reused.
func (s *Store) AddRecord(
	caller string,
	height uint64,
	patientName string,
	recordSize uint64,
	notes string,
	tags []string,
) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrDatabaseAlreadyClosed
	}

	return s.e.addRecord(caller, height, patientName, recordSize, notes, tags)
}

// Record returns a copy of the record under id. Reads carry no
// authorization check.
func (s *Store) Record(id uint64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrDatabaseAlreadyClosed
	}

	s.e.mu.RLock()
	defer s.e.mu.RUnlock()

	ent, err := s.e.findByIDUnderLock(id)
	if err != nil {
		return nil, err
	}

	return newRecordFromEntry(ent), nil
}

func (s *Store) PatientName(id uint64) (string, error) {
	r, err := s.Record(id)
	if err != nil {
		return "", err
	}

	return r.PatientName(), nil
}

func (s *Store) Physician(id uint64) (string, error) {
	r, err := s.Record(id)
	if err != nil {
		return "", err
	}

	return r.Physician(), nil
}

func (s *Store) CreationHeight(id uint64) (uint64, error) {
	r, err := s.Record(id)
	if err != nil {
		return 0, err
	}

	return r.CreationHeight(), nil
}

func (s *Store) RecordSize(id uint64) (uint64, error) {
	r, err := s.Record(id)
	if err != nil {
		return 0, err
	}

	return r.RecordSize(), nil
}

func (s *Store) Notes(id uint64) (string, error) {
	r, err := s.Record(id)
	if err != nil {
		return "", err
	}

	return r.Notes(), nil
}

func (s *Store) Tags(id uint64) ([]string, error) {
	r, err := s.Record(id)
	if err != nil {
		return nil, err
	}

	return r.Tags(), nil
}

func (s *Store) TagCount(id uint64) (int, error) {
	r, err := s.Record(id)
	if err != nil {
		return 0, err
	}

	return r.TagCount(), nil
}

// UpdateRecord overwrites every mutable field of the record in place.
// Only the current owner may call it; every field is re-validated with
// the creation rules.
func (s *Store) UpdateRecord(
	id uint64,
	caller string,
	patientName string,
	recordSize uint64,
	notes string,
	tags []string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDatabaseAlreadyClosed
	}

	return s.e.updateRecord(id, caller, patientName, recordSize, notes, tags)
}

// UpdateRecordFields overwrites notes and tags only. Unlike UpdateRecord
// it accepts empty notes: only the upper length bound applies here.
func (s *Store) UpdateRecordFields(id uint64, caller string, notes string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDatabaseAlreadyClosed
	}

	return s.e.updateRecordFields(id, caller, notes, tags)
}

// TransferOwnership hands the record to newPhysician unconditionally.
// The previous owner's self-grant stays in the grant table and the new
// owner receives none; ownership on the record itself is the only write
// authority.
func (s *Store) TransferOwnership(id uint64, caller, newPhysician string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDatabaseAlreadyClosed
	}

	return s.e.transferOwnership(id, caller, newPhysician)
}

// DeleteRecord removes the record and the deleting owner's own grant
// entry. Grants held by other users on the deleted record are NOT
// removed and remain in the table as orphans; revoking them is not part
// of the model.
func (s *Store) DeleteRecord(id uint64, caller string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDatabaseAlreadyClosed
	}

	return s.e.deleteRecord(id, caller)
}

func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrDatabaseAlreadyClosed
	}

	return s.e.count(), nil
}

// Scan visits every record ascending by id, handing fn a copy of each.
// Iteration stops early when fn returns false or ctx is done.
func (s *Store) Scan(ctx context.Context, fn func(r *Record) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrDatabaseAlreadyClosed
	}

	if err := s.e.scan(ctx, fn); err != nil {
		return errors.Wrap(err, "record scan failed")
	}

	return nil
}
