package medrec

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/denismitr/medrec/internal/acl"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"
)

var ErrRecordNotFound = errors.New("record not found")

// ErrRecordExists signals that the id allocation counter and the primary
// index disagree. It is an internal consistency check: observing it means
// a store bug, not caller misuse.
var ErrRecordExists = errors.New("record already exists")

const castPanic = "how could primary keys item not be of type *entry"

type engine struct {
	dbFile        string
	cfg           *Config
	persistence   *persistence
	pks           *btree.BTree
	grants        *acl.Table
	counter       uint64
	stopCh        chan struct{}
	runningVacuum bool
	mu            sync.RWMutex
	totalDeletes  uint64
	closed        bool
}

func newEngine(dbFile string, cfg *Config) (*engine, error) {
	grants, err := acl.NewTable(cfg.GrantShards)
	if err != nil {
		return nil, err
	}

	e := &engine{
		dbFile: dbFile,
		pks:    btree.NewNonConcurrent(byRecordID),
		grants: grants,
		stopCh: make(chan struct{}, 1),
		cfg:    cfg,
	}

	return e, nil
}

func (e *engine) init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dbFile != InMemory {
		p, err := newPersistence(e.dbFile, e.cfg.PersistenceStrategy, e.cfg.TruncateFileWhenOpen)
		if err != nil {
			return err
		}
		e.persistence = p

		if err := e.persistence.load(func(d deserializer) error {
			return d.deserialize(e)
		}); err != nil {
			return err
		}

		if e.cfg.PersistenceStrategy == Async {
			go e.asyncFlush(e.cfg.AsyncPersistenceIntervals)
		}

		if !e.cfg.DisableAutoVacuum && !e.cfg.AutoVacuumOnlyOnClose {
			go e.scheduleVacuum(e.cfg.AutoVacuumIntervals)
		}
	}

	return nil
}

func (e *engine) asyncFlush(d time.Duration) {
	t := time.NewTicker(d)

	for {
		select {
		case <-e.stopCh:
			t.Stop()
			return
		case <-t.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			if err := e.persistence.sync(); err != nil {
				panic(err)
			}
			e.mu.Unlock()
		}
	}
}

func (e *engine) scheduleVacuum(d time.Duration) {
	t := time.NewTicker(d)

	for {
		select {
		case <-e.stopCh:
			t.Stop()
			return
		case <-t.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			if e.runningVacuum || e.totalDeletes < e.cfg.AutoVacuumMinDeletes {
				e.mu.Unlock()
				continue
			}

			e.runningVacuum = true
			if err := e.runVacuumUnderLock(); err != nil {
				panic(err)
			}
			e.runningVacuum = false
			e.mu.Unlock()
		}
	}
}

// runVacuumUnderLock rewrites the log as one counter pin, every live
// record and every grant still in the table, orphaned grants included.
func (e *engine) runVacuumUnderLock() error {
	if e.persistence == nil {
		return nil
	}

	if e.persistence.size() > e.cfg.MaxVacuumBuffer {
		return nil
	}

	buf := &bytes.Buffer{}

	cnt := counterCmd{n: e.counter}
	if err := cnt.serialize(buf); err != nil {
		return err
	}

	var serErr error
	e.pks.Ascend(nil, func(i interface{}) bool {
		ent, ok := i.(*entry)
		if !ok {
			panic(castPanic)
		}

		if err := ent.serialize(buf); err != nil {
			serErr = err
			return false
		}

		return true
	})

	if serErr != nil {
		return serErr
	}

	e.grants.ForEach(func(k acl.Key) bool {
		gc := grantCmd{id: k.RecordID, user: k.UserID}
		_ = gc.serialize(buf)
		return true
	})

	if err := e.persistence.writeAndSwap(buf); err != nil {
		return err
	}

	e.totalDeletes = 0

	return nil
}

var ErrDatabaseAlreadyClosed = errors.New("database already closed")

func (e *engine) close() error {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return ErrDatabaseAlreadyClosed
	}

	defer func() {
		e.pks = nil
		e.grants = nil
		e.persistence = nil
		e.closed = true
		e.mu.Unlock()
	}()

	close(e.stopCh)

	if e.persistence != nil {
		if !e.cfg.DisableAutoVacuum {
			if err := e.runVacuumUnderLock(); err != nil {
				return err
			}
		}

		return e.persistence.close()
	}

	return nil
}

func (e *engine) persistUnderLock(commands ...serializer) error {
	if e.persistence == nil {
		return nil
	}

	return e.persistence.save(commands...)
}

func (e *engine) findByIDUnderLock(id uint64) (*entry, error) {
	found := e.pks.Get(&entry{ID: id})
	if found == nil {
		return nil, errors.Wrapf(ErrRecordNotFound, "record %d does not exist", id)
	}

	ent, ok := found.(*entry)
	if !ok {
		panic(castPanic)
	}

	return ent, nil
}

func (e *engine) addRecord(
	caller string,
	height uint64,
	patientName string,
	recordSize uint64,
	notes string,
	tags []string,
) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateRecordFields(patientName, recordSize, notes, tags); err != nil {
		return 0, err
	}

	return e.addRecordUnderLock(caller, height, patientName, recordSize, notes, tags)
}

func (e *engine) addRecordUnderLock(
	caller string,
	height uint64,
	patientName string,
	recordSize uint64,
	notes string,
	tags []string,
) (uint64, error) {
	id := e.counter + 1

	if found := e.pks.Get(&entry{ID: id}); found != nil {
		return 0, errors.Wrapf(ErrRecordExists, "id %d is already taken, counter is out of sync", id)
	}

	ent := &entry{
		ID:             id,
		PatientName:    patientName,
		Physician:      caller,
		RecordSize:     recordSize,
		CreationHeight: height,
		Notes:          notes,
		Tags:           append([]string(nil), tags...),
	}

	e.pks.Set(ent)
	e.counter = id

	// the creator always holds a grant on their own record; the id is
	// fresh, so a duplicate here is the same desync as above
	if err := e.grants.Insert(acl.Key{RecordID: id, UserID: caller}); err != nil {
		return 0, errors.Wrapf(ErrRecordExists, "self grant for record %d: %s", id, err.Error())
	}

	if err := e.persistUnderLock(ent, &grantCmd{id: id, user: caller}); err != nil {
		return 0, err
	}

	return id, nil
}

func (e *engine) updateRecord(
	id uint64,
	caller string,
	patientName string,
	recordSize uint64,
	notes string,
	tags []string,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateRecordFields(patientName, recordSize, notes, tags); err != nil {
		return err
	}

	ent, err := e.findByIDUnderLock(id)
	if err != nil {
		return err
	}

	if ent.Physician != caller {
		return errors.Wrapf(ErrNotAuthorized, "caller %s does not own record %d", caller, id)
	}

	ent.PatientName = patientName
	ent.RecordSize = recordSize
	ent.Notes = notes
	ent.Tags = append([]string(nil), tags...)

	return e.persistUnderLock(ent)
}

func (e *engine) updateRecordFields(id uint64, caller string, notes string, tags []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// the partial update enforces only the notes upper bound
	if err := validateNotesUpperBound(notes); err != nil {
		return err
	}

	if err := validateTags(tags); err != nil {
		return err
	}

	ent, err := e.findByIDUnderLock(id)
	if err != nil {
		return err
	}

	if ent.Physician != caller {
		return errors.Wrapf(ErrNotAuthorized, "caller %s does not own record %d", caller, id)
	}

	ent.Notes = notes
	ent.Tags = append([]string(nil), tags...)

	return e.persistUnderLock(ent)
}

func (e *engine) transferOwnership(id uint64, caller, newPhysician string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, err := e.findByIDUnderLock(id)
	if err != nil {
		return err
	}

	if ent.Physician != caller {
		return errors.Wrapf(ErrNotAuthorized, "caller %s does not own record %d", caller, id)
	}

	// no grant is created for the new owner: ownership itself is the
	// write-authority signal, independent of the grant table
	ent.Physician = newPhysician

	return e.persistUnderLock(ent)
}

func (e *engine) deleteRecord(id uint64, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, err := e.findByIDUnderLock(id)
	if err != nil {
		return err
	}

	if ent.Physician != caller {
		return errors.Wrapf(ErrNotAuthorized, "caller %s does not own record %d", caller, id)
	}

	e.pks.Delete(&entry{ID: id})
	e.grants.Remove(acl.Key{RecordID: id, UserID: caller})
	e.totalDeletes++

	return e.persistUnderLock(&deleteCmd{id: id, owner: caller})
}

func (e *engine) grantAccess(id uint64, granter, user string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, err := e.findByIDUnderLock(id)
	if err != nil {
		return err
	}

	if ent.Physician != granter {
		return errors.Wrapf(ErrNotAuthorized, "granter %s does not own record %d", granter, id)
	}

	if e.cfg.Eligibility != nil && !e.cfg.Eligibility(user) {
		return errors.Wrapf(ErrUserNotEligible, "user %s cannot receive grants", user)
	}

	if err := e.grants.Insert(acl.Key{RecordID: id, UserID: user}); err != nil {
		if errors.Is(err, acl.ErrDuplicateGrant) {
			return errors.Wrapf(ErrAlreadyGranted, "record %d, user %s", id, user)
		}

		return err
	}

	return e.persistUnderLock(&grantCmd{id: id, user: user})
}

func (e *engine) checkAccess(id uint64, user string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.grants.Exists(acl.Key{RecordID: id, UserID: user}) {
		return true, nil
	}

	return false, errors.Wrapf(ErrAccessNotEvaluated, "record %d, user %s", id, user)
}

func (e *engine) count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.pks.Len()
}

func (e *engine) scan(ctx context.Context, fn func(r *Record) bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var iterErr error
	e.pks.Ascend(nil, func(i interface{}) bool {
		if err := ctx.Err(); err != nil {
			iterErr = err
			return false
		}

		ent, ok := i.(*entry)
		if !ok {
			panic(castPanic)
		}

		return fn(newRecordFromEntry(ent))
	})

	return iterErr
}

// replay helpers, used while loading the command log before any
// goroutine can observe the engine

func (e *engine) advanceCounterUnderLock(n uint64) {
	if n > e.counter {
		e.counter = n
	}
}

func (e *engine) putEntryUnderLock(ent *entry) error {
	e.pks.Set(ent)
	e.advanceCounterUnderLock(ent.ID)
	return nil
}

func (e *engine) removeEntryUnderLock(id uint64, owner string) error {
	e.advanceCounterUnderLock(id)

	if found := e.pks.Get(&entry{ID: id}); found == nil {
		return errors.Wrapf(ErrCommandInvalid, "cannot replay removal of record %d that was never set", id)
	}

	e.pks.Delete(&entry{ID: id})
	e.grants.Remove(acl.Key{RecordID: id, UserID: owner})
	e.totalDeletes++

	return nil
}

func (e *engine) putGrantUnderLock(id uint64, user string) error {
	if err := e.grants.Insert(acl.Key{RecordID: id, UserID: user}); err != nil {
		return errors.Wrapf(ErrCommandInvalid, "cannot replay grant for record %d, user %s: %s", id, user, err.Error())
	}

	return nil
}
