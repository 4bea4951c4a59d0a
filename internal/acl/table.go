package acl

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

var ErrDuplicateGrant = errors.New("grant already exists")
var ErrInvalidSharding = errors.New("invalid sharding")

// Key identifies a single access grant: one record, one user.
type Key struct {
	RecordID uint64
	UserID   string
}

type shard struct {
	sync.RWMutex
	m map[Key]struct{}
}

// Table is an insert-only set of access grants sharded by a hash of the
// grant key. There is no eviction: a grant, once inserted, stays until it
// is explicitly removed along with its record.
type Table struct {
	shards []*shard
	count  int64
}

func NewTable(shards int) (*Table, error) {
	if shards < 1 {
		return nil, ErrInvalidSharding
	}

	t := Table{shards: make([]*shard, shards)}
	for i := range t.shards {
		t.shards[i] = &shard{m: make(map[Key]struct{})}
	}

	return &t, nil
}

func (t *Table) getShard(k Key) *shard {
	bs := make([]byte, 8, 8+len(k.UserID))
	binary.LittleEndian.PutUint64(bs, k.RecordID)
	bs = append(bs, k.UserID...)
	hash := xxhash.Sum64(bs)
	return t.shards[hash%uint64(len(t.shards))]
}

// Insert adds a grant. It is create-only: inserting a key that is
// already present fails with ErrDuplicateGrant instead of succeeding
// silently.
func (t *Table) Insert(k Key) error {
	s := t.getShard(k)
	s.Lock()
	defer s.Unlock()

	if _, ok := s.m[k]; ok {
		return errors.Wrapf(ErrDuplicateGrant, "record %d, user %s", k.RecordID, k.UserID)
	}

	s.m[k] = struct{}{}
	atomic.AddInt64(&t.count, 1)
	return nil
}

func (t *Table) Exists(k Key) bool {
	s := t.getShard(k)
	s.RLock()
	defer s.RUnlock()

	_, ok := s.m[k]
	return ok
}

// Remove drops a grant and reports whether it was present.
func (t *Table) Remove(k Key) bool {
	s := t.getShard(k)
	s.Lock()
	defer s.Unlock()

	if _, ok := s.m[k]; !ok {
		return false
	}

	delete(s.m, k)
	atomic.AddInt64(&t.count, -1)
	return true
}

func (t *Table) Count() int {
	return int(atomic.LoadInt64(&t.count))
}

// ForEach visits every grant in the table. Iteration stops early when fn
// returns false. Order is unspecified.
func (t *Table) ForEach(fn func(k Key) bool) {
	for _, s := range t.shards {
		s.RLock()
		for k := range s.m {
			if !fn(k) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}
