package medrec_test

import (
	"context"
	"testing"

	"github.com/denismitr/medrec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordLifecycle(t *testing.T) {
	db, closer, err := medrec.Open(medrec.InMemory)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if err := closer(); err != nil {
			t.Errorf("ERROR: %v", err)
		}
	}()

	var id uint64
	t.Run("create the first record", func(t *testing.T) {
		id, err = db.AddRecord("dr:house", 42, "Alice", 100, "checkup", []string{"flu"})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id)

		r, err := db.Record(id)
		require.NoError(t, err)
		assert.Equal(t, "Alice", r.PatientName())
		assert.Equal(t, "dr:house", r.Physician())
		assert.Equal(t, uint64(100), r.RecordSize())
		assert.Equal(t, uint64(42), r.CreationHeight())
		assert.Equal(t, "checkup", r.Notes())
		assert.Equal(t, []string{"flu"}, r.Tags())
		assert.Equal(t, 1, r.TagCount())
	})

	t.Run("field accessors agree with the whole record", func(t *testing.T) {
		name, err := db.PatientName(id)
		require.NoError(t, err)
		assert.Equal(t, "Alice", name)

		physician, err := db.Physician(id)
		require.NoError(t, err)
		assert.Equal(t, "dr:house", physician)

		height, err := db.CreationHeight(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), height)

		size, err := db.RecordSize(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), size)

		notes, err := db.Notes(id)
		require.NoError(t, err)
		assert.Equal(t, "checkup", notes)

		tags, err := db.Tags(id)
		require.NoError(t, err)
		assert.Equal(t, []string{"flu"}, tags)

		tc, err := db.TagCount(id)
		require.NoError(t, err)
		assert.Equal(t, 1, tc)
	})

	t.Run("transfer ownership moves write authority", func(t *testing.T) {
		require.NoError(t, db.TransferOwnership(id, "dr:house", "dr:wilson"))

		err := db.UpdateRecord(id, "dr:wilson", "Alice", 200, "follow-up", []string{"flu", "recovered"})
		require.NoError(t, err)

		err = db.UpdateRecord(id, "dr:house", "Alice", 300, "stale update", []string{"flu"})
		assert.True(t, errors.Is(err, medrec.ErrNotAuthorized))

		// the failed update must not have touched the record
		r, err := db.Record(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(200), r.RecordSize())
		assert.Equal(t, "follow-up", r.Notes())
	})

	t.Run("delete by the new owner", func(t *testing.T) {
		err := db.DeleteRecord(id, "dr:house")
		assert.True(t, errors.Is(err, medrec.ErrNotAuthorized))

		require.NoError(t, db.DeleteRecord(id, "dr:wilson"))

		_, err = db.Record(id)
		assert.True(t, errors.Is(err, medrec.ErrRecordNotFound))
	})
}

func TestStore_MonotonicIDs(t *testing.T) {
	db, closer, err := medrec.Open(medrec.InMemory)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if err := closer(); err != nil {
			t.Errorf("ERROR: %v", err)
		}
	}()

	var prev uint64
	for i := 0; i < 5; i++ {
		id, err := db.AddRecord("dr:house", 1, "Patient", 10, "note", []string{"t"})
		require.NoError(t, err)
		assert.Equal(t, prev+1, id)
		prev = id
	}

	t.Run("deleted ids are never reused", func(t *testing.T) {
		require.NoError(t, db.DeleteRecord(prev, "dr:house"))

		id, err := db.AddRecord("dr:house", 1, "Patient", 10, "note", []string{"t"})
		require.NoError(t, err)
		assert.Equal(t, prev+1, id)
	})

	t.Run("read of an id never created", func(t *testing.T) {
		_, err := db.Record(10_000)
		assert.True(t, errors.Is(err, medrec.ErrRecordNotFound))
	})
}

func TestStore_CountAndScan(t *testing.T) {
	db, closer, err := medrec.Open(medrec.InMemory)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if err := closer(); err != nil {
			t.Errorf("ERROR: %v", err)
		}
	}()

	seeded := seedWardRecords(t, db)

	count, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, len(seeded), count)

	t.Run("scan visits records ascending by id", func(t *testing.T) {
		var ids []uint64
		err := db.Scan(context.Background(), func(r *medrec.Record) bool {
			ids = append(ids, r.ID())
			return true
		})

		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3}, ids)
	})

	t.Run("scan stops when iterator declines", func(t *testing.T) {
		var visited int
		err := db.Scan(context.Background(), func(r *medrec.Record) bool {
			visited++
			return visited < 2
		})

		require.NoError(t, err)
		assert.Equal(t, 2, visited)
	})

	t.Run("scan honors context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := db.Scan(ctx, func(r *medrec.Record) bool {
			t.Fatal("iterator must not run on a cancelled context")
			return false
		})

		assert.Error(t, err)
	})
}

func TestStore_Closed(t *testing.T) {
	db, closer, err := medrec.Open(medrec.InMemory)
	require.NoError(t, err)
	require.NoError(t, closer())

	_, err = db.AddRecord("dr:house", 1, "Alice", 100, "checkup", []string{"flu"})
	assert.True(t, errors.Is(err, medrec.ErrDatabaseAlreadyClosed))

	_, err = db.Record(1)
	assert.True(t, errors.Is(err, medrec.ErrDatabaseAlreadyClosed))

	err = db.GrantAccess(1, "dr:house", "dr:wilson")
	assert.True(t, errors.Is(err, medrec.ErrDatabaseAlreadyClosed))

	assert.True(t, errors.Is(closer(), medrec.ErrDatabaseAlreadyClosed))
}
