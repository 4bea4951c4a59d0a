package medrec_test

import (
	"testing"

	"github.com/denismitr/medrec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GrantAccess(t *testing.T) {
	db, closer, err := medrec.Open(medrec.InMemory)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if err := closer(); err != nil {
			t.Errorf("ERROR: %v", err)
		}
	}()

	id, err := db.AddRecord("dr:house", 7, "Alice", 100, "checkup", []string{"flu"})
	require.NoError(t, err)

	t.Run("creator holds a self grant", func(t *testing.T) {
		ok, err := db.CheckAccess(id, "dr:house")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("a never granted pair is not evaluated, not denied", func(t *testing.T) {
		ok, err := db.CheckAccess(id, "dr:wilson")
		assert.False(t, ok)
		assert.True(t, errors.Is(err, medrec.ErrAccessNotEvaluated))
	})

	t.Run("grant on a missing record", func(t *testing.T) {
		err := db.GrantAccess(999, "dr:house", "dr:wilson")
		assert.True(t, errors.Is(err, medrec.ErrRecordNotFound))
	})

	t.Run("only the owner may grant", func(t *testing.T) {
		err := db.GrantAccess(id, "dr:wilson", "dr:chase")
		assert.True(t, errors.Is(err, medrec.ErrNotAuthorized))
	})

	t.Run("owner grants a third party", func(t *testing.T) {
		require.NoError(t, db.GrantAccess(id, "dr:house", "dr:wilson"))

		ok, err := db.CheckAccess(id, "dr:wilson")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("re-granting the same pair fails", func(t *testing.T) {
		err := db.GrantAccess(id, "dr:house", "dr:wilson")
		assert.True(t, errors.Is(err, medrec.ErrAlreadyGranted))
	})
}

func TestStore_GrantEligibility(t *testing.T) {
	db, closer, err := medrec.Open(medrec.InMemory, &medrec.Config{
		Eligibility: medrec.OnlyIdentity("admin"),
	})
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if err := closer(); err != nil {
			t.Errorf("ERROR: %v", err)
		}
	}()

	id, err := db.AddRecord("dr:house", 7, "Alice", 100, "checkup", []string{"flu"})
	require.NoError(t, err)

	t.Run("ineligible grantee is rejected", func(t *testing.T) {
		err := db.GrantAccess(id, "dr:house", "dr:wilson")
		assert.True(t, errors.Is(err, medrec.ErrUserNotEligible))
	})

	t.Run("the designated identity may receive grants", func(t *testing.T) {
		require.NoError(t, db.GrantAccess(id, "dr:house", "admin"))

		ok, err := db.CheckAccess(id, "admin")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("the policy does not gate creation self grants", func(t *testing.T) {
		ok, err := db.CheckAccess(id, "dr:house")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestStore_GrantsAndLifecycle(t *testing.T) {
	db, closer, err := medrec.Open(medrec.InMemory)
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if err := closer(); err != nil {
			t.Errorf("ERROR: %v", err)
		}
	}()

	t.Run("transfer creates no grant for the new owner", func(t *testing.T) {
		id, err := db.AddRecord("dr:house", 7, "Alice", 100, "checkup", []string{"flu"})
		require.NoError(t, err)

		require.NoError(t, db.TransferOwnership(id, "dr:house", "dr:wilson"))

		ok, err := db.CheckAccess(id, "dr:wilson")
		assert.False(t, ok)
		assert.True(t, errors.Is(err, medrec.ErrAccessNotEvaluated))

		// ownership alone carries write authority
		require.NoError(t, db.UpdateRecordFields(id, "dr:wilson", "post-transfer", []string{"flu"}))

		// the previous owner's self grant is still there
		ok, err = db.CheckAccess(id, "dr:house")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete removes only the deleting owner's grant", func(t *testing.T) {
		id, err := db.AddRecord("dr:house", 8, "Bob", 200, "imaging", []string{"radiology"})
		require.NoError(t, err)
		require.NoError(t, db.GrantAccess(id, "dr:house", "dr:wilson"))

		require.NoError(t, db.DeleteRecord(id, "dr:house"))

		_, err = db.Record(id)
		assert.True(t, errors.Is(err, medrec.ErrRecordNotFound))

		ok, err := db.CheckAccess(id, "dr:house")
		assert.False(t, ok)
		assert.True(t, errors.Is(err, medrec.ErrAccessNotEvaluated))

		// dr:wilson's grant is orphaned but intact
		ok, err = db.CheckAccess(id, "dr:wilson")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
