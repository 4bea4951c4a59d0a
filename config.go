package medrec

import (
	"time"

	"github.com/pbnjay/memory"
)

const defaultAutoVacuumMinDeletes uint64 = 1000
const defaultGrantShards = 20

var defaultAutoVacuumIntervals = 10 * time.Minute
var defaultPersistenceIntervals = 1 * time.Second

// EligibilityFunc decides whether a user identity may receive an access
// grant at all. It gates GrantAccess only; creation-time self-grants do
// not pass through it.
type EligibilityFunc func(userID string) bool

// OnlyIdentity restricts grants to a single designated identity, which is
// the restrictive baseline policy some deployments start from.
func OnlyIdentity(id string) EligibilityFunc {
	return func(userID string) bool {
		return userID == id
	}
}

type Config struct {
	PersistenceStrategy       PersistenceStrategy
	TruncateFileWhenOpen      bool
	AsyncPersistenceIntervals time.Duration
	DisableAutoVacuum         bool
	AutoVacuumOnlyOnClose     bool
	AutoVacuumMinDeletes      uint64
	AutoVacuumIntervals       time.Duration
	// MaxVacuumBuffer caps the in-memory buffer a compaction may build.
	// When the current log exceeds it the compaction is skipped.
	MaxVacuumBuffer uint64
	// GrantShards is the shard count of the access grant table.
	GrantShards int
	// Eligibility is consulted by GrantAccess; nil allows any grantee.
	Eligibility EligibilityFunc
}

func (cfg *Config) setDefaults() {
	if cfg.PersistenceStrategy == "" {
		cfg.PersistenceStrategy = Sync
	}

	if cfg.PersistenceStrategy == Async && cfg.AsyncPersistenceIntervals == 0 {
		cfg.AsyncPersistenceIntervals = defaultPersistenceIntervals
	}

	if cfg.AutoVacuumIntervals == 0 {
		cfg.AutoVacuumIntervals = defaultAutoVacuumIntervals
	}

	if cfg.AutoVacuumMinDeletes == 0 {
		cfg.AutoVacuumMinDeletes = defaultAutoVacuumMinDeletes
	}

	if cfg.MaxVacuumBuffer == 0 {
		cfg.MaxVacuumBuffer = memory.TotalMemory() / 8
	}

	if cfg.GrantShards == 0 {
		cfg.GrantShards = defaultGrantShards
	}
}
