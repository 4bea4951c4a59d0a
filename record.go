package medrec

// Record is a read-only view of a stored patient record. It is always
// backed by a copy, so callers cannot reach into store state through it.
type Record struct {
	id             uint64
	patientName    string
	physician      string
	recordSize     uint64
	creationHeight uint64
	notes          string
	tags           []string
}

func newRecordFromEntry(ent *entry) *Record {
	cp := ent.clone()

	return &Record{
		id:             cp.ID,
		patientName:    cp.PatientName,
		physician:      cp.Physician,
		recordSize:     cp.RecordSize,
		creationHeight: cp.CreationHeight,
		notes:          cp.Notes,
		tags:           cp.Tags,
	}
}

func (r *Record) ID() uint64 {
	return r.id
}

func (r *Record) PatientName() string {
	return r.patientName
}

// Physician returns the identity that currently owns the record and
// therefore holds exclusive mutation rights over it.
func (r *Record) Physician() string {
	return r.physician
}

func (r *Record) RecordSize() uint64 {
	return r.recordSize
}

// CreationHeight is the ledger height at which the record was created.
// It never changes after creation.
func (r *Record) CreationHeight() uint64 {
	return r.creationHeight
}

func (r *Record) Notes() string {
	return r.notes
}

func (r *Record) Tags() []string {
	return r.tags
}

func (r *Record) TagCount() int {
	return len(r.tags)
}
