package medrec

import (
	"encoding/json"
	"sort"

	"github.com/denismitr/medrec/internal/acl"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var ErrImportInvalid = errors.New("import document invalid")

// dm - the data model of a full-store JSON snapshot
type dm struct {
	Counter uint64      `json:"counter"`
	Records []entry     `json:"records"`
	Grants  []grantPair `json:"grants"`
}

type grantPair struct {
	RecordID uint64 `json:"recordId"`
	UserID   string `json:"userId"`
}

// ImportJSON bulk-loads records from a JSON document of the shape
// {"records": [{"physician": ..., "creationHeight": ..., "patientName": ...,
// "recordSize": ..., "notes": ..., "tags": [...]}, ...]}. Every record is
// validated with the creation rules before anything is inserted; ids are
// allocated fresh and each physician receives their self-grant. Returns
// the allocated ids in document order.
func (s *Store) ImportJSON(data []byte) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrDatabaseAlreadyClosed
	}

	if !gjson.ValidBytes(data) {
		return nil, errors.Wrap(ErrImportInvalid, "not a valid json document")
	}

	records := gjson.GetBytes(data, "records")
	if !records.Exists() || !records.IsArray() {
		return nil, errors.Wrap(ErrImportInvalid, "records array is missing")
	}

	var specs []importSpec
	for i, r := range records.Array() {
		physician := r.Get("physician").String()
		if physician == "" {
			return nil, errors.Wrapf(ErrImportInvalid, "record #%d has no physician", i)
		}

		var tags []string
		for _, t := range r.Get("tags").Array() {
			tags = append(tags, t.String())
		}

		specs = append(specs, importSpec{
			physician:      physician,
			creationHeight: r.Get("creationHeight").Uint(),
			patientName:    r.Get("patientName").String(),
			recordSize:     r.Get("recordSize").Uint(),
			notes:          r.Get("notes").String(),
			tags:           tags,
		})
	}

	return s.e.importRecords(specs)
}

type importSpec struct {
	physician      string
	creationHeight uint64
	patientName    string
	recordSize     uint64
	notes          string
	tags           []string
}

func (e *engine) importRecords(specs []importSpec) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// nothing is inserted unless the whole document validates
	for i, sp := range specs {
		if err := validateRecordFields(sp.patientName, sp.recordSize, sp.notes, sp.tags); err != nil {
			return nil, errors.Wrapf(err, "import record #%d", i)
		}
	}

	ids := make([]uint64, 0, len(specs))
	for _, sp := range specs {
		id, err := e.addRecordUnderLock(sp.physician, sp.creationHeight, sp.patientName, sp.recordSize, sp.notes, sp.tags)
		if err != nil {
			return ids, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// ExportJSON snapshots every record and every grant, ascending by record
// id, into a single JSON document compatible with no particular wire
// format beyond its own shape.
func (s *Store) ExportJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrDatabaseAlreadyClosed
	}

	return s.e.exportJSON()
}

func (e *engine) exportJSON() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := dm{Counter: e.counter}

	e.pks.Ascend(nil, func(i interface{}) bool {
		ent, ok := i.(*entry)
		if !ok {
			panic(castPanic)
		}

		out.Records = append(out.Records, *ent.clone())
		return true
	})

	e.grants.ForEach(func(k acl.Key) bool {
		out.Grants = append(out.Grants, grantPair{RecordID: k.RecordID, UserID: k.UserID})
		return true
	})

	sort.Slice(out.Grants, func(i, j int) bool {
		if out.Grants[i].RecordID != out.Grants[j].RecordID {
			return out.Grants[i].RecordID < out.Grants[j].RecordID
		}
		return out.Grants[i].UserID < out.Grants[j].UserID
	})

	b, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal store snapshot")
	}

	return b, nil
}
