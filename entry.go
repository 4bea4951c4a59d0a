package medrec

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
)

// entry is the in-memory and on-log shape of a single patient record.
// Fields are exported so that the log codec and the cloner can reach them;
// the type itself never leaves the package.
type entry struct {
	ID             uint64   `json:"id"`
	PatientName    string   `json:"patientName"`
	Physician      string   `json:"physician"`
	RecordSize     uint64   `json:"recordSize"`
	CreationHeight uint64   `json:"creationHeight"`
	Notes          string   `json:"notes"`
	Tags           []string `json:"tags"`
}

func (ent *entry) clone() *entry {
	var cpEnt entry
	if err := copier.Copy(&cpEnt, ent); err != nil {
		panic("could not copy entry + " + err.Error())
	}

	return &cpEnt
}

func (ent *entry) key() []byte {
	return strconv.AppendUint(nil, ent.ID, 10)
}

func (ent *entry) serialize(buf *bytes.Buffer) error {
	blob, err := json.Marshal(ent)
	if err != nil {
		return errors.Wrapf(err, "could not marshal record %d", ent.ID)
	}

	writeRespArray(3, buf)
	writeRespSimpleString([]byte(setCommand), buf)
	writeRespKeyString(ent.key(), buf)
	writeRespBlob(blob, buf)

	return nil
}

func (ent *entry) deserialize(e *engine) error {
	return e.putEntryUnderLock(ent)
}

func entryFromBlob(blob []byte) (*entry, error) {
	var ent entry
	if err := json.Unmarshal(blob, &ent); err != nil {
		return nil, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	return &ent, nil
}

func byRecordID(a, b interface{}) bool {
	i1, i2 := a.(*entry), b.(*entry)
	return i1.ID < i2.ID
}
