package medrec_test

import (
	"os"
	"testing"

	"github.com/denismitr/medrec"
)

func fixturePath(t *testing.T, name string) string {
	t.Helper()

	if err := os.MkdirAll("./__fixtures__", 0755); err != nil {
		t.Fatal(err)
	}

	return "./__fixtures__/" + name
}

func removeFixture(t *testing.T, path string) {
	t.Helper()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		t.Errorf("ERROR: %v", err)
	}
}

type seededRecord struct {
	id        uint64
	physician string
	name      string
}

func seedWardRecords(t *testing.T, db *medrec.Store) []seededRecord {
	t.Helper()

	seeds := []struct {
		physician string
		height    uint64
		name      string
		size      uint64
		notes     string
		tags      []string
	}{
		{"dr:house", 10, "Alice Smith", 100, "annual checkup", []string{"flu"}},
		{"dr:house", 11, "Bob Jones", 2048, "x-ray results", []string{"radiology", "fracture"}},
		{"dr:wilson", 12, "Carol White", 512, "oncology referral", []string{"oncology"}},
	}

	var result []seededRecord
	for _, sd := range seeds {
		id, err := db.AddRecord(sd.physician, sd.height, sd.name, sd.size, sd.notes, sd.tags)
		if err != nil {
			t.Fatal(err)
		}

		result = append(result, seededRecord{id: id, physician: sd.physician, name: sd.name})
	}

	return result
}
