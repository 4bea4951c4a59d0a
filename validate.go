package medrec

import "github.com/pkg/errors"

var ErrInvalidPatientName = errors.New("invalid patient name")
var ErrInvalidRecordSize = errors.New("invalid record size")
var ErrInvalidNotes = errors.New("invalid notes")
var ErrInvalidTag = errors.New("invalid tag")

const (
	maxPatientNameLen = 64
	maxRecordSize     = 1_000_000_000
	maxNotesLen       = 128
	maxTags           = 10
	maxTagLen         = 32
)

// validateRecordFields applies the full creation rules. Order matters:
// the first failing field wins, checked as name, size, notes, tags.
func validateRecordFields(patientName string, recordSize uint64, notes string, tags []string) error {
	if err := validatePatientName(patientName); err != nil {
		return err
	}

	if err := validateRecordSize(recordSize); err != nil {
		return err
	}

	if err := validateNotes(notes); err != nil {
		return err
	}

	return validateTags(tags)
}

func validatePatientName(patientName string) error {
	if len(patientName) == 0 || len(patientName) > maxPatientNameLen {
		return errors.Wrapf(
			ErrInvalidPatientName,
			"patient name length must be between 1 and %d, got %d",
			maxPatientNameLen, len(patientName),
		)
	}

	return nil
}

func validateRecordSize(recordSize uint64) error {
	if recordSize == 0 || recordSize >= maxRecordSize {
		return errors.Wrapf(
			ErrInvalidRecordSize,
			"record size must be greater than 0 and less than %d, got %d",
			maxRecordSize, recordSize,
		)
	}

	return nil
}

func validateNotes(notes string) error {
	if len(notes) == 0 || len(notes) > maxNotesLen {
		return errors.Wrapf(
			ErrInvalidNotes,
			"notes length must be between 1 and %d, got %d",
			maxNotesLen, len(notes),
		)
	}

	return nil
}

// validateNotesUpperBound is the partial-update rule: only the upper
// bound is enforced, empty notes are accepted there.
func validateNotesUpperBound(notes string) error {
	if len(notes) > maxNotesLen {
		return errors.Wrapf(
			ErrInvalidNotes,
			"notes length must not exceed %d, got %d",
			maxNotesLen, len(notes),
		)
	}

	return nil
}

func validateTags(tags []string) error {
	if len(tags) == 0 || len(tags) > maxTags {
		return errors.Wrapf(
			ErrInvalidTag,
			"tag list length must be between 1 and %d, got %d",
			maxTags, len(tags),
		)
	}

	for i, t := range tags {
		if len(t) == 0 || len(t) > maxTagLen {
			return errors.Wrapf(
				ErrInvalidTag,
				"tag #%d length must be between 1 and %d, got %d",
				i, maxTagLen, len(t),
			)
		}
	}

	return nil
}
