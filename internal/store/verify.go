package store

import (
	"fmt"
)

// VerifyRecord checks that a record's document still matches its
// fingerprint.
func VerifyRecord(r *Record) error {
	if got := Fingerprint(r.Document); got != r.Fingerprint {
		return fmt.Errorf("layout %s: fingerprint mismatch (stored %x, computed %x)",
			r.Name, r.Fingerprint[:8], got[:8])
	}
	return nil
}

// VerifyAll checks every stored layout and returns the names of those whose
// document no longer matches its fingerprint or no longer decodes.
func (s *Store) VerifyAll() ([]string, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, meta := range records {
		r, err := s.Get(meta.Name)
		if err != nil {
			return nil, err
		}
		if err := VerifyRecord(r); err != nil {
			failed = append(failed, r.Name)
			continue
		}
		if _, err := r.Layout(); err != nil {
			failed = append(failed, r.Name)
		}
	}
	return failed, nil
}
