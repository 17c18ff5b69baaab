package store

import (
	"errors"
	"path/filepath"
	"testing"

	"elk/internal/layout"
	"elk/internal/modifier"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLayout(name string) *layout.Layout {
	l := layout.New(name)
	var plain, shifted layout.KeyMap
	plain[0], plain[22] = 'a', '6'
	shifted[0], shifted[22] = 'A', '^'
	l.SetKeyMap(modifier.None, plain)
	l.SetKeyMap(modifier.Shift, shifted)
	l.SetSequences(modifier.None, []layout.DeadSequence{
		{Keys: "^a", Output: "â"},
		{Keys: "^A", Output: "Â"},
	})
	return l
}

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "sub", "nested", "test.db"), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := ValidateSchema(s.DB()); err != nil {
		t.Errorf("ValidateSchema: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	l := testLayout("French")

	rec, err := s.Save(l, "/layouts/French.keylayout")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if rec.ID == 0 || rec.Name != "French" || rec.Source != "/layouts/French.keylayout" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Fingerprint != Fingerprint(rec.Document) {
		t.Error("fingerprint does not match document")
	}

	back, err := s.Load("French")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, m := range modifier.All() {
		want, _ := l.KeyMap(m)
		got, _ := back.KeyMap(m)
		if want != got {
			t.Errorf("key map %s differs", m)
		}
	}
	if got := back.Sequences(modifier.None); len(got) != 2 {
		t.Errorf("sequences = %v", got)
	}
}

func TestSaveReplaces(t *testing.T) {
	s := openTestStore(t)
	first, err := s.Save(testLayout("French"), "")
	if err != nil {
		t.Fatal(err)
	}

	l := testLayout("French")
	l.SetSequences(modifier.None, []layout.DeadSequence{{Keys: "^e", Output: "ê"}})
	second, err := s.Save(l, "")
	if err != nil {
		t.Fatal(err)
	}

	if second.ID != first.ID {
		t.Errorf("id changed from %d to %d", first.ID, second.ID)
	}
	if second.Fingerprint == first.Fingerprint {
		t.Error("fingerprint did not change")
	}
	if matches, _ := s.FindSequences("^a"); len(matches) != 0 {
		t.Errorf("stale sequences remain: %v", matches)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"Spanish", "French", "German"} {
		if _, err := s.Save(testLayout(name), ""); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 || records[0].Name != "French" || records[2].Name != "Spanish" {
		t.Errorf("unexpected list: %+v", records)
	}
	if records[0].Document != nil {
		t.Error("List should not load documents")
	}

	if err := s.Delete("German"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("German"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	if _, err := s.Get("German"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
}

func TestDeleteCascadesSequences(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Save(testLayout("French"), ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("French"); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM sequences").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d sequences left after delete", n)
	}
}

func TestFindSequences(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"French", "Dutch"} {
		if _, err := s.Save(testLayout(name), ""); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := s.FindSequences("^A")
	if err != nil {
		t.Fatalf("FindSequences failed: %v", err)
	}
	// Both case variants of both layouts.
	if len(matches) != 4 {
		t.Fatalf("got %d matches: %+v", len(matches), matches)
	}
	if matches[0].Layout != "Dutch" || matches[0].Modifier != modifier.None {
		t.Errorf("unexpected first match: %+v", matches[0])
	}
}

func TestFindBySource(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Save(testLayout("French"), "/tmp/French.keylayout"); err != nil {
		t.Fatal(err)
	}
	rec, err := s.FindBySource("/tmp/French.keylayout")
	if err != nil {
		t.Fatalf("FindBySource failed: %v", err)
	}
	if rec.Name != "French" {
		t.Errorf("name = %q", rec.Name)
	}
	if _, err := s.FindBySource("/tmp/none.keylayout"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestVerifyAll(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"French", "German"} {
		if _, err := s.Save(testLayout(name), ""); err != nil {
			t.Fatal(err)
		}
	}

	failed, err := s.VerifyAll()
	if err != nil {
		t.Fatalf("VerifyAll failed: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("unexpected failures: %v", failed)
	}

	if _, err := s.DB().Exec(`UPDATE layouts SET document = '{"name":"German","keymaps":[]} ' WHERE name = 'German'`); err != nil {
		t.Fatal(err)
	}
	failed, err = s.VerifyAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0] != "German" {
		t.Errorf("failed = %v, want [German]", failed)
	}
}

func TestMigrationStatusAndRollback(t *testing.T) {
	s := openTestStore(t)

	status, err := GetMigrationStatus(s.DB())
	if err != nil {
		t.Fatal(err)
	}
	if status.CurrentVersion != len(migrations) || len(status.Pending) != 0 {
		t.Errorf("unexpected status: %+v", status)
	}

	if err := RollbackMigration(s.DB()); err != nil {
		t.Fatalf("RollbackMigration failed: %v", err)
	}
	status, _ = GetMigrationStatus(s.DB())
	if status.CurrentVersion != len(migrations)-1 || len(status.Pending) != 1 {
		t.Errorf("after rollback: %+v", status)
	}

	if err := MigrateDB(s.DB()); err != nil {
		t.Fatalf("MigrateDB failed: %v", err)
	}
	if _, err := s.Save(testLayout("French"), "src"); err != nil {
		t.Errorf("Save after re-migration: %v", err)
	}
}

func TestSaveRequiresName(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Save(layout.New(""), ""); err == nil {
		t.Error("expected error for unnamed layout")
	}
}
