package poolaccount

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/sys/unix"
)

func nlink(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := info.Sys().(*unix.Stat_t)
	if !ok {
		t.Fatal("not a unix Stat_t")
	}
	return uint64(st.Nlink)
}

func TestLeaseCreation(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	key := SubjectKeyFromDN("/CN=User A")
	login, err := m.Allocate("atlas", key)
	if err != nil {
		t.Fatal(err)
	}
	if login != "atlas001" {
		t.Errorf("expected atlas001, got %s", login)
	}

	targetPath := filepath.Join(dir, "atlas001")
	leasePath := filepath.Join(dir, key)
	if nlink(t, targetPath) != 2 || nlink(t, leasePath) != 2 {
		t.Errorf("expected link count 2 on both files")
	}

	// Second call for the same subject returns the same login and creates
	// no further files.
	login2, err := m.Allocate("atlas", key)
	if err != nil {
		t.Fatal(err)
	}
	if login2 != "atlas001" {
		t.Errorf("expected atlas001 again, got %s", login2)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected exactly 2 files in gridmapdir, got %d", len(entries))
	}
}

func TestLeaseConcurrency(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	keyA := SubjectKeyFromDN("A")
	keyB := SubjectKeyFromDN("B")

	var wg sync.WaitGroup
	logins := make([]string, 2)
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		logins[0], errs[0] = m.Allocate("atlas", keyA)
	}()
	go func() {
		defer wg.Done()
		logins[1], errs[1] = m.Allocate("atlas", keyB)
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
	}
	if logins[0] == logins[1] {
		t.Errorf("expected distinct logins for distinct subjects, got %s twice", logins[0])
	}
	for _, login := range logins {
		if nlink(t, filepath.Join(dir, login)) != 2 {
			t.Errorf("expected link count 2 for %s", login)
		}
	}
}

func TestPoolExhausted(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	for n := 1; n <= MaxPoolSize; n++ {
		if _, err := m.Allocate("atlas", SubjectKeyFromDN(candidateName("subj", n))); err != nil {
			t.Fatalf("allocation %d failed: %v", n, err)
		}
	}
	if _, err := m.Allocate("atlas", SubjectKeyFromDN("one-too-many")); err != ErrPoolExhausted {
		t.Errorf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestSubjectKeyFromFQANsOrdering(t *testing.T) {
	k1 := SubjectKeyFromFQANs("/CN=Alice", "atlasprod", []string{"b", "a"})
	k2 := SubjectKeyFromFQANs("/CN=Alice", "atlasprod", []string{"a", "b"})
	if k1 != k2 {
		t.Errorf("expected secondary-group order to be normalized: %q != %q", k1, k2)
	}
}
