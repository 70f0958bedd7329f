package dfpm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/argus-authz/pep-pdp/internal/fqan"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grid-mapfile", ""+
		"# comment\n"+
		`"/cms/*" cmsuser`+"\n"+
		`"/cms/prod" cmsprod`+"\n")

	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}

	f, err := fqan.Parse("/cms/prod")
	if err != nil {
		t.Fatal(err)
	}
	targets, matched, ok := store.Lookup(f)
	if !ok {
		t.Fatal("expected a match")
	}
	if matched != "/cms/*" {
		t.Errorf("expected first-match pattern /cms/*, got %q", matched)
	}
	if len(targets) != 1 || targets[0] != "cmsuser" {
		t.Errorf("expected [cmsuser], got %v", targets)
	}
}

func TestDNLookup(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grid-mapfile", `"/C=CH/O=CERN/CN=Alice" .atlas, atlasusers`+"\n")

	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	targets, _, ok := store.Lookup("/C=CH/O=CERN/CN=Alice")
	if !ok {
		t.Fatal("expected DN match")
	}
	if len(targets) != 2 || targets[0] != ".atlas" || targets[1] != "atlasusers" {
		t.Errorf("unexpected targets: %v", targets)
	}
}

func TestMalformedLineSkippedButParsingContinues(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grid-mapfile", ""+
		`"/bad/Foo=x" target1`+"\n"+
		`"/cms/prod" cmsprod`+"\n")

	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	f, _ := fqan.Parse("/cms/prod")
	_, _, ok := store.Lookup(f)
	if !ok {
		t.Fatal("expected the valid second line to still be loaded")
	}
}

func TestRefreshIfChangedKeepsOldTableOnReadFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "grid-mapfile", `"/cms/prod" cmsprod`+"\n")
	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	store.RefreshIfChanged()

	f, _ := fqan.Parse("/cms/prod")
	_, _, ok := store.Lookup(f)
	if !ok {
		t.Fatal("expected previous table to survive a failed refresh")
	}
}
