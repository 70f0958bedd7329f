package mapper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/argus-authz/pep-pdp/internal/fqan"
	"github.com/argus-authz/pep-pdp/internal/dfpm"
	"github.com/argus-authz/pep-pdp/internal/poolaccount"
	"github.com/argus-authz/pep-pdp/internal/posixdb"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestAccountMappingEndToEnd(t *testing.T) {
	dir := t.TempDir()

	indicatorsPath := filepath.Join(dir, "account-indicators")
	writeFile(t, indicatorsPath, `"/atlas/prod" .atlas`+"\n")
	groupsPath := filepath.Join(dir, "groups")
	writeFile(t, groupsPath, `"/atlas/prod" atlasprod atlas`+"\n")
	passwdPath := filepath.Join(dir, "passwd")
	writeFile(t, passwdPath, "atlas001:x:50001:1001:Atlas Pool:/home/atlas001:/bin/sh\n")
	groupFilePath := filepath.Join(dir, "group")
	writeFile(t, groupFilePath, "atlasprod:x:2001:\natlas:x:1001:\n")

	gridmapdir := filepath.Join(dir, "gridmapdir")
	if err := os.Mkdir(gridmapdir, 0755); err != nil {
		t.Fatal(err)
	}

	indicators, err := dfpm.NewStore(indicatorsPath)
	if err != nil {
		t.Fatal(err)
	}
	groups, err := dfpm.NewStore(groupsPath)
	if err != nil {
		t.Fatal(err)
	}

	m := &Mapper{
		AccountIndicators: indicators,
		Groups:            groups,
		Pool:              poolaccount.NewManager(gridmapdir),
		Posix:             posixdb.NewWithPaths(passwdPath, groupFilePath),
	}

	primary, err := fqan.Parse("/atlas/prod")
	if err != nil {
		t.Fatal(err)
	}

	account, err := m.Map(Subject{
		DN:          "/C=CH/O=CERN/CN=Alice",
		PrimaryFQAN: &primary,
	})
	if err != nil {
		t.Fatal(err)
	}

	if account.LoginName != "atlas001" {
		t.Errorf("expected login atlas001, got %s", account.LoginName)
	}
	if account.UID != 50001 {
		t.Errorf("expected uid 50001, got %d", account.UID)
	}
	if account.Primary.Name != "atlasprod" || account.Primary.GID != 2001 {
		t.Errorf("unexpected primary group: %+v", account.Primary)
	}
	if len(account.Secondary) != 1 || account.Secondary[0].Name != "atlas" || account.Secondary[0].GID != 1001 {
		t.Errorf("unexpected secondary groups: %+v", account.Secondary)
	}
}

func TestNoAccountMappingError(t *testing.T) {
	dir := t.TempDir()
	indicatorsPath := filepath.Join(dir, "account-indicators")
	writeFile(t, indicatorsPath, "# empty\n")
	indicators, err := dfpm.NewStore(indicatorsPath)
	if err != nil {
		t.Fatal(err)
	}
	m := &Mapper{AccountIndicators: indicators, Groups: indicators}

	_, err = m.Map(Subject{DN: "/CN=Nobody"})
	if err == nil {
		t.Fatal("expected an error")
	}
}
