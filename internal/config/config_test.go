package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pep.ini")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %s", err)
	}
	return path
}

func TestLoadsServiceDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[SERVICE]
entityId = https://pep.example.org
hostname = pep.example.org
port = 8443
pips = cert-chain whitelist
obligationHandlers = accountMapping
`)

	cfg, err := NewConfiguration(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cfg.Service.Port != 8443 {
		t.Errorf("expected port 8443, got %d", cfg.Service.Port)
	}
	if cfg.Service.MaximumRequests != defaultMaximumRequests {
		t.Errorf("expected default maximumRequests, got %d", cfg.Service.MaximumRequests)
	}
	if cfg.Service.AdminHost != defaultAdminHost {
		t.Errorf("expected default adminHost, got %q", cfg.Service.AdminHost)
	}
	if len(cfg.Service.PIPs) != 2 || cfg.Service.PIPs[0] != "cert-chain" || cfg.Service.PIPs[1] != "whitelist" {
		t.Errorf("unexpected pips list: %v", cfg.Service.PIPs)
	}
}

func TestLenientIntegerParsingFallsBackToDefault(t *testing.T) {
	path := writeTempConfig(t, `
[SERVICE]
hostname = pep.example.org
port = 9000
maximumRequests = not-a-number
`)

	cfg, err := NewConfiguration(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cfg.Service.MaximumRequests != defaultMaximumRequests {
		t.Errorf("expected fallback to default maximumRequests, got %d", cfg.Service.MaximumRequests)
	}
}

func TestSecurityDefaultsWhenSectionAbsent(t *testing.T) {
	path := writeTempConfig(t, `
[SERVICE]
hostname = pep.example.org
port = 9000
`)

	cfg, err := NewConfiguration(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !cfg.Security.RequireCRLs {
		t.Errorf("expected RequireCRLs to default true")
	}
}

func TestHandlerSectionParamsExcludeParserClassAndPrecedence(t *testing.T) {
	path := writeTempConfig(t, `
[SERVICE]
hostname = pep.example.org
port = 9000
pips = whitelist-pip

[whitelist-pip]
parserClass = whitelist
precedence = 10
resource = urn:x-resource
`)

	cfg, err := NewConfiguration(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(cfg.PIPs) != 1 {
		t.Fatalf("expected one PIP section, got %d", len(cfg.PIPs))
	}
	sec := cfg.PIPs[0]
	if sec.ParserClass != "whitelist" || sec.Precedence != 10 {
		t.Errorf("unexpected parsed section: %+v", sec)
	}
	if _, ok := sec.Params["parserClass"]; ok {
		t.Errorf("parserClass leaked into Params")
	}
	if sec.Params["resource"] != "urn:x-resource" {
		t.Errorf("expected resource param to survive, got %q", sec.Params["resource"])
	}
}
