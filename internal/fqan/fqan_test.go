package fqan

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"/atlas/prod/Role=NULL/Capability=NULL",
		"/atlas/prod/Role=production/Capability=NULL",
		"/cms/Role=NULL/Capability=NULL",
	}
	for _, s := range cases {
		f, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		if got := f.String(); got != s {
			t.Errorf("round trip failed: Parse(%q).String() = %q", s, got)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"atlas/prod",          // no leading /
		"/atlas/Foo=bar",      // unknown key
		"/atlas/Role=a/Role=b",
		"/atlas/Role=a=b",
		"//atlas",
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", s)
		}
	}
}

func TestMatchesSelf(t *testing.T) {
	f, err := Parse("/atlas/prod/Role=production/Capability=NULL")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := Matches(f, f)
	if err != nil || !ok {
		t.Errorf("Matches(p, p) = %v, %v; want true, nil", ok, err)
	}
}

func TestWildcardGroup(t *testing.T) {
	pattern, err := Parse("/atlas/*/Role=NULL/Capability=NULL")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		candidate string
		want      bool
	}{
		{"/atlas/prod/Role=NULL/Capability=NULL", true},
		{"/atlas/Role=NULL/Capability=NULL", false},
		{"/atlasbar/x/Role=NULL/Capability=NULL", false},
	}
	for _, tt := range tests {
		c, err := Parse(tt.candidate)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Matches(pattern, c)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", pattern, tt.candidate, got, tt.want)
		}
	}
}

func TestWildcardRole(t *testing.T) {
	pattern, err := Parse("/atlas/*/Role=*/Capability=NULL")
	if err != nil {
		t.Fatal(err)
	}
	candidate, err := Parse("/atlas/prod/Role=production/Capability=NULL")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := Matches(pattern, candidate)
	if err != nil || !ok {
		t.Errorf("Matches with Role=* = %v, %v; want true, nil", ok, err)
	}
}

func TestDFPMFirstMatchOrderingExample(t *testing.T) {
	wide, _ := Parse("/cms/*/Role=NULL/Capability=NULL")
	narrow, _ := Parse("/cms/prod/Role=NULL/Capability=NULL")
	candidate, _ := Parse("/cms/prod/Role=NULL/Capability=NULL")

	wideOK, _ := Matches(wide, candidate)
	narrowOK, _ := Matches(narrow, candidate)
	if !wideOK || !narrowOK {
		t.Fatalf("expected both patterns to match the candidate for a first-match test, got wide=%v narrow=%v", wideOK, narrowOK)
	}
}
