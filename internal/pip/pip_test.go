package pip

import (
	"testing"

	"github.com/argus-authz/pep-pdp/internal/model"
)

func TestWhitelistRemovesUnlisted(t *testing.T) {
	req := &model.Request{}
	req.Action.Add(model.Attribute{ID: "keep"})
	req.Action.Add(model.Attribute{ID: "drop"})

	w := NewWhitelist(WhitelistConfig{Action: map[string]bool{"keep": true}})
	if err := w.Apply(req); err != nil {
		t.Fatal(err)
	}
	if len(req.Action.Attributes) != 1 || req.Action.Attributes[0].ID != "keep" {
		t.Errorf("unexpected attributes after whitelist: %+v", req.Action.Attributes)
	}
}

func TestStaticFailsOnMultipleResourcesWithoutBroadcast(t *testing.T) {
	req := &model.Request{Resources: []*model.Resource{{}, {}}}
	s := NewStatic(StaticConfig{ResourceAttrs: []model.Attribute{{ID: "x"}}})
	if err := s.Apply(req); err == nil {
		t.Error("expected error for multiple resources without broadcast")
	}
}

func TestStaticBroadcastsToAllSubjects(t *testing.T) {
	req := &model.Request{Subjects: []*model.Subject{{}, {}}}
	s := NewStatic(StaticConfig{SubjectAttrs: []model.Attribute{{ID: "x"}}, BroadcastSubject: true})
	if err := s.Apply(req); err != nil {
		t.Fatal(err)
	}
	for _, subj := range req.Subjects {
		if len(subj.Attributes) != 1 {
			t.Errorf("expected attribute broadcast to every subject")
		}
	}
}

func TestBuildStaticParsesAttrsFromINIParams(t *testing.T) {
	p, err := Build("static", map[string]string{
		"actionAttrs":      "urn:example:action|http://www.w3.org/2001/XMLSchema#string|invoke",
		"subjectAttrs":     "urn:example:group|http://www.w3.org/2001/XMLSchema#string|a,b",
		"broadcastSubject": "true",
	})
	if err != nil {
		t.Fatal(err)
	}

	req := &model.Request{Subjects: []*model.Subject{{}, {}}}
	if err := p.Apply(req); err != nil {
		t.Fatal(err)
	}

	a, ok := req.Action.FirstByID("urn:example:action")
	if !ok || len(a.Values) != 1 || a.Values[0] != "invoke" {
		t.Errorf("expected actionAttrs to be parsed and applied, got %+v", req.Action.Attributes)
	}
	for _, subj := range req.Subjects {
		g, ok := subj.FirstByID("urn:example:group")
		if !ok || len(g.Values) != 2 || g.Values[0] != "a" || g.Values[1] != "b" {
			t.Errorf("expected subjectAttrs broadcast with multi-valued attribute, got %+v", subj.Attributes)
		}
	}
}

func TestParseAttrListSkipsMalformedEntry(t *testing.T) {
	attrs := parseAttrList("urn:ok|http://www.w3.org/2001/XMLSchema#string|v ; malformed-no-pipes")
	if len(attrs) != 1 || attrs[0].ID != "urn:ok" {
		t.Errorf("expected the malformed entry to be skipped, got %+v", attrs)
	}
}

func TestTimeInjectsCurrentDateTime(t *testing.T) {
	req := &model.Request{}
	if err := NewTime().Apply(req); err != nil {
		t.Fatal(err)
	}
	if _, ok := req.Environment.FirstByID(attrCurrentDateTime); !ok {
		t.Error("expected current-dateTime attribute")
	}
}
