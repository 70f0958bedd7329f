// Package pip holds the simple configured PIPs of spec §4.6 (static,
// whitelist, time) and the PIP registry of spec §9 ("polymorphic PIP/OH
// registry" — a table from string tag to constructor, populated at compile
// time rather than via dynamic class loading).
package pip

import (
	"strings"
	"time"

	"github.com/sapcc/go-bits/logg"

	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
)

// PIP enriches a Request in place, in the order it was configured.
type PIP interface {
	Apply(req *model.Request) error
}

// Func adapts a plain function to the PIP interface.
type Func func(req *model.Request) error

func (f Func) Apply(req *model.Request) error { return f(req) }

// Constructor builds a PIP from its configuration parameters, looked up by
// the "parserClass" tag in the INI config (spec §6, §9).
type Constructor func(params map[string]string) (PIP, error)

var registry = map[string]Constructor{}

// Register adds a PIP constructor under tag. Called from package init
// functions, so the registry is populated at compile time with no dynamic
// class loading (spec §9).
func Register(tag string, ctor Constructor) {
	registry[tag] = ctor
}

// Build looks up tag and constructs a PIP instance.
func Build(tag string, params map[string]string) (PIP, error) {
	ctor, ok := registry[tag]
	if !ok {
		return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "unknown PIP parserClass "+tag, nil)
	}
	return ctor(params)
}

func init() {
	Register("whitelist", func(params map[string]string) (PIP, error) {
		return NewWhitelist(parseWhitelistParams(params)), nil
	})
	Register("static", func(params map[string]string) (PIP, error) {
		return NewStatic(parseStaticParams(params)), nil
	})
	Register("time", func(params map[string]string) (PIP, error) {
		return NewTime(), nil
	})
}

// --- Whitelist PIP ---------------------------------------------------------

// WhitelistConfig lists the accepted attribute ids per request element. A
// nil list for an element leaves it untouched (spec §4.6).
type WhitelistConfig struct {
	Action      map[string]bool
	Environment map[string]bool
	Resource    map[string]bool
	Subject     map[string]bool
}

type whitelist struct{ cfg WhitelistConfig }

// NewWhitelist returns a PIP removing any attribute whose id is not in the
// configured accepted list for its element.
func NewWhitelist(cfg WhitelistConfig) PIP { return whitelist{cfg} }

func (w whitelist) Apply(req *model.Request) error {
	if w.cfg.Action != nil {
		req.Action.RemoveNotIn(w.cfg.Action)
	}
	if w.cfg.Environment != nil {
		req.Environment.RemoveNotIn(w.cfg.Environment)
	}
	for _, r := range req.Resources {
		if w.cfg.Resource != nil {
			r.RemoveNotIn(w.cfg.Resource)
		}
	}
	for _, s := range req.Subjects {
		if w.cfg.Subject != nil {
			s.RemoveNotIn(w.cfg.Subject)
		}
	}
	return nil
}

func parseWhitelistParams(params map[string]string) WhitelistConfig {
	return WhitelistConfig{
		Action:      toSet(params["action"]),
		Environment: toSet(params["environment"]),
		Resource:    toSet(params["resource"]),
		Subject:     toSet(params["subject"]),
	}
}

func toSet(spaceList string) map[string]bool {
	if spaceList == "" {
		return nil
	}
	set := map[string]bool{}
	start := 0
	for i := 0; i <= len(spaceList); i++ {
		if i == len(spaceList) || spaceList[i] == ' ' {
			if i > start {
				set[spaceList[start:i]] = true
			}
			start = i + 1
		}
	}
	return set
}

// --- Static PIP -------------------------------------------------------------

// StaticConfig is the fixed set of attributes appended to each element, plus
// the broadcast flags of spec §4.6.
type StaticConfig struct {
	ActionAttrs      []model.Attribute
	EnvironmentAttrs []model.Attribute
	ResourceAttrs    []model.Attribute
	SubjectAttrs     []model.Attribute
	BroadcastResource bool
	BroadcastSubject  bool
}

type static struct{ cfg StaticConfig }

// NewStatic returns a PIP appending a configured fixed set of attributes.
func NewStatic(cfg StaticConfig) PIP { return static{cfg} }

func (s static) Apply(req *model.Request) error {
	for _, a := range s.cfg.ActionAttrs {
		req.Action.Add(a)
	}
	for _, a := range s.cfg.EnvironmentAttrs {
		req.Environment.Add(a)
	}

	if len(s.cfg.ResourceAttrs) > 0 {
		if len(req.Resources) == 0 {
			req.Resources = []*model.Resource{{}}
		}
		if !s.cfg.BroadcastResource && len(req.Resources) > 1 {
			return pepcore.Wrap(pepcore.ErrPIPFailed, "static PIP: more than one resource present and broadcast disabled", nil)
		}
		targets := req.Resources
		if !s.cfg.BroadcastResource {
			targets = req.Resources[:1]
		}
		for _, r := range targets {
			for _, a := range s.cfg.ResourceAttrs {
				r.Add(a)
			}
		}
	}

	if len(s.cfg.SubjectAttrs) > 0 {
		if len(req.Subjects) == 0 {
			req.Subjects = []*model.Subject{{}}
		}
		if !s.cfg.BroadcastSubject && len(req.Subjects) > 1 {
			return pepcore.Wrap(pepcore.ErrPIPFailed, "static PIP: more than one subject present and broadcast disabled", nil)
		}
		targets := req.Subjects
		if !s.cfg.BroadcastSubject {
			targets = req.Subjects[:1]
		}
		for _, subj := range targets {
			for _, a := range s.cfg.SubjectAttrs {
				subj.Add(a)
			}
		}
	}

	return nil
}

func parseStaticParams(params map[string]string) StaticConfig {
	return StaticConfig{
		ActionAttrs:       parseAttrList(params["actionAttrs"]),
		EnvironmentAttrs:  parseAttrList(params["environmentAttrs"]),
		ResourceAttrs:     parseAttrList(params["resourceAttrs"]),
		SubjectAttrs:      parseAttrList(params["subjectAttrs"]),
		BroadcastResource: params["broadcastResource"] == "true",
		BroadcastSubject:  params["broadcastSubject"] == "true",
	}
}

// parseAttrList parses the static PIP's fixed-attribute INI value: a
// ";"-separated list of "id|dataType|value[,value...]" triples, e.g.
//
//	actionAttrs = urn:example:attr|http://www.w3.org/2001/XMLSchema#string|foo,bar
//
// matching the flat-string-value convention HandlerSection.Params hands
// every PIP/OH constructor (spec §6, §9 "polymorphic PIP/OH registry").
// A malformed triple is logged and skipped; parsing continues.
func parseAttrList(s string) []model.Attribute {
	var attrs []model.Attribute
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.SplitN(entry, "|", 3)
		if len(fields) != 3 {
			logg.Error("pip: static attribute spec %q must be id|dataType|value, skipping", entry)
			continue
		}
		id := strings.TrimSpace(fields[0])
		dataType := strings.TrimSpace(fields[1])
		var values []string
		for _, v := range strings.Split(fields[2], ",") {
			values = append(values, strings.TrimSpace(v))
		}
		attrs = append(attrs, model.Attribute{ID: id, DataType: dataType, Values: values})
	}
	return attrs
}

// --- Time PIP ----------------------------------------------------------------

const (
	attrCurrentDateTime = "urn:oasis:names:tc:xacml:1.0:environment:current-dateTime"
	dataTypeDateTime     = "http://www.w3.org/2001/XMLSchema#dateTime"
)

type timePIP struct {
	now func() time.Time
}

// NewTime returns a PIP injecting the current wall-clock time into the
// Environment using standard dateTime types (spec §4.6).
func NewTime() PIP { return timePIP{now: time.Now} }

func (t timePIP) Apply(req *model.Request) error {
	req.Environment.Add(model.Attribute{
		ID:       attrCurrentDateTime,
		DataType: dataTypeDateTime,
		Values:   []string{t.now().UTC().Format(time.RFC3339)},
	})
	return nil
}
