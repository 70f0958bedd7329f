// Package model is the in-memory XACML-like request/response model shared by
// the PIP chain, the PDP dispatcher and the obligation handler chain.
//
// Attributes and FQANs are immutable after construction; Requests are
// mutated only by PIPs during enrichment and are frozen before dispatch;
// Results are mutated only by OHs during post-processing. See spec §3.
package model

import "sort"

// Decision is one of the four XACML decision outcomes.
type Decision string

const (
	Permit        Decision = "Permit"
	Deny          Decision = "Deny"
	Indeterminate Decision = "Indeterminate"
	NotApplicable Decision = "NotApplicable"
)

// Attribute is the triple (id, dataType, issuer) plus an ordered list of
// string values. Equality is structural on all four fields.
type Attribute struct {
	ID       string
	DataType string
	Issuer   string // empty means absent
	Values   []string
}

// Equal compares two attributes structurally, per spec §3.
func (a Attribute) Equal(b Attribute) bool {
	if a.ID != b.ID || a.DataType != b.DataType || a.Issuer != b.Issuer {
		return false
	}
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}

// AddValue appends a value to the attribute's value list. Used only during
// request enrichment.
func (a *Attribute) AddValue(v string) {
	a.Values = append(a.Values, v)
}

// AttributeHolder is embedded by Subject, Resource, Action and Environment:
// each of these is a set of attributes.
type AttributeHolder struct {
	Attributes []Attribute
}

// ByID returns all attributes with the given id, in insertion order.
func (h *AttributeHolder) ByID(id string) []Attribute {
	var out []Attribute
	for _, a := range h.Attributes {
		if a.ID == id {
			out = append(out, a)
		}
	}
	return out
}

// FirstByID returns the first attribute with the given id, if any.
func (h *AttributeHolder) FirstByID(id string) (Attribute, bool) {
	for _, a := range h.Attributes {
		if a.ID == id {
			return a, true
		}
	}
	return Attribute{}, false
}

// Add appends an attribute to the holder. Used by PIPs during enrichment.
func (h *AttributeHolder) Add(a Attribute) {
	h.Attributes = append(h.Attributes, a)
}

// RemoveNotIn drops every attribute whose id is not in the allowed set.
// Used by the whitelist PIP (spec §4.6).
func (h *AttributeHolder) RemoveNotIn(allowed map[string]bool) {
	kept := h.Attributes[:0]
	for _, a := range h.Attributes {
		if allowed[a.ID] {
			kept = append(kept, a)
		}
	}
	h.Attributes = kept
}

// Subject is a set of attributes plus an optional category URI.
type Subject struct {
	AttributeHolder
	Category string
}

// Resource is a set of attributes.
type Resource struct {
	AttributeHolder
}

// Action is a set of attributes.
type Action struct {
	AttributeHolder
}

// Environment is a set of attributes.
type Environment struct {
	AttributeHolder
}

// Request owns a non-empty set of Subjects, a non-empty set of Resources,
// exactly one Action and one Environment.
type Request struct {
	Subjects    []*Subject
	Resources   []*Resource
	Action      Action
	Environment Environment
}

// AttributeAssignment is (attributeId, dataType, value) inside an Obligation.
type AttributeAssignment struct {
	AttributeID string
	DataType    string
	Value       string
}

// Obligation is (id, fulfillOn) plus an ordered list of AttributeAssignments.
type Obligation struct {
	ID          string
	FulfillOn   Decision
	Assignments []AttributeAssignment
}

// FirstAssignment returns the first assignment with the given attribute id.
func (o Obligation) FirstAssignment(attributeID string) (AttributeAssignment, bool) {
	for _, a := range o.Assignments {
		if a.AttributeID == attributeID {
			return a, true
		}
	}
	return AttributeAssignment{}, false
}

// Result owns a decision, an optional status code, an associated resource
// identifier, and an ordered list of obligations.
type Result struct {
	Decision     Decision
	StatusCode   string
	StatusMsg    string
	ResourceID   string
	Obligations  []Obligation
}

// HasObligation reports whether the result carries an obligation with the
// given id.
func (r *Result) HasObligation(id string) (int, bool) {
	for i, o := range r.Obligations {
		if o.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Response owns a non-empty list of Results and echoes the original Request.
type Response struct {
	Results []*Result
	Request *Request
}

// SortedStrings returns a sorted copy of ss, leaving ss unchanged.
func SortedStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}
