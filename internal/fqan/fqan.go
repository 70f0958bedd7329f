// Package fqan parses and wildcard-matches Fully Qualified Attribute Names
// (spec §3, §4.1): /<group>[/<group>...][/Role=<role>][/Capability=<cap>].
package fqan

import (
	"errors"
	"fmt"
	"strings"
)

// NullToken is the canonical token standing in for an absent role or
// capability.
const NullToken = "NULL"

// FQAN is a parsed, canonical Fully Qualified Attribute Name.
type FQAN struct {
	Group      string // e.g. "/atlas/prod", never trailing-slashed
	Role       string // canonical: NullToken when absent
	Capability string // canonical: NullToken when absent
}

// ErrMalformedFQAN is returned by Parse on any of the malformed-input cases
// of spec §3.
var ErrMalformedFQAN = errors.New("malformed FQAN")

// ErrMalformedPattern is returned by Matches when the pattern itself is
// invalid for matching purposes (spec §4.1).
var ErrMalformedPattern = errors.New("malformed FQAN pattern")

// Parse parses s into a canonical FQAN, or returns ErrMalformedFQAN.
func Parse(s string) (FQAN, error) {
	if !strings.HasPrefix(s, "/") {
		return FQAN{}, fmt.Errorf("%w: does not start with /: %q", ErrMalformedFQAN, s)
	}
	parts := strings.Split(s[1:], "/")

	var groupParts []string
	role := ""
	capability := ""
	haveRole, haveCap := false, false

	for i, part := range parts {
		if part == "" {
			if i == len(parts)-1 {
				// Trailing slash; skip (it is stripped per spec §4.1).
				continue
			}
			return FQAN{}, fmt.Errorf("%w: empty group component", ErrMalformedFQAN)
		}
		eqCount := strings.Count(part, "=")
		if eqCount == 0 {
			groupParts = append(groupParts, part)
			continue
		}
		if eqCount > 1 {
			return FQAN{}, fmt.Errorf("%w: component has more than one '=': %q", ErrMalformedFQAN, part)
		}
		kv := strings.SplitN(part, "=", 2)
		key, value := kv[0], kv[1]
		switch strings.ToLower(key) {
		case "role":
			if haveRole {
				return FQAN{}, fmt.Errorf("%w: Role appears twice", ErrMalformedFQAN)
			}
			haveRole = true
			role = value
		case "capability":
			if haveCap {
				return FQAN{}, fmt.Errorf("%w: Capability appears twice", ErrMalformedFQAN)
			}
			haveCap = true
			capability = value
		default:
			return FQAN{}, fmt.Errorf("%w: unknown key %q", ErrMalformedFQAN, key)
		}
	}

	if len(groupParts) == 0 {
		return FQAN{}, fmt.Errorf("%w: empty group", ErrMalformedFQAN)
	}
	for _, g := range groupParts {
		if g == "" {
			return FQAN{}, fmt.Errorf("%w: empty group component", ErrMalformedFQAN)
		}
	}

	return FQAN{
		Group:      "/" + strings.Join(groupParts, "/"),
		Role:       canonicalToken(role),
		Capability: canonicalToken(capability),
	}, nil
}

func canonicalToken(v string) string {
	if v == "" || strings.EqualFold(v, NullToken) {
		return NullToken
	}
	return v
}

// String formats the FQAN back into its canonical wire form, such that
// format(parse(s)) == s for any s already in canonical form (spec §8).
func (f FQAN) String() string {
	s := f.Group
	if f.Role != NullToken {
		s += "/Role=" + f.Role
	} else {
		s += "/Role=" + NullToken
	}
	if f.Capability != NullToken {
		s += "/Capability=" + f.Capability
	} else {
		s += "/Capability=" + NullToken
	}
	return s
}

// Equal reports structural equality per spec §3: identical group sequence
// (case-sensitive), and case-insensitively equal role/capability tokens.
func (f FQAN) Equal(o FQAN) bool {
	return f.Group == o.Group &&
		strings.EqualFold(f.Role, o.Role) &&
		strings.EqualFold(f.Capability, o.Capability)
}

// Matches reports whether candidate matches pattern per spec §4.1. Both the
// group and the role condition must hold; capability is always literal.
func Matches(pattern, candidate FQAN) (bool, error) {
	groupOK, err := groupMatches(pattern.Group, candidate.Group)
	if err != nil {
		return false, err
	}
	if !groupOK {
		return false, nil
	}

	roleOK, err := roleMatches(pattern.Role, candidate.Role)
	if err != nil {
		return false, err
	}
	if !roleOK {
		return false, nil
	}

	return strings.EqualFold(pattern.Capability, candidate.Capability), nil
}

func groupMatches(pattern, candidate string) (bool, error) {
	if !strings.HasSuffix(pattern, "/*") {
		if strings.Contains(pattern, "*") {
			return false, fmt.Errorf("%w: stray '*' in group %q", ErrMalformedPattern, pattern)
		}
		return pattern == candidate, nil
	}
	base := strings.TrimSuffix(pattern, "*")
	if !strings.HasSuffix(base, "/") || strings.Contains(base, "*") {
		return false, fmt.Errorf("%w: invalid wildcard group %q", ErrMalformedPattern, pattern)
	}
	// Groups carry no trailing slash, so a prefix match against base (which
	// ends in "/") requires at least one group component below it.
	return strings.HasPrefix(candidate, base), nil
}

func roleMatches(pattern, candidate string) (bool, error) {
	if pattern == "*" {
		return true, nil
	}
	if strings.Contains(pattern, "*") {
		return false, fmt.Errorf("%w: invalid wildcard role %q", ErrMalformedPattern, pattern)
	}
	return strings.EqualFold(pattern, candidate), nil
}
