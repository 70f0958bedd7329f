// Package mapper implements the DN/FQAN → POSIX account mapping algorithm of
// spec §4.4, combining the DFPM store (§4.2), the pool-account manager
// (§4.3) and the posixdb passwd/group cache.
package mapper

import (
	"strings"

	"github.com/argus-authz/pep-pdp/internal/dfpm"
	"github.com/argus-authz/pep-pdp/internal/fqan"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
	"github.com/argus-authz/pep-pdp/internal/poolaccount"
	"github.com/argus-authz/pep-pdp/internal/posixdb"
)

// Group is a resolved (name, gid) pair.
type Group struct {
	Name string
	GID  int
}

// PosixAccount is the result of §4.4: loginName, uid, primary group, and
// secondary groups.
type PosixAccount struct {
	LoginName  string
	UID        int
	Primary    Group
	Secondary  []Group
}

// Subject is the input to the account mapper: a DN plus an optional primary
// FQAN and zero or more secondary FQANs.
type Subject struct {
	DN              string
	PrimaryFQAN     *fqan.FQAN
	SecondaryFQANs  []fqan.FQAN
}

// Mapper ties together the account-indicator DFPM, the group DFPM, the
// pool-account manager and the posix db.
type Mapper struct {
	AccountIndicators *dfpm.Store
	Groups            *dfpm.Store
	Pool              *poolaccount.Manager
	Posix             *posixdb.DB
	// DNPreferred selects DN-first lookup order for the account indicator
	// (spec §4.4 step 1 "or in DN-preferred mode, by DN first").
	DNPreferred bool
}

// Map resolves s to a PosixAccount, or returns an error wrapping one of the
// pepcore.Err* kinds.
func (m *Mapper) Map(s Subject) (PosixAccount, error) {
	indicators, err := m.lookupAccountIndicators(s)
	if err != nil {
		return PosixAccount{}, err
	}
	indicator := indicators[0]

	primaryGroup, secondaryGroups, err := m.resolveGroups(s)
	if err != nil {
		return PosixAccount{}, err
	}

	loginName := indicator
	if isPoolPrefix(indicator) {
		prefix := strings.TrimPrefix(indicator, ".")
		var key string
		if s.PrimaryFQAN != nil {
			key = poolaccount.SubjectKeyFromFQANs(s.DN, primaryGroup, secondaryGroups)
		} else {
			key = poolaccount.SubjectKeyFromDN(s.DN)
		}
		login, err := m.Pool.Allocate(prefix, key)
		if err != nil {
			return PosixAccount{}, pepcore.Wrap(pepcore.ErrPoolExhausted, "pool-account allocation failed", err)
		}
		loginName = login
	}

	uidEntry, err := m.Posix.LookupUser(loginName)
	if err != nil {
		return PosixAccount{}, pepcore.Wrap(pepcore.ErrMappingFailed, "unresolved login name "+loginName, err)
	}

	var primary Group
	var secondary []Group
	if primaryGroup != "" {
		g, err := m.Posix.LookupGroup(primaryGroup)
		if err != nil {
			return PosixAccount{}, pepcore.Wrap(pepcore.ErrMappingFailed, "unresolved group "+primaryGroup, err)
		}
		primary = Group{Name: g.Name, GID: g.GID}
	} else {
		// No primary FQAN: primary group comes from /etc/passwd's GID field,
		// then /etc/group to get its name (spec §4.4 step 3, §9 PosixUtil
		// note — the GID observed in /etc/passwd is preserved as-is rather
		// than re-resolved by name, per the probable-bug flagged in spec §9).
		g, err := m.Posix.LookupGroupByGID(uidEntry.GID)
		if err != nil {
			return PosixAccount{}, pepcore.Wrap(pepcore.ErrMappingFailed, "unresolved primary gid", err)
		}
		primary = Group{Name: g.Name, GID: uidEntry.GID}
	}

	for _, name := range secondaryGroups {
		g, err := m.Posix.LookupGroup(name)
		if err != nil {
			return PosixAccount{}, pepcore.Wrap(pepcore.ErrMappingFailed, "unresolved secondary group "+name, err)
		}
		secondary = append(secondary, Group{Name: g.Name, GID: g.GID})
	}

	return PosixAccount{
		LoginName: loginName,
		UID:       uidEntry.UID,
		Primary:   primary,
		Secondary: secondary,
	}, nil
}

// lookupAccountIndicators implements spec §4.4 step 1.
func (m *Mapper) lookupAccountIndicators(s Subject) ([]string, error) {
	try := func(key interface{}) ([]string, bool) {
		targets, _, ok := m.AccountIndicators.Lookup(key)
		return targets, ok
	}

	order := m.lookupOrder(s)
	for _, key := range order {
		if targets, ok := try(key); ok && len(targets) > 0 {
			return targets, nil
		}
	}
	return nil, pepcore.Wrap(pepcore.ErrNoAccountMapping, "no account-indicator DFPM entry matched", nil)
}

func (m *Mapper) lookupOrder(s Subject) []interface{} {
	var fqanKeys []interface{}
	if s.PrimaryFQAN != nil {
		fqanKeys = append(fqanKeys, *s.PrimaryFQAN)
	}
	for _, f := range s.SecondaryFQANs {
		fqanKeys = append(fqanKeys, f)
	}
	if m.DNPreferred {
		return append([]interface{}{s.DN}, fqanKeys...)
	}
	return append(fqanKeys, s.DN)
}

// resolveGroups implements spec §4.4 step 3.
func (m *Mapper) resolveGroups(s Subject) (primary string, secondary []string, err error) {
	if s.PrimaryFQAN == nil {
		return "", nil, nil
	}

	seen := map[string]bool{}
	addSecondary := func(name string) {
		if name == "" || name == primary || seen[name] {
			return
		}
		seen[name] = true
		secondary = append(secondary, name)
	}

	targets, _, ok := m.Groups.Lookup(*s.PrimaryFQAN)
	if !ok || len(targets) == 0 {
		return "", nil, pepcore.Wrap(pepcore.ErrNoGroupMapping, "no group DFPM entry matched primary FQAN", nil)
	}
	primary = targets[0]
	for _, t := range targets[1:] {
		addSecondary(t)
	}

	for _, f := range s.SecondaryFQANs {
		targets, _, ok := m.Groups.Lookup(f)
		if !ok {
			continue
		}
		for _, t := range targets {
			addSecondary(t)
		}
	}

	return primary, secondary, nil
}

func isPoolPrefix(indicator string) bool {
	return strings.HasPrefix(indicator, ".")
}
