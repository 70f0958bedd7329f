// Package poolaccount implements the gridmapdir pool-account leasing
// protocol of spec §4.3: stable login-name leases backed entirely by
// filesystem hard links, with no in-process lock (spec §9 "filesystem-based
// leasing" — synchronization is against the filesystem, not a mutex).
package poolaccount

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// MaxPoolSize is the largest account index the protocol supports (p001..p999).
const MaxPoolSize = 999

// ErrPoolExhausted is returned when no candidate in [1..999] is free.
var ErrPoolExhausted = errors.New("poolaccount: pool exhausted")

// Manager leases pool-account login names under a single gridmapdir.
type Manager struct {
	Dir string
}

// NewManager returns a Manager rooted at dir. dir must already exist.
func NewManager(dir string) *Manager {
	return &Manager{Dir: dir}
}

// SubjectKeyFromDN computes the DN-only subject key of spec §4.3.
func SubjectKeyFromDN(dn string) string {
	return urlEncode(dn)
}

// SubjectKeyFromFQANs computes the DN+FQAN-scoped subject key of spec §4.3:
// urlEncode(DN) + ":" + urlEncode(primaryGroup) + (":" + urlEncode(secondary)
// per sorted secondary).
func SubjectKeyFromFQANs(dn, primaryGroup string, secondaryGroups []string) string {
	sorted := append([]string(nil), secondaryGroups...)
	sortStrings(sorted)

	parts := []string{urlEncode(dn), urlEncode(primaryGroup)}
	for _, g := range sorted {
		parts = append(parts, urlEncode(g))
	}
	return strings.Join(parts, ":")
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// urlEncode replaces every byte outside [A-Za-z0-9._-] with %HH, per spec
// §4.3. This is the grid-mapdir convention, not url.QueryEscape's (which
// would encode differently), so it is hand-rolled against the spec's exact
// alphabet rather than reusing net/url's escaper.
func urlEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '.' || c == '_' || c == '-' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// Allocate runs the allocation algorithm of spec §4.3 for (prefix,
// subjectKey) and returns the leased login name, e.g. "atlas007".
func (m *Manager) Allocate(prefix, subjectKey string) (string, error) {
	if login, ok, err := m.findExistingLease(prefix, subjectKey); err != nil {
		return "", err
	} else if ok {
		return login, nil
	}
	return m.allocateNew(prefix, subjectKey)
}

// findExistingLease implements step 1: if the lease file already exists,
// locate its target by inode and touch it.
func (m *Manager) findExistingLease(prefix, subjectKey string) (string, bool, error) {
	leasePath := filepath.Join(m.Dir, subjectKey)
	leaseInfo, err := os.Stat(leasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("poolaccount: stat lease %s: %w", leasePath, err)
	}
	leaseIno := inodeOf(leaseInfo)

	for n := 1; n <= MaxPoolSize; n++ {
		login := candidateName(prefix, n)
		targetPath := filepath.Join(m.Dir, login)
		info, err := os.Stat(targetPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", false, fmt.Errorf("poolaccount: stat %s: %w", targetPath, err)
		}
		if inodeOf(info) == leaseIno {
			now := time.Now()
			_ = os.Chtimes(targetPath, now, now)
			return login, true, nil
		}
	}
	// A concurrent prune is tolerated: fall through to allocate anew.
	return "", false, nil
}

// allocateNew implements steps 2-3: scan candidates in order, create an
// unleased target if needed, and attempt to atomically link the lease.
func (m *Manager) allocateNew(prefix, subjectKey string) (string, error) {
	leasePath := filepath.Join(m.Dir, subjectKey)

	for n := 1; n <= MaxPoolSize; n++ {
		login := candidateName(prefix, n)
		targetPath := filepath.Join(m.Dir, login)

		info, err := os.Stat(targetPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return "", fmt.Errorf("poolaccount: stat %s: %w", targetPath, err)
			}
			f, createErr := os.OpenFile(targetPath, os.O_CREATE|os.O_EXCL, 0644)
			if createErr != nil {
				if os.IsExist(createErr) {
					// Another process created it first; re-stat below.
					info, err = os.Stat(targetPath)
					if err != nil {
						return "", fmt.Errorf("poolaccount: stat %s: %w", targetPath, err)
					}
				} else {
					return "", fmt.Errorf("poolaccount: create %s: %w", targetPath, createErr)
				}
			} else {
				f.Close()
				info, err = os.Stat(targetPath)
				if err != nil {
					return "", fmt.Errorf("poolaccount: stat %s: %w", targetPath, err)
				}
			}
		}

		if nlinkOf(info) != 1 {
			// Already leased by someone else; try the next candidate.
			continue
		}

		err = os.Link(targetPath, leasePath)
		if err == nil {
			// link(2) succeeds even when a concurrent caller linked the same
			// target between our stat and our link; back off if so.
			if after, statErr := os.Stat(targetPath); statErr == nil && nlinkOf(after) > 2 {
				_ = os.Remove(leasePath)
				continue
			}
			now := time.Now()
			_ = os.Chtimes(targetPath, now, now)
			return login, nil
		}
		if os.IsExist(err) {
			// Another caller raced us for the same subjectKey: restart from
			// step 1, which will discover its lease (spec §4.3 step 2b).
			if login2, ok, findErr := m.findExistingLease(prefix, subjectKey); findErr != nil {
				return "", findErr
			} else if ok {
				return login2, nil
			}
			// The racer's lease vanished between EEXIST and our re-check
			// (extremely unlikely); retry the whole allocation from step 2.
			return m.allocateNew(prefix, subjectKey)
		}
		var errno unix.Errno
		if errors.As(err, &errno) && errno == unix.ENOSPC {
			return "", fmt.Errorf("poolaccount: link %s: %w", targetPath, err)
		}
		return "", fmt.Errorf("poolaccount: link %s -> %s: %w", targetPath, leasePath, err)
	}

	return "", ErrPoolExhausted
}

func candidateName(prefix string, n int) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}

func inodeOf(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*unix.Stat_t); ok {
		return st.Ino
	}
	return 0
}

func nlinkOf(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*unix.Stat_t); ok {
		return uint64(st.Nlink)
	}
	return 1
}
