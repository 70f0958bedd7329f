// Package dfpm implements the ordered DN/FQAN-to-POSIX mapping table of spec
// §3/§4.2: a first-match lookup table refreshed periodically from a text
// file, with an atomically-swapped in-memory snapshot so readers never see
// a partially-updated table (spec §4.2, §5).
package dfpm

import (
	"bufio"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mohae/deepcopy"
	"github.com/sapcc/go-bits/logg"

	"github.com/argus-authz/pep-pdp/internal/fqan"
)

// PatternKind distinguishes a DN pattern from an FQAN pattern.
type PatternKind int

const (
	KindDN PatternKind = iota
	KindFQAN
)

// Entry is one ordered row of the table: (pattern, targets).
type Entry struct {
	Kind    PatternKind
	Raw     string // the pattern as written in the file
	FQAN    fqan.FQAN
	Targets []string
}

// Store is an ordered first-match table, safe for concurrent lookup while a
// background refresh swaps in a new snapshot (spec §4.2, I: the swap must be
// safe w.r.t. concurrent lookups).
type Store struct {
	path    string
	snap    atomic.Value // holds []Entry
	modTime time.Time
}

// NewStore loads path for the first time. A load failure here is fatal,
// matching the teacher's startup-is-fatal convention (spec §7
// ConfigurationError).
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	entries, modTime, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	s.snap.Store(entries)
	s.modTime = modTime
	return s, nil
}

// RefreshIfChanged re-reads the file if its mtime has advanced. On success
// it atomically replaces the in-memory table; on failure it logs an error
// and retains the previous table (spec §4.2).
func (s *Store) RefreshIfChanged() {
	info, err := os.Stat(s.path)
	if err != nil {
		logg.Error("dfpm: stat %s failed: %s", s.path, err.Error())
		return
	}
	if !info.ModTime().After(s.modTime) {
		return
	}
	entries, modTime, err := loadFile(s.path)
	if err != nil {
		logg.Error("dfpm: reload of %s failed, keeping previous table: %s", s.path, err.Error())
		return
	}
	s.snap.Store(entries)
	s.modTime = modTime
}

// Lookup scans the current snapshot in order and returns the targets of the
// first entry whose pattern type matches key's type and whose pattern
// matches the key, plus the matched pattern's raw text.
//
// key is either a DN string (matched via simple X.500 RFC-2253 equality) or
// an fqan.FQAN (matched via fqan.Matches).
func (s *Store) Lookup(key interface{}) ([]string, string, bool) {
	entries := s.snap.Load().([]Entry)
	// deepcopy keeps lookups observably independent of whatever the caller
	// does with the returned slice, matching the "readers observe an
	// immutable snapshot" guarantee of spec §5 without holding a lock.
	switch k := key.(type) {
	case string:
		for _, e := range entries {
			if e.Kind == KindDN && dnEqual(e.Raw, k) {
				return deepcopy.Copy(e.Targets).([]string), e.Raw, true
			}
		}
	case fqan.FQAN:
		for _, e := range entries {
			if e.Kind != KindFQAN {
				continue
			}
			ok, err := fqan.Matches(e.FQAN, k)
			if err != nil {
				logg.Error("dfpm: pattern %q: %s", e.Raw, err.Error())
				continue
			}
			if ok {
				return deepcopy.Copy(e.Targets).([]string), e.Raw, true
			}
		}
	}
	return nil, "", false
}

// dnEqual compares two RFC-2253 DNs. Full X.500 attribute-type-alias and
// whitespace normalization is out of scope for the core; case-sensitive
// literal comparison after trimming matches how DNs arrive already
// RFC-2253-formatted out of the X.509 PIP (spec §4.5).
func dnEqual(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

func isDNPattern(pattern string) bool {
	if !strings.HasPrefix(pattern, "/") {
		return false
	}
	rest := pattern[1:]
	for _, prefix := range []string{"C=", "CN=", "O=", "OU="} {
		if strings.HasPrefix(rest, prefix) {
			return true
		}
	}
	return false
}

func loadFile(path string) ([]Entry, time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			logg.Error("dfpm: %s:%d: %s", path, lineNo, err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, time.Time{}, err
	}
	return entries, info.ModTime(), nil
}

// parseLine parses one DFPM file line: "<pattern>" target[, target...].
func parseLine(line string) (Entry, error) {
	if !strings.HasPrefix(line, `"`) {
		return Entry{}, errMalformedLine("missing opening quote")
	}
	rest := line[1:]
	idx := strings.IndexByte(rest, '"')
	if idx < 0 {
		return Entry{}, errMalformedLine("missing closing quote")
	}
	pattern := rest[:idx]
	targetsRaw := rest[idx+1:]

	targets := splitTargets(targetsRaw)
	if len(targets) == 0 {
		return Entry{}, errMalformedLine("no targets")
	}

	if isDNPattern(pattern) {
		return Entry{Kind: KindDN, Raw: pattern, Targets: targets}, nil
	}

	f, err := fqan.Parse(pattern)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Kind: KindFQAN, Raw: pattern, FQAN: f, Targets: targets}, nil
}

func splitTargets(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

type lineError string

func (e lineError) Error() string { return string(e) }

func errMalformedLine(msg string) error { return lineError(msg) }
