// Package posixdb parses /etc/passwd and /etc/group lazily, caching by
// mtime to avoid per-request getpwnam-style contention (spec §9 "PosixUtil").
package posixdb

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PasswdEntry is one line of /etc/passwd.
type PasswdEntry struct {
	Name string
	UID  int
	GID  int
}

// GroupEntry is one line of /etc/group.
type GroupEntry struct {
	Name string
	GID  int
}

// DB is a cached view of /etc/passwd and /etc/group.
type DB struct {
	PasswdPath string
	GroupPath  string

	mu          sync.Mutex
	passwdByName map[string]PasswdEntry
	passwdByUID  map[int]PasswdEntry
	passwdMTime  time.Time
	groupByName map[string]GroupEntry
	groupByGID  map[int]GroupEntry
	groupMTime  time.Time
}

// New returns a DB reading from the standard system files. Tests should use
// NewWithPaths to point at fixtures instead.
func New() *DB {
	return NewWithPaths("/etc/passwd", "/etc/group")
}

// NewWithPaths returns a DB reading from the given files.
func NewWithPaths(passwdPath, groupPath string) *DB {
	return &DB{PasswdPath: passwdPath, GroupPath: groupPath}
}

// LookupUser returns the passwd entry for name, reloading the cache first if
// the file's mtime has advanced.
func (db *DB) LookupUser(name string) (PasswdEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.reloadPasswdLocked(); err != nil {
		return PasswdEntry{}, err
	}
	e, ok := db.passwdByName[name]
	if !ok {
		return PasswdEntry{}, fmt.Errorf("posixdb: no such user %q", name)
	}
	return e, nil
}

// LookupUserByUID returns the passwd entry for uid.
func (db *DB) LookupUserByUID(uid int) (PasswdEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.reloadPasswdLocked(); err != nil {
		return PasswdEntry{}, err
	}
	e, ok := db.passwdByUID[uid]
	if !ok {
		return PasswdEntry{}, fmt.Errorf("posixdb: no such uid %d", uid)
	}
	return e, nil
}

// LookupGroup returns the group entry for name.
func (db *DB) LookupGroup(name string) (GroupEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.reloadGroupLocked(); err != nil {
		return GroupEntry{}, err
	}
	e, ok := db.groupByName[name]
	if !ok {
		return GroupEntry{}, fmt.Errorf("posixdb: no such group %q", name)
	}
	return e, nil
}

// LookupGroupByGID returns the group entry for gid.
func (db *DB) LookupGroupByGID(gid int) (GroupEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.reloadGroupLocked(); err != nil {
		return GroupEntry{}, err
	}
	e, ok := db.groupByGID[gid]
	if !ok {
		return GroupEntry{}, fmt.Errorf("posixdb: no such gid %d", gid)
	}
	return e, nil
}

func (db *DB) reloadPasswdLocked() error {
	info, err := os.Stat(db.PasswdPath)
	if err != nil {
		return err
	}
	if db.passwdByName != nil && !info.ModTime().After(db.passwdMTime) {
		return nil
	}
	byName := map[string]PasswdEntry{}
	byUID := map[int]PasswdEntry{}
	err = scanLines(db.PasswdPath, func(fields []string) error {
		if len(fields) < 4 {
			return nil
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil
		}
		e := PasswdEntry{Name: fields[0], UID: uid, GID: gid}
		byName[e.Name] = e
		byUID[e.UID] = e
		return nil
	})
	if err != nil {
		return err
	}
	db.passwdByName = byName
	db.passwdByUID = byUID
	db.passwdMTime = info.ModTime()
	return nil
}

func (db *DB) reloadGroupLocked() error {
	info, err := os.Stat(db.GroupPath)
	if err != nil {
		return err
	}
	if db.groupByName != nil && !info.ModTime().After(db.groupMTime) {
		return nil
	}
	byName := map[string]GroupEntry{}
	byGID := map[int]GroupEntry{}
	err = scanLines(db.GroupPath, func(fields []string) error {
		if len(fields) < 3 {
			return nil
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil
		}
		e := GroupEntry{Name: fields[0], GID: gid}
		byName[e.Name] = e
		byGID[e.GID] = e
		return nil
	})
	if err != nil {
		return err
	}
	db.groupByName = byName
	db.groupByGID = byGID
	db.groupMTime = info.ModTime()
	return nil
}

func scanLines(path string, fn func(fields []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if err := fn(fields); err != nil {
			return err
		}
	}
	return scanner.Err()
}
