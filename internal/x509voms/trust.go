package x509voms

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sapcc/go-bits/logg"
)

// LoadCertPool reads every regular file in dir as PEM-encoded CA
// certificates and returns the resulting pool (spec §4.5/§6 "trustInfoDir").
// A directory entry that does not parse as PEM is logged and skipped, same
// as a malformed DFPM line; the call fails only if the directory itself
// cannot be read or yields no usable certificate, matching spec §7's
// "trust-store initialization errors are fatal at startup".
func LoadCertPool(dir string) (*x509.CertPool, error) {
	if dir == "" {
		return nil, fmt.Errorf("x509voms: no trust directory configured")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("x509voms: read trust directory %s: %w", dir, err)
	}

	pool := x509.NewCertPool()
	loaded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logg.Error("x509voms: skipping trust anchor %s: %s", path, err.Error())
			continue
		}
		if pool.AppendCertsFromPEM(data) {
			loaded++
		} else {
			logg.Error("x509voms: %s contains no usable PEM certificate, skipping", path)
		}
	}
	if loaded == 0 {
		return nil, fmt.Errorf("x509voms: no CA certificates loaded from %s", dir)
	}
	return pool, nil
}
