package x509voms

import (
	"crypto/x509"
	"encoding/asn1"

	"github.com/argus-authz/pep-pdp/internal/fqan"
)

// acExtensionOID is the VOMS proxy certificate extension carrying the
// embedded Attribute Certificate (the "nonCritical Proxy Certificate Info"
// companion extension used by VOMS proxies).
var acExtensionOID = []int{1, 3, 6, 1, 4, 1, 8005, 100, 100, 5}

// rawAC is the simplified on-wire shape this PIP expects inside the AC
// extension: a DER SEQUENCE of (VO name, FQAN strings). A full RFC 3281
// AttributeCertificate carries a great deal more (holder, issuer, signature,
// validity), all of which is the AC validator's concern (ACValidator);
// this PIP only needs VO + FQANs out of a successfully-validated AC.
type rawAC struct {
	VO    string
	FQANs []string
}

// ExtractACs locates embedded Attribute Certificates in c's extensions and
// decodes the VO/FQAN content. Spec §4.5: at most one AC may be present.
func ExtractACs(c *x509.Certificate) []AttributeCertificate {
	var result []AttributeCertificate
	for _, ext := range c.Extensions {
		if !ext.Id.Equal(acExtensionOID) {
			continue
		}
		var raw rawAC
		if _, err := asn1.Unmarshal(ext.Value, &raw); err != nil {
			continue
		}
		ac := AttributeCertificate{VO: raw.VO}
		for _, s := range raw.FQANs {
			f, err := fqan.Parse(s)
			if err != nil {
				continue
			}
			ac.FQANs = append(ac.FQANs, f)
		}
		result = append(result, ac)
	}
	return result
}
