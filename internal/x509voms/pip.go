// Package x509voms implements the X.509/VOMS identity-extraction PIP of
// spec §4.5: parse a PEM certificate chain carried on the request Subject,
// validate PKIX (and optionally AC) trust, and extract subject-DN,
// issuer-DN, serial number, VO name and FQANs.
package x509voms

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/sapcc/go-bits/logg"

	"github.com/argus-authz/pep-pdp/internal/fqan"
	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
)

// CertChainAttributeID is the attribute id carrying the PEM chain on the
// request Subject (spec §4.5).
const CertChainAttributeID = "http://authz-interop.org/xacml/subject/cert-chain"

// Attribute ids produced by this PIP (spec GLOSSARY).
const (
	attrSubjectDN   = "urn:oasis:names:tc:xacml:1.0:subject:subject-id"
	attrIssuerDN    = "http://authz-interop.org/xacml/subject/subject-x509-issuer"
	attrSerial      = "http://authz-interop.org/xacml/subject/certificate-serial-number"
	attrVO          = "http://authz-interop.org/xacml/subject/vo"
	attrPrimaryFQAN = "http://authz-interop.org/xacml/subject/voms-primary-fqan"
	attrFQAN        = "http://authz-interop.org/xacml/subject/voms-fqan"

	dataTypeString = "http://www.w3.org/2001/XMLSchema#string"
)

// proxyCertInfoOID is the RFC 3820 ProxyCertInfo extension OID used to
// detect a proxy certificate in the chain.
var proxyCertInfoOID = []int{1, 3, 6, 1, 5, 5, 7, 1, 14}

// Config configures one instance of the PIP.
type Config struct {
	RequireProxy bool
	ValidatePKIX bool
	TrustRoots   *x509.CertPool
	RequireCRLs  bool
	CRLChecker   CRLChecker // optional; nil disables CRL checking even if RequireCRLs is set

	EnableAC    bool
	ACValidator ACValidator
}

// CRLChecker is consulted during PKIX validation when CRLs are configured as
// required (spec §4.5 step 3). A production deployment wires this to a
// revocation-list reader fed by an external updater (Non-goals, spec §1).
type CRLChecker interface {
	Check(cert *x509.Certificate) error
}

// ACValidator validates an embedded VOMS Attribute Certificate against the
// configured AC trust store (the VOMS LSC directory, spec §4.5 step 5).
type ACValidator interface {
	Validate(ac AttributeCertificate, leaf *x509.Certificate) error
}

// AttributeCertificate is the minimal VOMS AC content this PIP extracts: a
// VO name and an ordered list of FQANs (the first being primary).
type AttributeCertificate struct {
	VO    string
	FQANs []fqan.FQAN
}

// PIP applies the X.509/VOMS identity extraction to a single Subject.
type PIP struct {
	Config
}

// New returns a PIP with the given configuration.
func New(cfg Config) *PIP {
	return &PIP{Config: cfg}
}

// Apply enriches subject in place. It is idempotent: re-applying it to a
// Subject that already carries the attributes it would produce is a no-op
// (spec §4.5).
func (p *PIP) Apply(subject *model.Subject) error {
	if _, ok := subject.FirstByID(attrSubjectDN); ok {
		return nil
	}

	chainAttr, ok := subject.FirstByID(CertChainAttributeID)
	if !ok || len(chainAttr.Values) != 1 {
		return nil
	}

	chain, err := ParsePEMChain(chainAttr.Values[0])
	if err != nil {
		logg.Info("x509voms: skipping subject: %s", err.Error())
		return nil
	}

	for _, c := range chain {
		if c.Version != 3 {
			logg.Info("x509voms: skipping subject: certificate %s is not version 3", c.Subject)
			return nil
		}
	}

	leaf, err := SelectEndEntity(chain)
	if err != nil {
		logg.Info("x509voms: skipping subject: %s", err.Error())
		return nil
	}

	if p.RequireProxy {
		if !ChainHasProxy(chain) {
			// Not an error: the subject is simply left unenriched and the
			// PDP downstream will see an unenriched Subject (spec §8
			// scenario 6).
			return nil
		}
	}

	if p.ValidatePKIX {
		if err := p.validatePKIX(chain, leaf); err != nil {
			return pepcore.Wrap(pepcore.ErrPIPFailed, "PKIX validation failed", err)
		}
	}

	subject.Add(model.Attribute{ID: attrSubjectDN, DataType: dataTypeString, Values: []string{SubjectDN(leaf)}})
	subject.Add(model.Attribute{ID: attrIssuerDN, DataType: dataTypeString, Values: []string{IssuerDN(leaf)}})
	subject.Add(model.Attribute{ID: attrSerial, DataType: dataTypeString, Values: []string{leaf.SerialNumber.String()}})

	if p.EnableAC {
		if err := p.applyAC(subject, chain, leaf); err != nil {
			return err
		}
	}

	return nil
}

func (p *PIP) validatePKIX(chain []*x509.Certificate, leaf *x509.Certificate) error {
	if p.TrustRoots == nil {
		return pepcore.Wrap(pepcore.ErrTrustStoreUnavailable, "no CA trust store configured", nil)
	}
	intermediates := x509.NewCertPool()
	for _, c := range chain {
		if c != leaf {
			intermediates.AddCert(c)
		}
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         p.TrustRoots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return err
	}
	if p.RequireCRLs && p.CRLChecker != nil {
		for _, c := range chain {
			if err := p.CRLChecker.Check(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *PIP) applyAC(subject *model.Subject, chain []*x509.Certificate, leaf *x509.Certificate) error {
	acs := ExtractACs(leaf)
	if len(acs) == 0 {
		return nil
	}
	if len(acs) > 1 {
		return pepcore.Wrap(pepcore.ErrPIPFailed, "more than one AC present in end-entity certificate", nil)
	}
	ac := acs[0]

	if p.ACValidator != nil {
		if err := p.ACValidator.Validate(ac, leaf); err != nil {
			return pepcore.Wrap(pepcore.ErrPIPFailed, "AC validation failed", err)
		}
	}

	if ac.VO != "" {
		subject.Add(model.Attribute{ID: attrVO, DataType: dataTypeString, Values: []string{ac.VO}})
	}
	if len(ac.FQANs) > 0 {
		subject.Add(model.Attribute{ID: attrPrimaryFQAN, DataType: dataTypeString, Values: []string{ac.FQANs[0].String()}})
		var all []string
		for _, f := range ac.FQANs {
			all = append(all, f.String())
		}
		subject.Add(model.Attribute{ID: attrFQAN, DataType: dataTypeString, Values: all})
	}
	return nil
}

// ParsePEMChain parses a PEM-encoded certificate chain, end-entity first or
// last (spec §4.5).
func ParsePEMChain(pemData string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := []byte(pemData)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("x509voms: parse certificate: %w", err)
		}
		certs = append(certs, c)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("x509voms: no certificates found in PEM input")
	}
	return certs, nil
}

// SelectEndEntity picks the first non-CA, non-proxy certificate from chain.
// If there is none, the first proxy certificate is used, and failing that
// the first certificate (mirrors typical EEC-first PEM ordering).
func SelectEndEntity(chain []*x509.Certificate) (*x509.Certificate, error) {
	for _, c := range chain {
		if !c.IsCA && !IsProxy(c) {
			return c, nil
		}
	}
	// Proxy-only or single-cert chains: the first certificate is the
	// delegated identity even if it is itself a proxy.
	for _, c := range chain {
		if IsProxy(c) {
			return c, nil
		}
	}
	return chain[0], nil
}

// IsProxy reports whether c carries the RFC 3820 ProxyCertInfo extension.
func IsProxy(c *x509.Certificate) bool {
	for _, ext := range c.Extensions {
		if ext.Id.Equal(proxyCertInfoOID) {
			return true
		}
	}
	return false
}

// ChainHasProxy reports whether any certificate in chain is an RFC 3820
// proxy (spec §4.5 step 2).
func ChainHasProxy(chain []*x509.Certificate) bool {
	for _, c := range chain {
		if IsProxy(c) {
			return true
		}
	}
	return false
}

// SubjectDN formats c's subject in RFC-2253 form.
func SubjectDN(c *x509.Certificate) string {
	return nameToRFC2253(c.Subject)
}

// IssuerDN formats c's issuer in RFC-2253 form.
func IssuerDN(c *x509.Certificate) string {
	return nameToRFC2253(c.Issuer)
}

// nameToRFC2253 renders a pkix.Name the way grid DNs are conventionally
// written: a sequence of slash-separated RDNs, most significant first,
// e.g. "/C=CH/O=CERN/CN=Alice". crypto/x509/pkix's own String() method
// renders comma-separated, most-specific-first (LDAP order), so this is
// deliberately inverted into the X.500/RFC-2253 grid convention spec §4.5
// requires.
func nameToRFC2253(name pkix.Name) string {
	var parts []string
	for _, c := range name.Country {
		parts = append(parts, "C="+c)
	}
	for _, o := range name.Organization {
		parts = append(parts, "O="+o)
	}
	for _, ou := range name.OrganizationalUnit {
		parts = append(parts, "OU="+ou)
	}
	if name.CommonName != "" {
		parts = append(parts, "CN="+name.CommonName)
	}
	return "/" + strings.Join(parts, "/")
}
