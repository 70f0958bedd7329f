package x509voms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/argus-authz/pep-pdp/internal/model"
)

func selfSignedPEM(t *testing.T, cn string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(12345),
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"CERN"},
			Country:      []string{"CH"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestApplyExtractsDNWithoutPKIX(t *testing.T) {
	chainPEM := selfSignedPEM(t, "Alice")

	subject := &model.Subject{}
	subject.Add(model.Attribute{ID: CertChainAttributeID, DataType: dataTypeString, Values: []string{chainPEM}})

	pip := New(Config{})
	if err := pip.Apply(subject); err != nil {
		t.Fatal(err)
	}

	dn, ok := subject.FirstByID(attrSubjectDN)
	if !ok || len(dn.Values) != 1 {
		t.Fatal("expected subject-DN attribute")
	}
	if dn.Values[0] != "/C=CH/O=CERN/CN=Alice" {
		t.Errorf("unexpected DN: %s", dn.Values[0])
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	chainPEM := selfSignedPEM(t, "Bob")
	subject := &model.Subject{}
	subject.Add(model.Attribute{ID: CertChainAttributeID, DataType: dataTypeString, Values: []string{chainPEM}})

	pip := New(Config{})
	if err := pip.Apply(subject); err != nil {
		t.Fatal(err)
	}
	before := len(subject.Attributes)
	if err := pip.Apply(subject); err != nil {
		t.Fatal(err)
	}
	if len(subject.Attributes) != before {
		t.Errorf("expected idempotent re-application, attribute count changed from %d to %d", before, len(subject.Attributes))
	}
}

func TestApplyRequireProxySkipsUnproxiedChain(t *testing.T) {
	chainPEM := selfSignedPEM(t, "Carol")
	subject := &model.Subject{}
	subject.Add(model.Attribute{ID: CertChainAttributeID, DataType: dataTypeString, Values: []string{chainPEM}})

	pip := New(Config{RequireProxy: true})
	if err := pip.Apply(subject); err != nil {
		t.Fatal(err)
	}
	if len(subject.Attributes) != 1 {
		t.Errorf("expected subject left unenriched (only the original cert-chain attribute), got %d attributes", len(subject.Attributes))
	}
}
