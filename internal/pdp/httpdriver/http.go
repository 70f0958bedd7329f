// Package httpdriver dispatches requests to a remote PDP over HTTP. The
// wire format exchanged with the remote PDP is out of scope for the core
// (spec §1/§6: XML/SAML serialization of the XACML/SAML SOAP profile is an
// external collaborator's responsibility); this driver owns only the
// transport-level round trip and error classification.
package httpdriver

import (
	"context"
	"net/http"
	"time"

	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
)

// Codec serializes a Request to an HTTP request body and parses an HTTP
// response body back into a Response. The actual XACML/SAML XML codec lives
// outside this module's scope; Codec is the seam a real deployment plugs it
// into.
type Codec interface {
	Encode(req *model.Request) (contentType string, body []byte, err error)
	Decode(body []byte) (*model.Response, error)
}

// Driver is a pdp.Client backed by an HTTP endpoint.
type Driver struct {
	Endpoint string
	HTTP     *http.Client
	Codec    Codec
}

// New returns a Driver with a sane default timeout, matching the teacher's
// convention of never leaving an http.Client with an unbounded deadline.
func New(endpoint string, codec Codec) *Driver {
	return &Driver{
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Codec:    codec,
	}
}

// Evaluate posts the encoded request to Endpoint and decodes the response.
func (d *Driver) Evaluate(ctx context.Context, req *model.Request) (*model.Response, error) {
	contentType, body, err := d.Codec.Encode(req)
	if err != nil {
		return nil, pepcore.Wrap(pepcore.ErrMalformedInput, "encode PDP request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bodyReader(body))
	if err != nil {
		return nil, pepcore.Wrap(pepcore.ErrPDPUnreachable, "build PDP request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := d.HTTP.Do(httpReq)
	if err != nil {
		return nil, pepcore.Wrap(pepcore.ErrPDPUnreachable, "PDP request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := readAll(resp.Body)
	if err != nil {
		return nil, pepcore.Wrap(pepcore.ErrPDPUnreachable, "read PDP response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, pepcore.Wrap(pepcore.ErrPDPUnreachable, "PDP returned server error", nil)
	}

	decoded, err := d.Codec.Decode(respBody)
	if err != nil {
		return nil, pepcore.Wrap(pepcore.ErrMalformedInput, "decode PDP response", err)
	}
	return decoded, nil
}
