package main

import (
	"encoding/json"

	"github.com/argus-authz/pep-pdp/internal/model"
)

// jsonCodec is a minimal in-tree stand-in for the XACML/SAML SOAP profile
// codec named in spec §6. That profile's XML serialization is an external
// collaborator's responsibility (Non-goals); this codec lets pep-serve run
// end-to-end against the in-memory model without depending on one.
type jsonCodec struct{}

func (jsonCodec) DecodeRequest(body []byte) (*model.Request, error) {
	var req model.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (jsonCodec) EncodeResponse(resp *model.Response) (string, []byte, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return "", nil, err
	}
	return "application/json", body, nil
}
