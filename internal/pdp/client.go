// Package pdp defines the pluggable client interface the core dispatches
// enriched requests to (spec §1 Non-goals: the core never evaluates XACML
// policy itself, it delegates to an external PDP). Two concrete drivers are
// provided: httpdriver (a remote PDP over HTTP) and opadriver (an embedded
// Rego evaluator, grounded on the teacher's open-policy-agent/opa
// dependency).
package pdp

import (
	"context"

	"github.com/argus-authz/pep-pdp/internal/model"
)

// Client evaluates a frozen Request and returns a Response.
type Client interface {
	Evaluate(ctx context.Context, req *model.Request) (*model.Response, error)
}
