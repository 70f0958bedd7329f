// Package opadriver embeds Open Policy Agent's Rego evaluator as one
// concrete pdp.Client implementation. It is a PDP *client*, not a policy
// authoring tool: the core still never compiles or authors XACML policy
// itself (spec §1 Non-goals) — it evaluates a fixed Rego module against the
// enriched request and maps the result back onto the XACML decision shape.
package opadriver

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
)

// Driver evaluates requests against an in-process Rego module.
type Driver struct {
	query rego.PreparedEvalQuery
}

// New compiles moduleSrc (a Rego module whose entrypoint is "data.pep.decision"
// returning a document shaped like decisionDoc below) and returns a ready
// Driver.
func New(ctx context.Context, moduleSrc string) (*Driver, error) {
	r := rego.New(
		rego.Query("data.pep.decision"),
		rego.Module("pep.rego", moduleSrc),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "compile Rego policy", err)
	}
	return &Driver{query: pq}, nil
}

// decisionDoc is the shape the Rego module's data.pep.decision document is
// expected to produce, per resource.
type decisionDoc struct {
	Decision    string          `json:"decision"`
	StatusCode  string          `json:"status_code"`
	Obligations []obligationDoc `json:"obligations"`
}

type obligationDoc struct {
	ID          string            `json:"id"`
	FulfillOn   string            `json:"fulfill_on"`
	Assignments map[string]string `json:"assignments"`
}

// Evaluate maps req onto a Rego input document, evaluates the policy, and
// produces one Result per Resource (spec §3: a Response owns one Result per
// resource decision).
func (d *Driver) Evaluate(ctx context.Context, req *model.Request) (*model.Response, error) {
	input := toInput(req)

	rs, err := d.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, pepcore.Wrap(pepcore.ErrPDPUnreachable, "Rego evaluation failed", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &model.Response{Request: req, Results: notApplicableForAll(req)}, nil
	}

	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, pepcore.Wrap(pepcore.ErrPDPUnreachable, "unexpected Rego result shape", nil)
	}

	var results []*model.Result
	for _, r := range req.Resources {
		results = append(results, decodeResult(doc, r))
	}
	return &model.Response{Request: req, Results: results}, nil
}

func notApplicableForAll(req *model.Request) []*model.Result {
	var results []*model.Result
	for _, r := range req.Resources {
		results = append(results, &model.Result{Decision: model.NotApplicable, ResourceID: resourceID(r)})
	}
	return results
}

func resourceID(r *model.Resource) string {
	const resourceIDAttr = "urn:oasis:names:tc:xacml:1.0:resource:resource-id"
	if a, ok := r.FirstByID(resourceIDAttr); ok && len(a.Values) > 0 {
		return a.Values[0]
	}
	return ""
}

func decodeResult(doc map[string]interface{}, r *model.Resource) *model.Result {
	result := &model.Result{Decision: model.Indeterminate, ResourceID: resourceID(r)}

	if d, ok := doc["decision"].(string); ok {
		result.Decision = model.Decision(d)
	}
	if sc, ok := doc["status_code"].(string); ok {
		result.StatusCode = sc
	}
	if obs, ok := doc["obligations"].([]interface{}); ok {
		for _, o := range obs {
			om, ok := o.(map[string]interface{})
			if !ok {
				continue
			}
			obligation := model.Obligation{}
			if id, ok := om["id"].(string); ok {
				obligation.ID = id
			}
			if fo, ok := om["fulfill_on"].(string); ok {
				obligation.FulfillOn = model.Decision(fo)
			}
			if assigns, ok := om["assignments"].(map[string]interface{}); ok {
				for k, v := range assigns {
					obligation.Assignments = append(obligation.Assignments, model.AttributeAssignment{
						AttributeID: k,
						Value:       fmt.Sprintf("%v", v),
					})
				}
			}
			result.Obligations = append(result.Obligations, obligation)
		}
	}
	return result
}

func toInput(req *model.Request) map[string]interface{} {
	input := map[string]interface{}{
		"action":      attrsOf(req.Action.Attributes),
		"environment": attrsOf(req.Environment.Attributes),
	}
	var subjects []interface{}
	for _, s := range req.Subjects {
		subjects = append(subjects, attrsOf(s.Attributes))
	}
	input["subjects"] = subjects
	var resources []interface{}
	for _, r := range req.Resources {
		resources = append(resources, attrsOf(r.Attributes))
	}
	input["resources"] = resources
	return input
}

func attrsOf(attrs []model.Attribute) map[string]interface{} {
	out := map[string]interface{}{}
	for _, a := range attrs {
		out[a.ID] = a.Values
	}
	return out
}
