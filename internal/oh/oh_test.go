package oh

import (
	"errors"
	"testing"

	"github.com/argus-authz/pep-pdp/internal/model"
)

type failingHandler struct{ id string }

func (h failingHandler) HandledObligationID() string { return h.id }
func (h failingHandler) Handle(req *model.Request, result *model.Result) error {
	return errors.New("boom")
}

func TestFailingHandlerRewritesToIndeterminate(t *testing.T) {
	result := &model.Result{
		Decision:    model.Permit,
		Obligations: []model.Obligation{{ID: "x"}},
	}
	resp := &model.Response{Results: []*model.Result{result}}

	chain := NewChain([]Entry{{Handler: failingHandler{id: "x"}, Precedence: 0}})
	chain.Apply(&model.Request{}, resp)

	if result.Decision != model.Indeterminate {
		t.Errorf("expected Indeterminate, got %s", result.Decision)
	}
}

func TestUnrelatedObligationLeftAlone(t *testing.T) {
	result := &model.Result{
		Decision:    model.Deny,
		Obligations: []model.Obligation{{ID: "other"}},
	}
	resp := &model.Response{Results: []*model.Result{result}}

	chain := NewChain([]Entry{{Handler: failingHandler{id: "x"}, Precedence: 0}})
	chain.Apply(&model.Request{}, resp)

	if result.Decision != model.Deny {
		t.Errorf("decision must not change when no obligation matches: got %s", result.Decision)
	}
}
