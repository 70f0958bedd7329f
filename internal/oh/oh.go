// Package oh implements the obligation-handler chain of spec §4.6: each OH
// is invoked in precedence order against a Result whose obligation list
// contains an obligation matching the OH's handled id. An uncaught handler
// error becomes ObligationProcessingFailed and rewrites the decision to
// Indeterminate.
package oh

import (
	"sort"

	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
)

// Handler mutates a Result in place in response to one of its obligations.
type Handler interface {
	// HandledObligationID is the obligation id this handler reacts to.
	HandledObligationID() string
	// Handle mutates result in place (adding, removing or transforming
	// obligations).
	Handle(req *model.Request, result *model.Result) error
}

// Entry pairs a Handler with its configured precedence (lower runs first).
type Entry struct {
	Handler    Handler
	Precedence int
}

// entry is the internal, sorted representation.
type entry struct {
	precedence int
	handler    Handler
}

// Chain runs a precedence-ordered set of obligation handlers against every
// Result of a Response (spec §4.6, §5 — sequential per Result).
type Chain struct {
	entries []entry
}

// NewChain builds a Chain from handlers, sorted by ascending precedence.
// Ties preserve the order handlers were given in (i.e. configuration-file
// order), via a stable sort over the input slice.
func NewChain(handlers []Entry) *Chain {
	c := &Chain{}
	for _, h := range handlers {
		c.entries = append(c.entries, entry{precedence: h.Precedence, handler: h.Handler})
	}
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].precedence < c.entries[j].precedence
	})
	return c
}

// Apply runs the chain against every Result in resp.
func (c *Chain) Apply(req *model.Request, resp *model.Response) {
	for _, result := range resp.Results {
		c.applyToResult(req, result)
	}
}

func (c *Chain) applyToResult(req *model.Request, result *model.Result) {
	for _, e := range c.entries {
		if _, ok := result.HasObligation(e.handler.HandledObligationID()); !ok {
			continue
		}
		if err := e.handler.Handle(req, result); err != nil {
			wrapped := pepcore.Wrap(pepcore.ErrObligationProcessingFailed, "obligation handler failed", err)
			result.Decision = model.Indeterminate
			result.StatusMsg = wrapped.Error()
			return
		}
	}
}
