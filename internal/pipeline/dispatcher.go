// Package pipeline wires the PIP chain, the PDP client and the OH chain
// into the decision dispatcher of spec §4.7/§5, with bounded-queue admission
// control ahead of a worker pool.
package pipeline

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
	"github.com/sapcc/go-bits/logg"

	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/oh"
	"github.com/argus-authz/pep-pdp/internal/pdp"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
	"github.com/argus-authz/pep-pdp/internal/pip"
)

// ErrQueueFull is returned by Dispatcher.Submit when admission is refused
// because the bounded queue is already full (spec §5 "Admission beyond
// queue+pool fails fast with a transport-level error").
var ErrQueueFull = errors.New("pipeline: request queue full")

// Dispatcher applies the configured PIP chain, dispatches to the PDP, and
// applies the configured OH chain, per spec §4.7.
type Dispatcher struct {
	PIPs    []pip.PIP
	PDP     pdp.Client
	OHChain *oh.Chain
	Metrics *model.ServiceMetrics

	sem chan struct{} // bounded worker pool + queue admission
}

// NewDispatcher returns a Dispatcher admitting at most queueSize requests
// beyond poolSize concurrently in flight (spec §5, §6 requestQueueSize).
func NewDispatcher(pips []pip.PIP, client pdp.Client, ohChain *oh.Chain, metrics *model.ServiceMetrics, poolSize, queueSize int) *Dispatcher {
	return &Dispatcher{
		PIPs:    pips,
		PDP:     client,
		OHChain: ohChain,
		Metrics: metrics,
		sem:     make(chan struct{}, poolSize+queueSize),
	}
}

// Submit admits req for processing or fails fast with ErrQueueFull when the
// pool+queue capacity is exhausted (spec §5).
func (d *Dispatcher) Submit(ctx context.Context, req *model.Request) (*model.Response, error) {
	select {
	case d.sem <- struct{}{}:
	default:
		return nil, ErrQueueFull
	}
	defer func() { <-d.sem }()

	return d.process(ctx, req, correlationID())
}

// correlationID generates a per-request id stamped into log lines and
// Result diagnostics, so a single request's trail can be grepped out of
// the logs across PIP/PDP/OH stages.
func correlationID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}

// process runs PIPs in configured order, dispatches to the PDP, then runs
// OHs in precedence order (spec §4.7, §5 "PIPs run sequentially...OHs
// likewise run sequentially").
func (d *Dispatcher) process(ctx context.Context, req *model.Request, corrID string) (*model.Response, error) {
	for _, p := range d.PIPs {
		if err := p.Apply(req); err != nil {
			if errors.Is(err, pepcore.ErrPIPFailed) || errors.Is(err, pepcore.ErrTrustStoreUnavailable) {
				logg.Error("pipeline[%s]: PIP failed: %s", corrID, err.Error())
				resp := indeterminateResponse(req, err)
				d.recordMetrics(resp)
				return resp, nil
			}
			return nil, err
		}
	}

	resp, err := d.PDP.Evaluate(ctx, req)
	if err != nil {
		logg.Error("pipeline[%s]: PDP dispatch failed: %s", corrID, err.Error())
		resp = indeterminateResponse(req, err)
		d.recordMetrics(resp)
		return resp, nil
	}

	if d.OHChain != nil {
		d.OHChain.Apply(req, resp)
	}

	for _, r := range resp.Results {
		r.StatusMsg = appendCorrelationID(r.StatusMsg, corrID)
	}

	d.recordMetrics(resp)
	return resp, nil
}

// appendCorrelationID stamps corrID onto an existing status message
// without clobbering a PIP/PDP/OH-supplied diagnostic.
func appendCorrelationID(statusMsg, corrID string) string {
	if corrID == "" {
		return statusMsg
	}
	if statusMsg == "" {
		return "correlation-id=" + corrID
	}
	return statusMsg + " (correlation-id=" + corrID + ")"
}

func (d *Dispatcher) recordMetrics(resp *model.Response) {
	if d.Metrics == nil {
		return
	}
	for _, r := range resp.Results {
		d.Metrics.RecordDecision(r.Decision, r.Decision == model.Indeterminate)
	}
}

func indeterminateResponse(req *model.Request, cause error) *model.Response {
	var results []*model.Result
	for _, r := range req.Resources {
		results = append(results, &model.Result{
			Decision:   model.Indeterminate,
			StatusMsg:  cause.Error(),
			ResourceID: firstResourceID(r),
		})
	}
	if len(results) == 0 {
		results = []*model.Result{{Decision: model.Indeterminate, StatusMsg: cause.Error()}}
	}
	return &model.Response{Request: req, Results: results}
}

func firstResourceID(r *model.Resource) string {
	const resourceIDAttr = "urn:oasis:names:tc:xacml:1.0:resource:resource-id"
	if a, ok := r.FirstByID(resourceIDAttr); ok && len(a.Values) > 0 {
		return a.Values[0]
	}
	return ""
}
