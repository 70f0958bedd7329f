package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/pipeline"
)

type permitAllPDP struct{}

func (permitAllPDP) Evaluate(ctx context.Context, req *model.Request) (*model.Response, error) {
	var results []*model.Result
	for range req.Resources {
		results = append(results, &model.Result{Decision: model.Permit})
	}
	return &model.Response{Request: req, Results: results}, nil
}

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
	return "application/json", body, err
}

func TestHandlerPermitsRequestEndToEnd(t *testing.T) {
	dispatcher := pipeline.NewDispatcher(nil, permitAllPDP{}, nil, nil, 4, 4)
	h := &Handler{Dispatcher: dispatcher, Codec: jsonCodec{}}

	body := `{"Resources":[{}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp model.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %s", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Decision != model.Permit {
		t.Errorf("expected one Permit result, got %+v", resp.Results)
	}
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	dispatcher := pipeline.NewDispatcher(nil, permitAllPDP{}, nil, nil, 4, 4)
	h := &Handler{Dispatcher: dispatcher, Codec: jsonCodec{}}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}
