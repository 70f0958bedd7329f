package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusRequiresPasswordWhenConfigured(t *testing.T) {
	s := New("127.0.0.1:0", "secret", func() {})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	s.handleStatus(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without password, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status?password=secret", nil)
	rr = httptest.NewRecorder()
	s.handleStatus(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 with correct password, got %d", rr.Code)
	}
}

func TestShutdownRunsTasksInOrder(t *testing.T) {
	s := New("127.0.0.1:0", "", func() {})

	var order []int
	s.RegisterShutdownTask(func(ctx context.Context) error {
		order = append(order, 1)
		return nil
	})
	s.RegisterShutdownTask(func(ctx context.Context) error {
		order = append(order, 2)
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/shutdown", nil)
	rr := httptest.NewRecorder()
	s.handleShutdown(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected tasks to run in registration order, got %v", order)
	}
}
