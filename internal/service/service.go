// Package service wires the decision dispatcher to the public HTTP
// endpoint and owns the top-level startup/shutdown lifecycle (spec §5,
// §6 "Wire protocol"). The XACML/SAML SOAP XML serialization itself stays
// out of scope (spec §1 Non-goals); this package owns the in-memory
// request/response plumbing and the HTTP handler signature a real
// SOAP-profile codec plugs into.
package service

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sapcc/go-bits/logg"

	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/pipeline"
)

// Codec turns an HTTP request body into a Request and a Response back into
// a response body. A real deployment implements this against the
// XACML/SAML SOAP profile named in spec §6; this module ships no such
// codec (Non-goals), only the seam.
type Codec interface {
	DecodeRequest(body []byte) (*model.Request, error)
	EncodeResponse(resp *model.Response) (contentType string, body []byte, err error)
}

// Handler is the service HTTP endpoint: decode, dispatch, encode.
type Handler struct {
	Dispatcher *pipeline.Dispatcher
	Codec      Codec
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := readAll(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req, err := h.Codec.DecodeRequest(body)
	if err != nil {
		logg.Error("service: malformed request: %s", err.Error())
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	resp, err := h.Dispatcher.Submit(ctx, req)
	if err != nil {
		if err == pipeline.ErrQueueFull {
			http.Error(w, "service busy, try again later", http.StatusServiceUnavailable)
			return
		}
		logg.Error("service: dispatch failed: %s", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	contentType, respBody, err := h.Codec.EncodeResponse(resp)
	if err != nil {
		logg.Error("service: failed to encode response: %s", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(respBody) //nolint:errcheck
}

// Service owns the service HTTP channel's server (spec §5 "Resource
// ownership"). The admin channel and its shutdown tasks live in
// internal/admin.
type Service struct {
	ServiceAddr string
	Handler     http.Handler
	CORS        bool

	srv *http.Server
}

// NewRouter builds the top-level mux.Router serving the authorization
// endpoint plus Prometheus metrics exposition, matching the teacher's
// pattern of a single mainRouter with /metrics mounted alongside the API.
func NewRouter(h http.Handler, enableCORS bool) http.Handler {
	r := mux.NewRouter()
	r.Methods("POST").Path("/").Handler(h)
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	if enableCORS {
		return cors.Default().Handler(r)
	}
	return r
}

// New builds a Service bound to addr, serving router. tlsConfig is nil for
// plain HTTP (spec §6 "enableSSL" off); when non-nil, ListenAndServe
// terminates TLS using tlsConfig's already-loaded certificate (and, for
// mutual authentication, its ClientCAs/ClientAuth, spec §6
// "requireClientCertAuthentication").
func New(addr string, router http.Handler, readTimeout, writeTimeout time.Duration, tlsConfig *tls.Config) *Service {
	return &Service{
		ServiceAddr: addr,
		Handler:     router,
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			TLSConfig:    tlsConfig,
		},
	}
}

// ListenAndServe blocks serving the service HTTP channel, over TLS when the
// Service was built with a non-nil tls.Config.
func (s *Service) ListenAndServe() error {
	logg.Info("service channel listening on %s", s.srv.Addr)
	var err error
	if s.srv.TLSConfig != nil {
		// Certificates are already populated on TLSConfig, so the cert/key
		// file arguments are intentionally empty (net/http.Server.ListenAndServeTLS).
		err = s.srv.ListenAndServeTLS("", "")
	} else {
		err = s.srv.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully closes the service HTTP channel's socket (spec §5
// "the admin and service channels own their server sockets; shutdown
// closes them").
func (s *Service) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
