// Command pep-serve is the main authorization service binary: it loads the
// INI configuration (spec §6), wires the PIP chain, the PDP client and the
// OH chain into the decision dispatcher (spec §4.7), and serves the public
// HTTP endpoint alongside the admin channel.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/logg"

	"github.com/argus-authz/pep-pdp/internal/admin"
	"github.com/argus-authz/pep-pdp/internal/config"
	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/oh"
	"github.com/argus-authz/pep-pdp/internal/pdp/opadriver"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
	"github.com/argus-authz/pep-pdp/internal/pip"
	"github.com/argus-authz/pep-pdp/internal/pipeline"
	"github.com/argus-authz/pep-pdp/internal/service"
	"github.com/argus-authz/pep-pdp/internal/x509voms"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <config-file>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.NewConfiguration(os.Args[1])
	if err != nil {
		logg.Fatal("failed to load configuration: " + err.Error())
	}

	pips, err := buildPIPs(cfg.PIPs, cfg.Security)
	if err != nil {
		logg.Fatal(err.Error())
	}
	ohChain, err := buildOHChain(cfg.OHs)
	if err != nil {
		logg.Fatal(err.Error())
	}

	pdpClient, err := opadriver.New(context.Background(), defaultPermitAllPolicy)
	if err != nil {
		logg.Fatal("failed to start embedded PDP: " + err.Error())
	}

	metrics := model.NewServiceMetrics(prometheus.DefaultRegisterer)
	metrics.StartTime.Set(float64(time.Now().Unix()))

	dispatcher := pipeline.NewDispatcher(pips, pdpClient, ohChain, metrics, cfg.Service.MaximumRequests, cfg.Service.RequestQueueSize)

	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		logg.Fatal(err.Error())
	}

	svcHandler := &service.Handler{Dispatcher: dispatcher, Codec: jsonCodec{}}
	router := service.NewRouter(svcHandler, true)
	svc := service.New(
		fmt.Sprintf("%s:%d", cfg.Service.Hostname, cfg.Service.Port),
		router,
		time.Duration(cfg.Service.ConnectionTimeout)*time.Second,
		time.Duration(cfg.Service.ConnectionTimeout)*time.Second,
		tlsConfig,
	)

	adminSrv := admin.New(
		fmt.Sprintf("%s:%d", cfg.Service.AdminHost, cfg.Service.AdminPort),
		cfg.Service.AdminPassword,
		func() { os.Exit(0) },
	)
	adminSrv.RegisterShutdownTask(func(ctx context.Context) error {
		return svc.Shutdown(ctx)
	})

	go func() {
		if err := adminSrv.ListenAndServe(); err != nil {
			logg.Error("admin channel stopped: %s", err.Error())
		}
	}()

	if err := svc.ListenAndServe(); err != nil {
		logg.Fatal(err.Error())
	}
}

// buildPIPs constructs the configured PIP chain. The x509voms PIP needs the
// global SECURITY section's trust-store settings (spec §6
// SecurityConfig.TrustInfoDir/RequireCRLs), which are not keys of its own
// INI section, so they are merged into its params here rather than plumbed
// through pip.Build's generic signature.
func buildPIPs(sections []config.HandlerSection, security config.SecurityConfig) ([]pip.PIP, error) {
	var pips []pip.PIP
	for _, sec := range sections {
		params := sec.Params
		if sec.ParserClass == "x509voms" {
			params = withSecurityParams(params, security)
		}
		p, err := pip.Build(sec.ParserClass, params)
		if err != nil {
			return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "build PIP "+sec.Name, err)
		}
		pips = append(pips, p)
	}
	return pips, nil
}

// withSecurityParams returns a copy of params with trustInfoDir/requireCRLs
// filled in from the SECURITY section, unless the PIP's own section already
// set them explicitly.
func withSecurityParams(params map[string]string, security config.SecurityConfig) map[string]string {
	merged := make(map[string]string, len(params)+2)
	for k, v := range params {
		merged[k] = v
	}
	if _, ok := merged["trustInfoDir"]; !ok {
		merged["trustInfoDir"] = security.TrustInfoDir
	}
	if _, ok := merged["requireCRLs"]; !ok {
		merged["requireCRLs"] = fmt.Sprintf("%t", security.RequireCRLs)
	}
	return merged
}

// buildTLSConfig builds the service channel's tls.Config from SECURITY
// (spec §6 "enableSSL"/"requireClientCertAuthentication"), or returns nil
// when SSL is disabled. Certificate/trust-store load failures are
// ConfigurationErrors, fatal at startup (spec §7).
func buildTLSConfig(cfg config.Configuration) (*tls.Config, error) {
	if !cfg.Service.EnableSSL {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.Security.ServiceCertificate, cfg.Security.ServicePrivateKey)
	if err != nil {
		return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "load service certificate/key", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.Service.RequireClientCertAuthentication {
		clientCAs, err := x509voms.LoadCertPool(cfg.Security.TrustInfoDir)
		if err != nil {
			return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "load client-cert trust store", err)
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = clientCAs
	}
	return tlsConfig, nil
}

func buildOHChain(sections []config.HandlerSection) (*oh.Chain, error) {
	var handlers []oh.Entry
	for _, sec := range sections {
		h, err := oh.Build(sec.ParserClass, sec.Params)
		if err != nil {
			return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "build OH "+sec.Name, err)
		}
		handlers = append(handlers, oh.Entry{Handler: h, Precedence: sec.Precedence})
	}
	return oh.NewChain(handlers), nil
}

// defaultPermitAllPolicy is the embedded policy pep-serve evaluates for every
// request: it permits everything. pep-serve has no setting for an external
// PDP endpoint or for a different policy module. The decision document
// shape (decision/status_code/obligations) is what internal/pdp/opadriver
// expects back from data.pep.decision.
const defaultPermitAllPolicy = `
package pep

default decision = {"decision": "Permit", "status_code": "urn:oasis:names:tc:xacml:1.0:status:ok", "obligations": []}
`
