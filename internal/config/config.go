// Package config loads the INI configuration file of spec §6 into a single
// root Configuration, following the teacher's convention of one loader
// function returning a fully-populated struct, fatal on error.
package config

import (
	"strconv"
	"strings"

	"github.com/go-ini/ini"
	"github.com/sapcc/go-bits/logg"
)

// ServiceConfig mirrors the SERVICE section of spec §6.
type ServiceConfig struct {
	EntityID                         string
	Hostname                         string
	Port                             int
	EnableSSL                        bool
	RequireClientCertAuthentication  bool
	AdminHost                        string
	AdminPort                        int
	AdminPassword                    string
	MaximumRequests                  int
	ConnectionTimeout                int // seconds
	RequestQueueSize                 int
	ReceiveBufferSize                int // bytes
	SendBufferSize                   int // bytes
	PIPs                             []string
	ObligationHandlers               []string
}

// SecurityConfig mirrors the SECURITY section of spec §6.
type SecurityConfig struct {
	ServicePrivateKey  string
	ServiceCertificate string
	TrustInfoDir       string
	RequireCRLs        bool
}

// HandlerSection is one PIP or OH section: its parserClass, precedence, and
// the remaining keys as a flat string map handed to the registry
// constructor (spec §9 "polymorphic PIP/OH registry").
type HandlerSection struct {
	Name        string
	ParserClass string
	Precedence  int
	Params      map[string]string
}

// Configuration is the fully-parsed configuration tree.
type Configuration struct {
	Service  ServiceConfig
	Security SecurityConfig
	PIPs     []HandlerSection
	OHs      []HandlerSection
}

const (
	defaultMaximumRequests    = 50
	defaultConnectionTimeout  = 30
	defaultRequestQueueSize   = 500
	defaultBufferSize         = 4096
	defaultAdminHost          = "localhost"
	defaultRequireCRLs        = true
)

// NewConfiguration loads path and returns a populated Configuration. It is
// fatal for the caller to ignore the returned error: cmd/pep-serve calls
// logg.Fatal on it, matching the teacher's cmd/limes-serve startup idiom.
func NewConfiguration(path string) (Configuration, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return Configuration{}, err
	}

	var c Configuration
	svc, err := cfg.GetSection("SERVICE")
	if err != nil {
		return Configuration{}, err
	}
	c.Service = loadServiceSection(svc)

	if sec, err := cfg.GetSection("SECURITY"); err == nil {
		c.Security = loadSecuritySection(sec)
	} else {
		c.Security = SecurityConfig{RequireCRLs: defaultRequireCRLs}
	}

	for _, name := range c.Service.PIPs {
		sec, err := cfg.GetSection(name)
		if err != nil {
			logg.Error("config: PIP section %q referenced by SERVICE.pips not found, skipping", name)
			continue
		}
		c.PIPs = append(c.PIPs, loadHandlerSection(name, sec))
	}
	for _, name := range c.Service.ObligationHandlers {
		sec, err := cfg.GetSection(name)
		if err != nil {
			logg.Error("config: OH section %q referenced by SERVICE.obligationHandlers not found, skipping", name)
			continue
		}
		c.OHs = append(c.OHs, loadHandlerSection(name, sec))
	}

	return c, nil
}

func loadServiceSection(sec *ini.Section) ServiceConfig {
	s := ServiceConfig{
		AdminHost:          defaultAdminHost,
		MaximumRequests:    defaultMaximumRequests,
		ConnectionTimeout:  defaultConnectionTimeout,
		RequestQueueSize:   defaultRequestQueueSize,
		ReceiveBufferSize:  defaultBufferSize,
		SendBufferSize:     defaultBufferSize,
	}
	s.EntityID = sec.Key("entityId").String()
	s.Hostname = sec.Key("hostname").String()
	s.Port = intOrWarn(sec, "port", 0)
	s.EnableSSL = boolOrWarn(sec, "enableSSL", false)
	s.RequireClientCertAuthentication = boolOrWarn(sec, "requireClientCertAuthentication", false)
	if sec.HasKey("adminHost") {
		s.AdminHost = sec.Key("adminHost").String()
	}
	s.AdminPort = intOrWarn(sec, "adminPort", 0)
	s.AdminPassword = sec.Key("adminPassword").String()
	s.MaximumRequests = intOrWarn(sec, "maximumRequests", defaultMaximumRequests)
	s.ConnectionTimeout = intOrWarn(sec, "connectionTimeout", defaultConnectionTimeout)
	s.RequestQueueSize = intOrWarn(sec, "requestQueueSize", defaultRequestQueueSize)
	s.ReceiveBufferSize = intOrWarn(sec, "receiveBufferSize", defaultBufferSize)
	s.SendBufferSize = intOrWarn(sec, "sendBufferSize", defaultBufferSize)
	s.PIPs = spaceList(sec.Key("pips").String())
	s.ObligationHandlers = spaceList(sec.Key("obligationHandlers").String())

	warnUnknownKeys("SERVICE", sec, map[string]bool{
		"entityid": true, "hostname": true, "port": true, "enablessl": true,
		"requireclientcertauthentication": true, "adminhost": true, "adminport": true,
		"adminpassword": true, "maximumrequests": true, "connectiontimeout": true,
		"requestqueuesize": true, "receivebuffersize": true, "sendbuffersize": true,
		"pips": true, "obligationhandlers": true,
	})
	return s
}

func loadSecuritySection(sec *ini.Section) SecurityConfig {
	s := SecurityConfig{
		ServicePrivateKey:  sec.Key("servicePrivateKey").String(),
		ServiceCertificate: sec.Key("serviceCertificate").String(),
		TrustInfoDir:       sec.Key("trustInfoDir").String(),
		RequireCRLs:        defaultRequireCRLs,
	}
	if sec.HasKey("requireCRLs") {
		s.RequireCRLs = boolOrWarn(sec, "requireCRLs", defaultRequireCRLs)
	}
	warnUnknownKeys("SECURITY", sec, map[string]bool{
		"serviceprivatekey": true, "servicecertificate": true, "trustinfodir": true, "requirecrls": true,
	})
	return s
}

func loadHandlerSection(name string, sec *ini.Section) HandlerSection {
	h := HandlerSection{
		Name:        name,
		ParserClass: sec.Key("parserClass").String(),
		Params:      map[string]string{},
	}
	h.Precedence = intOrWarn(sec, "precedence", 0)
	for _, key := range sec.Keys() {
		lower := strings.ToLower(key.Name())
		if lower == "parserclass" || lower == "precedence" {
			continue
		}
		h.Params[key.Name()] = key.Value()
	}
	return h
}

// intOrWarn parses key as an integer, logging a warning and falling back to
// def on failure or absence (spec §6 "lenient" integer parsing).
func intOrWarn(sec *ini.Section, key string, def int) int {
	if !sec.HasKey(key) {
		return def
	}
	v, err := sec.Key(key).Int()
	if err != nil {
		logg.Error("config: %s.%s=%q is not a valid integer, using default %d", sec.Name(), key, sec.Key(key).String(), def)
		return def
	}
	return v
}

func boolOrWarn(sec *ini.Section, key string, def bool) bool {
	if !sec.HasKey(key) {
		return def
	}
	v, err := sec.Key(key).Bool()
	if err != nil {
		logg.Error("config: %s.%s=%q is not a valid boolean, using default %t", sec.Name(), key, sec.Key(key).String(), def)
		return def
	}
	return v
}

// warnUnknownKeys rejects keys not in known, per spec §9 REDESIGN FLAGS
// guidance ("reject unknown keys with a warning").
func warnUnknownKeys(section string, sec *ini.Section, known map[string]bool) {
	for _, key := range sec.Keys() {
		if !known[strings.ToLower(key.Name())] {
			logg.Error("config: unknown key %s.%s ignored", section, key.Name())
		}
	}
}

func spaceList(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		out = append(out, f)
	}
	return out
}

// MustAtoi parses a string as an int or returns def when it does not parse.
// It does not panic and logs nothing.
func MustAtoi(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
