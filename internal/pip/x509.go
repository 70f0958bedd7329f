package pip

import (
	"github.com/argus-authz/pep-pdp/internal/model"
	"github.com/argus-authz/pep-pdp/internal/x509voms"
)

// x509Adapter applies an x509voms.PIP (which enriches one Subject at a
// time) to every Subject on a Request, satisfying the PIP interface.
type x509Adapter struct {
	inner *x509voms.PIP
}

// NewX509VOMS wraps cfg into a PIP applying X.509/VOMS identity extraction
// to every Subject of a Request (spec §4.5/§4.6).
func NewX509VOMS(cfg x509voms.Config) PIP {
	return x509Adapter{inner: x509voms.New(cfg)}
}

func (a x509Adapter) Apply(req *model.Request) error {
	for _, s := range req.Subjects {
		if err := a.inner.Apply(s); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	Register("x509voms", func(params map[string]string) (PIP, error) {
		cfg := x509voms.Config{
			RequireProxy: params["requireProxy"] == "true",
			ValidatePKIX: params["validatePKIX"] != "false",
			RequireCRLs:  params["requireCRLs"] != "false",
			EnableAC:     params["enableAC"] == "true",
		}
		if cfg.ValidatePKIX {
			// trustInfoDir is threaded in from the SECURITY section by
			// cmd/pep-serve's buildPIPs (spec §6 SecurityConfig.TrustInfoDir):
			// the configured CA trust store this PIP validates chains against
			// (spec §4.5 step 3). A missing or unreadable trust store is a
			// ConfigurationError, fatal at startup per spec §7, rather than a
			// silently-empty pool that would reject every legitimate chain.
			trustRoots, err := x509voms.LoadCertPool(params["trustInfoDir"])
			if err != nil {
				return nil, err
			}
			cfg.TrustRoots = trustRoots
		}
		return NewX509VOMS(cfg), nil
	})
}
