package oh

import "github.com/argus-authz/pep-pdp/internal/pepcore"

// Constructor builds a Handler from its configuration parameters, looked up
// by the "parserClass" tag in the INI config, mirroring the PIP registry of
// spec §9 ("polymorphic PIP/OH registry").
type Constructor func(params map[string]string) (Handler, error)

var registry = map[string]Constructor{}

// Register adds an OH constructor under tag. Called from package init
// functions so the registry is populated at compile time.
func Register(tag string, ctor Constructor) {
	registry[tag] = ctor
}

// Build looks up tag and constructs a Handler instance.
func Build(tag string, params map[string]string) (Handler, error) {
	ctor, ok := registry[tag]
	if !ok {
		return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "unknown OH parserClass "+tag, nil)
	}
	return ctor(params)
}
