package oh

import (
	"github.com/argus-authz/pep-pdp/internal/dfpm"
	"github.com/argus-authz/pep-pdp/internal/mapper"
	"github.com/argus-authz/pep-pdp/internal/pepcore"
	"github.com/argus-authz/pep-pdp/internal/poolaccount"
	"github.com/argus-authz/pep-pdp/internal/posixdb"
)

func init() {
	Register("accountMapping", func(params map[string]string) (Handler, error) {
		accountIndicators, err := dfpm.NewStore(params["accountIndicatorsFile"])
		if err != nil {
			return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "load account indicator DFPM table", err)
		}
		groups, err := dfpm.NewStore(params["groupsFile"])
		if err != nil {
			return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "load group DFPM table", err)
		}
		gridmapDir := params["gridmapDir"]
		if gridmapDir == "" {
			return nil, pepcore.Wrap(pepcore.ErrConfigurationError, "accountMapping OH requires gridmapDir", nil)
		}

		return &AccountMappingHandler{
			Mapper: &mapper.Mapper{
				AccountIndicators: accountIndicators,
				Groups:            groups,
				Pool:              poolaccount.NewManager(gridmapDir),
				Posix:             posixdb.New(),
				DNPreferred:       params["dnPreferred"] == "true",
			},
		}, nil
	})
}
