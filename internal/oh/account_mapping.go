package oh

import (
	"strconv"

	"github.com/argus-authz/pep-pdp/internal/fqan"
	"github.com/argus-authz/pep-pdp/internal/mapper"
	"github.com/argus-authz/pep-pdp/internal/model"
)

// Obligation id this handler reacts to: a PDP that wants the PEP to map the
// subject onto a local POSIX account attaches an obligation with this id to
// the Result (spec §4.4, §8 scenario 5).
const PosixMappingObligationID = "http://authz-interop.org/xacml/obligation/posix-mapping"

const (
	attrDN            = "urn:oasis:names:tc:xacml:1.0:subject:subject-id"
	attrPrimaryFQAN   = "http://authz-interop.org/xacml/subject/voms-primary-fqan"
	attrSecondaryFQAN = "http://authz-interop.org/xacml/subject/voms-fqan"

	attrUsername      = "username"
	attrPosixUID      = "posix-uid"
	attrPosixGID      = "posix-gid"
	obligationUsername = "http://authz-interop.org/xacml/obligation/username"
	obligationSecondaryGIDs = "http://authz-interop.org/xacml/obligation/secondary-gids"

	dataTypeString  = "http://www.w3.org/2001/XMLSchema#string"
	dataTypeInteger = "http://www.w3.org/2001/XMLSchema#integer"
)

// AccountMappingHandler implements the DN/FQAN → POSIX account OH of spec
// §4.4/§4.8: it replaces the posix-mapping obligation with the resolved
// username/uid/gid/secondary-gids obligations, per the worked example in
// spec §8 scenario 5.
type AccountMappingHandler struct {
	Mapper *mapper.Mapper
}

func (h *AccountMappingHandler) HandledObligationID() string { return PosixMappingObligationID }

func (h *AccountMappingHandler) Handle(req *model.Request, result *model.Result) error {
	if len(req.Subjects) == 0 {
		return nil
	}
	subj := req.Subjects[0]

	dnAttr, ok := subj.FirstByID(attrDN)
	if !ok || len(dnAttr.Values) == 0 {
		return nil
	}

	var primary *fqan.FQAN
	if a, ok := subj.FirstByID(attrPrimaryFQAN); ok && len(a.Values) > 0 {
		f, err := fqan.Parse(a.Values[0])
		if err == nil {
			primary = &f
		}
	}
	var secondary []fqan.FQAN
	if a, ok := subj.FirstByID(attrSecondaryFQAN); ok {
		for _, v := range a.Values {
			if primary != nil && v == primary.String() {
				continue
			}
			f, err := fqan.Parse(v)
			if err == nil {
				secondary = append(secondary, f)
			}
		}
	}

	account, err := h.Mapper.Map(mapper.Subject{
		DN:             dnAttr.Values[0],
		PrimaryFQAN:    primary,
		SecondaryFQANs: secondary,
	})
	if err != nil {
		return err
	}

	idx, _ := result.HasObligation(PosixMappingObligationID)
	result.Obligations = append(result.Obligations[:idx], result.Obligations[idx+1:]...)

	result.Obligations = append(result.Obligations, model.Obligation{
		ID:        obligationUsername,
		FulfillOn: result.Decision,
		Assignments: []model.AttributeAssignment{
			{AttributeID: attrUsername, DataType: dataTypeString, Value: account.LoginName},
			{AttributeID: attrPosixUID, DataType: dataTypeInteger, Value: strconv.Itoa(account.UID)},
			{AttributeID: attrPosixGID, DataType: dataTypeInteger, Value: strconv.Itoa(account.Primary.GID)},
		},
	})

	if len(account.Secondary) > 0 {
		var assignments []model.AttributeAssignment
		for _, g := range account.Secondary {
			assignments = append(assignments, model.AttributeAssignment{
				AttributeID: attrPosixGID, DataType: dataTypeInteger, Value: strconv.Itoa(g.GID),
			})
		}
		result.Obligations = append(result.Obligations, model.Obligation{
			ID:          obligationSecondaryGIDs,
			FulfillOn:   result.Decision,
			Assignments: assignments,
		})
	}

	return nil
}
