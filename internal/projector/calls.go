package projector

import (
	"fmt"

	"ndisview/internal/model"
)

// Calls are contract calls checked against the caller alone, with no
// projected record behind them.
var Calls = []model.Action{
	model.ActionRegisterAccount,
	model.ActionDeposit,
	model.ActionBookService,
	model.ActionConfirmServiceRendered,
}

// IsCall reports whether action may be submitted without a record key.
func IsCall(action model.Action) bool {
	for _, a := range Calls {
		if a == action {
			return true
		}
	}
	return false
}

// AuthorizeCall checks a record-less call for role and caller. Administrator
// calls need the caller to match the recorded administrator and are refused
// with a PolicyDenial otherwise; participant calls are refused with
// ErrNotPermitted for other roles.
func AuthorizeCall(role model.Role, caller string, facts Facts, action model.Action) error {
	if !knownRole(role) {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	switch action {
	case model.ActionRegisterAccount, model.ActionDeposit:
		if role != model.RoleAdministrator {
			return PolicyDenial{Action: action, Reason: "only the administrator role may call " + string(action)}
		}
		if !SameAddress(caller, facts.Administrator) {
			return PolicyDenial{Action: action, Reason: "caller is not the contract administrator"}
		}
		return nil
	case model.ActionBookService, model.ActionConfirmServiceRendered:
		if role != model.RoleParticipant {
			return fmt.Errorf("%w: %s is a participant call", ErrNotPermitted, action)
		}
		return nil
	}
	return fmt.Errorf("%w: %s needs a record key", ErrNotPermitted, action)
}

// OfferedCalls lists the record-less calls open to role and caller, and the
// ones withheld by policy.
func OfferedCalls(role model.Role, caller string, facts Facts) (ActionSet, []PolicyDenial) {
	set := ActionSet{}
	var withheld []PolicyDenial
	for _, a := range Calls {
		err := AuthorizeCall(role, caller, facts, a)
		if err == nil {
			set = append(set, a)
			continue
		}
		if d, ok := err.(PolicyDenial); ok && role == model.RoleAdministrator {
			withheld = append(withheld, d)
		}
	}
	return set, withheld
}
