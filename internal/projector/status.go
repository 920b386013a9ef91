package projector

import "ndisview/internal/model"

// statusTable maps numeric contract status codes per record kind. It is the
// only place status codes are interpreted.
var statusTable = map[model.Kind]map[int]model.State{
	model.KindBookingRequest: {
		0: model.StatePending,
		1: model.StateServiceOffered,
		2: model.StateAwaitingApproval,
		3: model.StateApproved,
	},
	model.KindServiceOffer: {
		1: model.StateServiceOffered,
		2: model.StateAwaitingApproval,
		3: model.StateApproved,
	},
	model.KindWithdrawalRequest: {
		2: model.StateAwaitingApproval,
		3: model.StateApproved,
	},
}

// ResolveState returns the lifecycle state of r. A numeric status takes
// precedence over the legacy flags; a record with neither resolves to false.
func ResolveState(r model.Record) (model.State, bool) {
	if r.Status != nil {
		st, ok := statusTable[r.Kind][*r.Status]
		return st, ok
	}
	switch r.Kind {
	case model.KindWithdrawalRequest:
		if r.Approved != nil {
			if *r.Approved {
				return model.StateApproved, true
			}
			return model.StateAwaitingApproval, true
		}
	case model.KindBookingRequest:
		if r.Offered != nil {
			if *r.Offered {
				return model.StateServiceOffered, true
			}
			return model.StatePending, true
		}
	}
	return 0, false
}
