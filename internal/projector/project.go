// Package projector turns a raw chain read into a de-duplicated, ordered,
// status-filtered view and the actions each caller role may take per record.
// It performs no I/O and keeps no state between calls.
package projector

import (
	"fmt"

	"ndisview/internal/model"
)

// Facts are contract facts resolved outside the projector.
type Facts struct {
	// Administrator is the contract's recorded administrator account.
	Administrator string
}

// Mode selects which lifecycle states a view includes.
type Mode string

const (
	ModeAll       Mode = "all"
	ModePending   Mode = "pending"
	ModeCompleted Mode = "completed"
	ModeOffered   Mode = "offered"
)

// ParseMode maps a query string value to a Mode; empty means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAll:
		return ModeAll, nil
	case ModePending, ModeCompleted, ModeOffered:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Includes reports whether a record in state st belongs to the view.
func (m Mode) Includes(st model.State) bool {
	switch m {
	case ModePending:
		return st == model.StatePending || st == model.StateAwaitingApproval
	case ModeCompleted:
		return st.Terminal()
	case ModeOffered:
		return st == model.StateServiceOffered
	}
	return true
}

// Options tune one projection pass. The zero value projects every state with
// no administrator fact.
type Options struct {
	Facts Facts
	Mode  Mode
}

// ActionSet is a set of actions kept in model.Actions order.
type ActionSet []model.Action

// Has reports whether a is in the set.
func (s ActionSet) Has(a model.Action) bool {
	for _, x := range s {
		if x == a {
			return true
		}
	}
	return false
}

// Permits reports whether row offers action to the caller it was projected for.
func Permits(row Row, action model.Action) bool { return row.Permitted.Has(action) }

// Row is one projected record.
type Row struct {
	Record    model.Record   `json:"record"`
	Key       Key            `json:"key"`
	WidgetKey string         `json:"widgetKey"`
	State     string         `json:"state"`
	Permitted ActionSet      `json:"permittedActions"`
	Withheld  []PolicyDenial `json:"withheld,omitempty"`
}

// Stats counts what a pass did with its input.
type Stats struct {
	Read       int `json:"read"`
	Duplicates int `json:"duplicates"`
	Filtered   int `json:"filtered"`
	Emitted    int `json:"emitted"`
}

// Project validates records in input order, drops any record whose identity
// key was already seen, filters by opts.Mode and derives the permitted actions
// for role and caller. It returns no rows when any record is malformed or
// carries an unknown status.
func Project(records []model.Record, role model.Role, caller string, opts Options) ([]Row, Stats, error) {
	var stats Stats
	if !knownRole(role) {
		return nil, stats, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAll
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, stats, err
	}

	seen := make(map[Key]struct{}, len(records))
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		stats.Read++
		if err := validateRecord(i, rec); err != nil {
			return nil, Stats{}, err
		}
		key := IdentityKey(rec)
		st, ok := ResolveState(rec)
		if !ok {
			return nil, Stats{}, &UnknownStatusError{Index: i, Key: key, Kind: rec.Kind, Code: rec.Status}
		}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		if !mode.Includes(st) {
			stats.Filtered++
			continue
		}
		permitted, withheld := actionsFor(rec, st, role, caller, opts.Facts)
		rows = append(rows, Row{
			Record:    rec,
			Key:       key,
			WidgetKey: WidgetKey(key),
			State:     st.String(),
			Permitted: permitted,
			Withheld:  withheld,
		})
	}
	stats.Emitted = len(rows)
	return rows, stats, nil
}

func knownRole(r model.Role) bool {
	switch r {
	case model.RoleAdministrator, model.RoleParticipant, model.RoleProvider:
		return true
	}
	return false
}

// actionsFor depends only on the record's kind and state, the role and
// whether caller is the recorded administrator.
func actionsFor(rec model.Record, st model.State, role model.Role, caller string, facts Facts) (ActionSet, []PolicyDenial) {
	if st.Terminal() {
		return ActionSet{}, nil
	}
	allowed := map[model.Action]bool{}
	var withheld []PolicyDenial

	serviceRecord := rec.Kind == model.KindBookingRequest || rec.Kind == model.KindServiceOffer
	switch role {
	case model.RoleAdministrator:
		if rec.Kind == model.KindWithdrawalRequest && st == model.StateAwaitingApproval {
			allowed[model.ActionApproveWithdrawal] = true
		}
		if SameAddress(caller, facts.Administrator) {
			allowed[model.ActionRegisterAccount] = true
		} else {
			withheld = append(withheld, PolicyDenial{
				Action: model.ActionRegisterAccount,
				Reason: "caller is not the contract administrator",
			})
		}
	case model.RoleProvider:
		if rec.Kind == model.KindBookingRequest && st == model.StatePending {
			allowed[model.ActionOfferService] = true
		}
		if serviceRecord && st == model.StateServiceOffered {
			allowed[model.ActionInitiateWithdrawalRequest] = true
		}
	case model.RoleParticipant:
		if serviceRecord && st == model.StateServiceOffered {
			allowed[model.ActionInitiateWithdrawalRequest] = true
		}
	}

	set := make(ActionSet, 0, len(allowed))
	for _, a := range model.Actions {
		if allowed[a] {
			set = append(set, a)
		}
	}
	return set, withheld
}

// Authorize projects records for role and caller and checks that action is
// currently offered on the record with the given key. It returns the row on
// success, a PolicyDenial when the action is withheld by policy, and
// ErrNotPermitted when the record's state does not allow it.
func Authorize(records []model.Record, role model.Role, caller string, facts Facts, key string, action model.Action) (Row, error) {
	rows, _, err := Project(records, role, caller, Options{Facts: facts, Mode: ModeAll})
	if err != nil {
		return Row{}, err
	}
	for _, row := range rows {
		if row.Key.String() != key {
			continue
		}
		if Permits(row, action) {
			return row, nil
		}
		for _, d := range row.Withheld {
			if d.Action == action {
				return row, d
			}
		}
		return row, fmt.Errorf("%w: %s on %s (%s)", ErrNotPermitted, action, key, row.State)
	}
	return Row{}, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
}
