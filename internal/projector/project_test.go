package projector

import (
	"errors"
	"reflect"
	"testing"

	"ndisview/internal/model"
)

const (
	admin    = "0xAdA0000000000000000000000000000000000001"
	stranger = "0x5700000000000000000000000000000000000002"
)

func booking(addr string, status int) model.Record {
	return model.Record{Kind: model.KindBookingRequest, RequesterAddress: addr, Amount: model.NewWei(100), Description: "Core Supports", Status: model.StatusCode(status)}
}

func withdrawal(addr, pid, desc string, status int) model.Record {
	return model.Record{Kind: model.KindWithdrawalRequest, RequesterAddress: addr, Amount: model.NewWei(250), ParticipantID: pid, Description: desc, Status: model.StatusCode(status)}
}

func keys(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Key.String())
	}
	return out
}

func TestProject_DuplicateDropped(t *testing.T) {
	in := []model.Record{booking("0xA", 0), booking("0xA", 0)}
	rows, stats, err := Project(in, model.RoleProvider, stranger, Options{})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(rows) != 1 || stats.Duplicates != 1 || stats.Read != 2 {
		t.Fatalf("want 1 row and 1 duplicate, got rows=%d stats=%+v", len(rows), stats)
	}
	if rows[0].State != "Pending" {
		t.Fatalf("state=%s want Pending", rows[0].State)
	}
}

func TestProject_FirstSeenWins(t *testing.T) {
	// same request id, later emission carries a different status: never merged
	first := booking("0xA", 0)
	first.RequestID = "0x01"
	later := booking("0xA", 1)
	later.RequestID = "0x01"
	rows, _, err := Project([]model.Record{first, later}, model.RoleProvider, stranger, Options{})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(rows) != 1 || rows[0].State != "Pending" || *rows[0].Record.Status != 0 {
		t.Fatalf("first occurrence should win: %+v", rows)
	}
}

func TestProject_IdempotentOnRepeatedInput(t *testing.T) {
	r := []model.Record{
		booking("0xA", 0),
		withdrawal("0xB", "u1", "physio", 2),
		booking("0xC", 1),
		withdrawal("0xB", "u1", "physio", 2),
		withdrawal("0xB", "u2", "physio", 3),
	}
	doubled := append(append([]model.Record{}, r...), r...)
	for _, role := range []model.Role{model.RoleAdministrator, model.RoleParticipant, model.RoleProvider} {
		once, _, err := Project(r, role, admin, Options{Facts: Facts{Administrator: admin}})
		if err != nil {
			t.Fatalf("project once: %v", err)
		}
		twice, _, err := Project(doubled, role, admin, Options{Facts: Facts{Administrator: admin}})
		if err != nil {
			t.Fatalf("project twice: %v", err)
		}
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("role %s: R++R differs from R\n%v\n%v", role, keys(once), keys(twice))
		}
	}
}

func TestProject_PreservesInputOrder(t *testing.T) {
	in := []model.Record{booking("0xC", 0), booking("0xA", 0), booking("0xB", 0), booking("0xA", 0)}
	rows, _, err := Project(in, model.RoleParticipant, stranger, Options{})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	want := []string{"BookingRequest#0xc", "BookingRequest#0xa", "BookingRequest#0xb"}
	if got := keys(rows); !reflect.DeepEqual(got, want) {
		t.Fatalf("order: got %v want %v", got, want)
	}
}

func TestProject_ApprovedHasNoActions(t *testing.T) {
	in := []model.Record{
		booking("0xA", 3),
		withdrawal("0xB", "u1", "d", 3),
		{Kind: model.KindWithdrawalRequest, RequesterAddress: "0xC", Approved: model.Flag(true)},
		{Kind: model.KindServiceOffer, RequestID: "0x09", RequesterAddress: "0xD", Status: model.StatusCode(3)},
	}
	for _, role := range []model.Role{model.RoleAdministrator, model.RoleParticipant, model.RoleProvider} {
		rows, _, err := Project(in, role, admin, Options{Facts: Facts{Administrator: admin}})
		if err != nil {
			t.Fatalf("project: %v", err)
		}
		for _, row := range rows {
			if len(row.Permitted) != 0 || len(row.Withheld) != 0 {
				t.Fatalf("role %s: approved row %s offered %v withheld %v", role, row.Key, row.Permitted, row.Withheld)
			}
		}
	}
}

func TestProject_RegisterAccountOnlyForAdministrator(t *testing.T) {
	in := []model.Record{booking("0xA", 0), withdrawal("0xB", "u1", "d", 2)}
	facts := Facts{Administrator: admin}

	rows, _, err := Project(in, model.RoleAdministrator, "0xada0000000000000000000000000000000000001", Options{Facts: facts})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	for _, row := range rows {
		if !row.Permitted.Has(model.ActionRegisterAccount) {
			t.Fatalf("administrator (any casing) should be offered registerAccount on %s", row.Key)
		}
	}

	for _, caller := range []string{stranger, "", "0xA"} {
		rows, _, err := Project(in, model.RoleAdministrator, caller, Options{Facts: facts})
		if err != nil {
			t.Fatalf("project: %v", err)
		}
		for _, row := range rows {
			if row.Permitted.Has(model.ActionRegisterAccount) {
				t.Fatalf("caller %q must not be offered registerAccount", caller)
			}
			if len(row.Withheld) != 1 || row.Withheld[0].Action != model.ActionRegisterAccount {
				t.Fatalf("expected policy denial for %q, got %+v", caller, row.Withheld)
			}
		}
	}

	// no administrator fact at all: nobody matches
	rows, _, _ = Project(in, model.RoleAdministrator, "", Options{})
	if rows[0].Permitted.Has(model.ActionRegisterAccount) {
		t.Fatalf("empty caller matched empty administrator")
	}
}

func TestProject_ServiceOfferedProvider(t *testing.T) {
	in := []model.Record{booking("0xB", 1)}
	rows, _, err := Project(in, model.RoleProvider, stranger, Options{})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	want := ActionSet{model.ActionInitiateWithdrawalRequest}
	if !reflect.DeepEqual(rows[0].Permitted, want) {
		t.Fatalf("provider on ServiceOffered: got %v want %v", rows[0].Permitted, want)
	}
	if rows[0].Permitted.Has(model.ActionOfferService) {
		t.Fatalf("offerService only applies at Pending")
	}
}

func TestProject_UnknownStatus(t *testing.T) {
	in := []model.Record{booking("0xA", 0), withdrawal("0xC", "", "", 99)}
	rows, stats, err := Project(in, model.RoleAdministrator, admin, Options{})
	var us *UnknownStatusError
	if !errors.As(err, &us) {
		t.Fatalf("want UnknownStatusError, got %v", err)
	}
	if us.Index != 1 || us.Key.Value != "0xc##" || us.Code == nil || *us.Code != 99 {
		t.Fatalf("unexpected error detail: %+v", us)
	}
	if rows != nil || stats != (Stats{}) {
		t.Fatalf("no partial result expected, got %v %+v", rows, stats)
	}
}

func TestProject_WithdrawalWithoutStatusOrFlag(t *testing.T) {
	in := []model.Record{{Kind: model.KindWithdrawalRequest, RequesterAddress: "0xA"}}
	_, _, err := Project(in, model.RoleAdministrator, admin, Options{})
	var us *UnknownStatusError
	if !errors.As(err, &us) || us.Code != nil {
		t.Fatalf("missing status must not default to pending: %v", err)
	}
}

func TestProject_Empty(t *testing.T) {
	rows, stats, err := Project(nil, model.RoleParticipant, stranger, Options{})
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if rows == nil || len(rows) != 0 || stats.Read != 0 {
		t.Fatalf("want empty non-nil rows, got %v %+v", rows, stats)
	}
}

func TestProject_ApprovalIgnoresCallerAddress(t *testing.T) {
	in := []model.Record{withdrawal("0xD", "u1", "physio", 2), booking("0xE", 0)}
	rows, _, err := Project(in, model.RoleAdministrator, stranger, Options{Facts: Facts{Administrator: admin}})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if !rows[0].Permitted.Has(model.ActionApproveWithdrawal) {
		t.Fatalf("approveWithdrawal should depend on status and role only")
	}
	if rows[1].Permitted.Has(model.ActionRegisterAccount) {
		t.Fatalf("registerAccount must be withheld for a non-administrator caller")
	}
	if len(rows[1].Withheld) != 1 {
		t.Fatalf("expected a policy denial on the booking row: %+v", rows[1])
	}
}

func TestProject_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		rec   model.Record
		field string
	}{
		{"no requester", model.Record{Kind: model.KindBookingRequest, Status: model.StatusCode(0)}, "requesterAddress"},
		{"blank requester", model.Record{Kind: model.KindBookingRequest, RequesterAddress: "  ", Status: model.StatusCode(0)}, "requesterAddress"},
		{"no kind", model.Record{RequesterAddress: "0xA", Status: model.StatusCode(0)}, "kind"},
		{"bad kind", model.Record{Kind: "Deposit", RequesterAddress: "0xA", Status: model.StatusCode(0)}, "kind"},
		{"negative amount", model.Record{Kind: model.KindBookingRequest, RequesterAddress: "0xA", Amount: model.NewWei(-1), Status: model.StatusCode(0)}, "amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := []model.Record{booking("0xZ", 0), tc.rec}
			_, _, err := Project(in, model.RoleParticipant, stranger, Options{})
			var me *MalformedRecordError
			if !errors.As(err, &me) {
				t.Fatalf("want MalformedRecordError, got %v", err)
			}
			if me.Index != 1 || me.Field != tc.field {
				t.Fatalf("got index=%d field=%q want 1/%q", me.Index, me.Field, tc.field)
			}
		})
	}
}

func TestProject_Modes(t *testing.T) {
	in := []model.Record{
		booking("0xA", 0),
		booking("0xB", 1),
		withdrawal("0xC", "u", "d", 2),
		withdrawal("0xD", "u", "d", 3),
	}
	cases := map[Mode][]string{
		ModeAll:       {"BookingRequest#0xa", "BookingRequest#0xb", "WithdrawalRequest#0xc#u#d", "WithdrawalRequest#0xd#u#d"},
		ModePending:   {"BookingRequest#0xa", "WithdrawalRequest#0xc#u#d"},
		ModeCompleted: {"WithdrawalRequest#0xd#u#d"},
		ModeOffered:   {"BookingRequest#0xb"},
	}
	for mode, want := range cases {
		rows, stats, err := Project(in, model.RoleAdministrator, admin, Options{Mode: mode})
		if err != nil {
			t.Fatalf("mode %s: %v", mode, err)
		}
		if got := keys(rows); !reflect.DeepEqual(got, want) {
			t.Fatalf("mode %s: got %v want %v", mode, got, want)
		}
		if stats.Filtered != len(in)-len(want) {
			t.Fatalf("mode %s: filtered=%d", mode, stats.Filtered)
		}
	}
	if _, _, err := Project(in, model.RoleAdministrator, admin, Options{Mode: "stale"}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("want ErrUnknownMode, got %v", err)
	}
}

func TestProject_UnknownRole(t *testing.T) {
	if _, _, err := Project(nil, "auditor", stranger, Options{}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("want ErrUnknownRole, got %v", err)
	}
}

func TestProject_LegacyShapes(t *testing.T) {
	in := []model.Record{
		model.LegacyBookingTuple{Participant: "0xA", Service: "Core Supports", Offered: false}.Normalize(),
		model.LegacyBookingTuple{Participant: "0xB", Service: "Core Supports", Offered: true}.Normalize(),
		model.WithdrawalTuple{Requester: "0xC", Amount: model.NewWei(5), ParticipantID: "u", Description: "d", Approved: false}.Normalize(),
	}
	rows, _, err := Project(in, model.RoleProvider, stranger, Options{})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if !rows[0].Permitted.Has(model.ActionOfferService) {
		t.Fatalf("unoffered legacy booking should be offerable: %+v", rows[0])
	}
	if !rows[1].Permitted.Has(model.ActionInitiateWithdrawalRequest) {
		t.Fatalf("offered legacy booking should allow withdrawal initiation: %+v", rows[1])
	}
	if rows[2].State != "AwaitingApproval" || len(rows[2].Permitted) != 0 {
		t.Fatalf("provider has no action on pending withdrawal: %+v", rows[2])
	}
}

func TestProject_KindScopesKey(t *testing.T) {
	ev := model.ServiceEvent{RequestID: "0xAB", Participant: "0xA", ServiceProvider: "0xP", Status: 1}
	booked := ev.Booked()
	booked.Status = model.StatusCode(0)
	rows, _, err := Project([]model.Record{booked, ev.Offered()}, model.RoleParticipant, stranger, Options{})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("booking and offer with the same request id are distinct rows, got %d", len(rows))
	}
	if rows[0].Key.Value != "id:0xab" {
		t.Fatalf("request id should be preferred key, got %s", rows[0].Key)
	}
}

func TestProject_SeparatorInFreeText(t *testing.T) {
	in := []model.Record{
		withdrawal("0xA", "u1#physio", "week 2", 2),
		withdrawal("0xA", "u1", "physio#week 2", 2),
		withdrawal("0xA", `u1\`, "#physio#week 2", 2),
	}
	rows, stats, err := Project(in, model.RoleAdministrator, admin, Options{Facts: Facts{Administrator: admin}})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(rows) != 3 || stats.Duplicates != 0 {
		t.Fatalf("distinct tuples merged: rows=%v stats=%+v", keys(rows), stats)
	}
	seen := map[string]bool{}
	for _, r := range rows {
		if seen[r.WidgetKey] {
			t.Fatalf("widget key collision for %s", r.Key)
		}
		seen[r.WidgetKey] = true
	}

	var back Key
	if err := back.UnmarshalText([]byte(rows[0].Key.String())); err != nil || back != rows[0].Key {
		t.Fatalf("escaped key should round trip, got %+v err=%v", back, err)
	}
	if _, err := Authorize(in, model.RoleAdministrator, admin, Facts{Administrator: admin}, rows[1].Key.String(), model.ActionApproveWithdrawal); err != nil {
		t.Fatalf("escaped key should authorize: %v", err)
	}
}

func TestWidgetKey_Stable(t *testing.T) {
	k := IdentityKey(withdrawal("0xAbC", "u1", "physio", 2))
	if WidgetKey(k) != WidgetKey(IdentityKey(withdrawal("0xabc", "u1", "physio", 3))) {
		t.Fatalf("widget key should not depend on status or address casing")
	}
	if WidgetKey(k) == WidgetKey(IdentityKey(withdrawal("0xabc", "u2", "physio", 2))) {
		t.Fatalf("different participant ids must not collide")
	}
	if len(WidgetKey(k)) != 24 {
		t.Fatalf("unexpected widget key length: %q", WidgetKey(k))
	}
}

func TestAuthorize(t *testing.T) {
	in := []model.Record{withdrawal("0xD", "u1", "physio", 2), booking("0xE", 0)}
	facts := Facts{Administrator: admin}
	wkey := IdentityKey(in[0]).String()
	bkey := IdentityKey(in[1]).String()

	if _, err := Authorize(in, model.RoleAdministrator, stranger, facts, wkey, model.ActionApproveWithdrawal); err != nil {
		t.Fatalf("approve should be allowed: %v", err)
	}

	_, err := Authorize(in, model.RoleAdministrator, stranger, facts, bkey, model.ActionRegisterAccount)
	var denial PolicyDenial
	if !errors.As(err, &denial) || !errors.Is(err, ErrNotAdministrator) {
		t.Fatalf("want policy denial, got %v", err)
	}

	if _, err := Authorize(in, model.RoleParticipant, stranger, facts, bkey, model.ActionOfferService); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("want ErrNotPermitted, got %v", err)
	}
	if _, err := Authorize(in, model.RoleProvider, stranger, facts, "BookingRequest#0xnope", model.ActionOfferService); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}
}
