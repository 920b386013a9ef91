package model

// Kind identifies which contract structure or event a Record was read from.
type Kind string

const (
	KindBookingRequest    Kind = "BookingRequest"
	KindWithdrawalRequest Kind = "WithdrawalRequest"
	KindServiceOffer      Kind = "ServiceOffer"
)

// Role is the caller's role on the contract.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleParticipant   Role = "participant"
	RoleProvider      Role = "provider"
)

// ParseRole accepts the role names used by the views and the login form.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "administrator", "admin", "ndia", "NDIA":
		return RoleAdministrator, true
	case "participant", "Participant", "participants":
		return RoleParticipant, true
	case "provider", "ServiceProvider", "serviceprovider", "providers":
		return RoleProvider, true
	}
	return "", false
}

// Action is a state-changing contract call. Most are offered per record; the
// rest are checked against the caller alone.
type Action string

const (
	ActionApproveWithdrawal         Action = "approveWithdrawal"
	ActionRegisterAccount           Action = "registerAccount"
	ActionOfferService              Action = "offerService"
	ActionInitiateWithdrawalRequest Action = "initiateWithdrawalRequest"

	// Contract calls not tied to a projected record.
	ActionDeposit                Action = "deposit"
	ActionBookService            Action = "bookService"
	ActionConfirmServiceRendered Action = "confirmServiceRendered"
)

// Actions lists every action in a fixed order.
var Actions = []Action{
	ActionApproveWithdrawal,
	ActionRegisterAccount,
	ActionOfferService,
	ActionInitiateWithdrawalRequest,
	ActionDeposit,
	ActionBookService,
	ActionConfirmServiceRendered,
}

// Record is one request snapshot read from the chain, either from a contract
// call returning a bounded array or from an event log entry.
// Status is the numeric contract status; Approved and Offered carry the older
// boolean shapes and are only consulted when Status is absent.
type Record struct {
	Kind             Kind   `json:"kind" validate:"required,oneof=BookingRequest WithdrawalRequest ServiceOffer"`
	RequestID        string `json:"requestId,omitempty"`
	RequesterAddress string `json:"requesterAddress" validate:"required"`
	Amount           Wei    `json:"amount" validate:"gte=0"`
	ParticipantID    string `json:"participantId,omitempty"`
	Description      string `json:"description,omitempty"`
	Status           *int   `json:"status,omitempty"`
	Approved         *bool  `json:"approved,omitempty"`
	Offered          *bool  `json:"offered,omitempty"`
	ServiceProvider  string `json:"serviceProvider,omitempty"`
	JobNumber        string `json:"jobNumber,omitempty"`
}

// State is the lifecycle position of a request:
// Pending -> ServiceOffered -> AwaitingApproval -> Approved.
type State int

const (
	StatePending State = iota
	StateServiceOffered
	StateAwaitingApproval
	StateApproved
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateServiceOffered:
		return "ServiceOffered"
	case StateAwaitingApproval:
		return "AwaitingApproval"
	case StateApproved:
		return "Approved"
	}
	return "Unknown"
}

// Terminal reports whether no further action applies.
func (s State) Terminal() bool { return s == StateApproved }

// StatusCode returns a pointer to c, for building records.
func StatusCode(c int) *int { return &c }

// Flag returns a pointer to b, for building legacy records.
func Flag(b bool) *bool { return &b }
