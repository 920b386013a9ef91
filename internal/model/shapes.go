package model

// BookingTuple is one element of getBookingRequests() in the multi-record
// contract: (participant, amount, participantUniqueId, description, status).
// Some deployments prefix it with a job number.
type BookingTuple struct {
	JobNumber     string
	Participant   string
	Amount        Wei
	ParticipantID string
	Description   string
	Status        int
}

// LegacyBookingTuple is the single-slot shape: (participant, service, isOffered).
type LegacyBookingTuple struct {
	Participant string
	Service     string
	Offered     bool
}

// WithdrawalTuple is one element of getWithdrawalRequests():
// (requester, amount, participantUniqueId, description, approved).
type WithdrawalTuple struct {
	Requester     string
	Amount        Wei
	ParticipantID string
	Description   string
	Approved      bool
}

// ServiceEvent carries the args of a ServiceBooked or ServiceOffered log.
type ServiceEvent struct {
	RequestID       string
	Participant     string
	ServiceProvider string
	Description     string
	Amount          Wei
	Status          int
}

// Normalize converts a multi-record booking tuple to a Record.
func (t BookingTuple) Normalize() Record {
	return Record{
		Kind:             KindBookingRequest,
		RequesterAddress: t.Participant,
		Amount:           t.Amount,
		ParticipantID:    t.ParticipantID,
		Description:      t.Description,
		Status:           StatusCode(t.Status),
		JobNumber:        t.JobNumber,
	}
}

// Normalize converts a single-slot booking to a Record keyed by participant.
func (t LegacyBookingTuple) Normalize() Record {
	return Record{
		Kind:             KindBookingRequest,
		RequesterAddress: t.Participant,
		Description:      t.Service,
		Offered:          Flag(t.Offered),
	}
}

// Normalize converts a withdrawal tuple to a Record with the approved flag.
func (t WithdrawalTuple) Normalize() Record {
	return Record{
		Kind:             KindWithdrawalRequest,
		RequesterAddress: t.Requester,
		Amount:           t.Amount,
		ParticipantID:    t.ParticipantID,
		Description:      t.Description,
		Approved:         Flag(t.Approved),
	}
}

// Booked converts a ServiceBooked event to a BookingRequest record.
func (e ServiceEvent) Booked() Record {
	return Record{
		Kind:             KindBookingRequest,
		RequestID:        e.RequestID,
		RequesterAddress: e.Participant,
		Amount:           e.Amount,
		Description:      e.Description,
		Status:           StatusCode(e.Status),
	}
}

// Offered converts a ServiceOffered event to a ServiceOffer record.
func (e ServiceEvent) Offered() Record {
	return Record{
		Kind:             KindServiceOffer,
		RequestID:        e.RequestID,
		RequesterAddress: e.Participant,
		Amount:           e.Amount,
		Description:      e.Description,
		Status:           StatusCode(e.Status),
		ServiceProvider:  e.ServiceProvider,
	}
}
