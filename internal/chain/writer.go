package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"ndisview/internal/model"
	"ndisview/internal/projector"
)

// Intent is an action the caller chose from a projected row.
type Intent struct {
	Action    model.Action      `json:"action"`
	RecordKey string            `json:"recordKey,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	From      string            `json:"from"`
}

// TxID identifies a submitted transaction.
type TxID string

// Writer submits an intent and returns its transaction identifier.
type Writer interface {
	Submit(ctx context.Context, in Intent) (TxID, error)
}

// ErrorKind tags a submission failure.
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindTimeout      ErrorKind = "timeout"
	KindUnauthorized ErrorKind = "unauthorized"
	KindUnknown      ErrorKind = "unknown"
)

// TxError is the only error type a Writer returns.
type TxError struct {
	Kind ErrorKind
	Err  error
}

func (e *TxError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *TxError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) *TxError {
	return &TxError{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

// Validate checks the intent carries what its action needs.
func (in Intent) Validate() error {
	if strings.TrimSpace(in.From) == "" {
		return invalid("from address is required")
	}
	switch in.Action {
	case model.ActionRegisterAccount:
		if strings.TrimSpace(in.Params["account"]) == "" {
			return invalid("registerAccount needs params.account")
		}
		if r, ok := in.Params["role"]; ok {
			if _, known := model.ParseRole(r); !known {
				return invalid("registerAccount: %v %q", projector.ErrUnknownRole, r)
			}
		}
	case model.ActionDeposit:
		amount, err := model.ParseWei(strings.TrimSpace(in.Params["amount"]))
		if err != nil {
			return invalid("deposit needs params.amount in wei: %v", err)
		}
		if amount.Sign() < 0 {
			return invalid("deposit amount must be >= 0")
		}
	case model.ActionBookService:
		if strings.TrimSpace(in.Params["service"]) == "" {
			return invalid("bookService needs params.service")
		}
	case model.ActionConfirmServiceRendered:
		if strings.TrimSpace(in.Params["description"]) == "" || strings.TrimSpace(in.Params["serviceProvider"]) == "" {
			return invalid("confirmServiceRendered needs params.description and params.serviceProvider")
		}
	case model.ActionApproveWithdrawal, model.ActionOfferService, model.ActionInitiateWithdrawalRequest:
		if strings.TrimSpace(in.RecordKey) == "" {
			return invalid("%s needs a record key", in.Action)
		}
	default:
		return invalid("unknown action %q", in.Action)
	}
	return nil
}

// Amount returns the deposit amount of a validated deposit intent.
func (in Intent) Amount() model.Wei {
	w, _ := model.ParseWei(strings.TrimSpace(in.Params["amount"]))
	return w
}

// Classify maps any error from the submit path to a TxError.
func Classify(err error) *TxError {
	if err == nil {
		return nil
	}
	var te *TxError
	if errors.As(err, &te) {
		return te
	}
	var denial projector.PolicyDenial
	var nerr net.Error
	var malformed *projector.MalformedRecordError
	var unknownStatus *projector.UnknownStatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &TxError{Kind: KindTimeout, Err: err}
	case errors.As(err, &nerr) && nerr.Timeout():
		return &TxError{Kind: KindTimeout, Err: err}
	case errors.As(err, &denial), errors.Is(err, projector.ErrNotPermitted), errors.Is(err, projector.ErrNotAdministrator):
		return &TxError{Kind: KindUnauthorized, Err: err}
	case errors.As(err, &malformed), errors.As(err, &unknownStatus), errors.Is(err, projector.ErrRecordNotFound), errors.Is(err, projector.ErrUnknownRole):
		return &TxError{Kind: KindInvalidInput, Err: err}
	}
	return &TxError{Kind: KindUnknown, Err: err}
}
