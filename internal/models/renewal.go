package models

import "time"

// State represents the position of one resource inside the renewal flow
type State string

const (
	StateInit          State = "INIT"
	StateTriggered     State = "TRIGGERED"
	StateAwaitingPin   State = "AWAITING_PIN"
	StatePinCaptured   State = "PIN_CAPTURED"
	StateTokenObtained State = "TOKEN_OBTAINED"
	StateConfirmed     State = "CONFIRMED"
	StateFailed        State = "FAILED"
)

// Outcome represents the final result of processing one resource
type Outcome string

const (
	OutcomeRenewed  Outcome = "renewed"
	OutcomeNoAction Outcome = "no_action"
	OutcomeFailed   Outcome = "failed"
)

// FailureReason classifies why a renewal attempt ended in StateFailed
type FailureReason string

const (
	ReasonNone                  FailureReason = ""
	ReasonPinNotReceived        FailureReason = "pin_not_received"
	ReasonTokenExchangeRejected FailureReason = "token_exchange_rejected"
	ReasonTransport             FailureReason = "transport_error"
)

// RenewableResource is one row of the provider's contract listing,
// produced fresh per session query and never cached across runs
type RenewableResource struct {
	ID        string
	Renewable bool
}

// PinChallenge tracks the out-of-band PIN flow for a single resource.
// The mailed PIN is only valid until Deadline.
type PinChallenge struct {
	ResourceID  string
	TriggeredAt time.Time
	Deadline    time.Time
}

// CapturedPin is a one-time code extracted from the mailbox. The source
// message is flagged seen on capture so a later poll cannot return it again.
type CapturedPin struct {
	Value     string
	MessageID uint32
}

// RenewalToken is the short-lived credential returned in exchange for a
// valid PIN, consumed immediately by the confirmation call
type RenewalToken struct {
	Value      string
	ResourceID string
}

// ResourceOutcome records how far one resource got and why it stopped
type ResourceOutcome struct {
	ResourceID string
	Outcome    Outcome
	Reason     FailureReason
	State      State
}
