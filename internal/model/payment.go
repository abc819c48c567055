package model

import "time"

// AmountMode tags how the user entered the amount
type AmountMode string

const (
	AmountInAsset AmountMode = "asset"
	AmountInUSD   AmountMode = "usd"
)

// Annotation is the optional message attached to a tribute. It is not
// embedded on-chain; it rides along to the board ledger.
type Annotation struct {
	Message  string `json:"message,omitempty"`
	URL      string `json:"url,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

// PaymentRequest is the immutable input of one orchestration attempt
type PaymentRequest struct {
	ID         string      `json:"id"`
	Payer      string      `json:"payer"`
	Name       string      `json:"name,omitempty"`
	Asset      AssetConfig `json:"asset"`
	Amount     float64     `json:"amount"`
	Mode       AmountMode  `json:"mode"`
	Annotation *Annotation `json:"annotation,omitempty"`
}

// Quote is a time-boxed conversion offer for a non-native asset
type Quote struct {
	FromAsset      string    `json:"from_asset"`
	ToAsset        string    `json:"to_asset"`
	InAmount       float64   `json:"in_amount"`
	OutAmount      float64   `json:"out_amount"`
	MinOutAmount   float64   `json:"min_out_amount"`
	PriceImpactPct float64   `json:"price_impact_pct"`
	RouterAddress  string    `json:"router_address"`
	RouteID        string    `json:"route_id"`
	IssuedAt       time.Time `json:"issued_at"`
}

// Age reports how long ago the quote was issued
func (q *Quote) Age() time.Duration {
	return time.Since(q.IssuedAt)
}

// OutcomeStatus is the terminal classification of an attempt
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// FailureKind classifies a failed attempt
type FailureKind string

const (
	KindInvalidInput        FailureKind = "invalid_input"
	KindQuoteUnavailable    FailureKind = "quote_unavailable"
	KindSigningRejected     FailureKind = "signing_rejected"
	KindSubmissionFailed    FailureKind = "submission_failed"
	KindConfirmationTimeout FailureKind = "confirmation_timeout"
	// KindLedgerSyncFailed is log-only bookkeeping; it never appears as
	// the kind of a PaymentOutcome because the payment itself succeeded.
	KindLedgerSyncFailed FailureKind = "ledger_sync_failed"
)

// Retryable reports whether a fresh user-initiated attempt is safe.
// Confirmation timeouts are ambiguous: the transfer may have landed,
// so the user should verify before paying again.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindInvalidInput, KindQuoteUnavailable, KindSigningRejected, KindSubmissionFailed:
		return true
	}
	return false
}

// PaymentOutcome is the terminal result of one orchestration attempt
type PaymentOutcome struct {
	Status        OutcomeStatus `json:"status"`
	Signature     string        `json:"signature,omitempty"`
	SettledAmount float64       `json:"settled_amount,omitempty"`
	SettledUSD    float64       `json:"settled_usd,omitempty"`
	Kind          FailureKind   `json:"kind,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// LocalDepositRecord is the client-held fact about one confirmed
// tribute, trusted immediately while the board ledger catches up.
// Created once, never mutated; Superseded flips when the board is
// known to already reflect it.
type LocalDepositRecord struct {
	Signature  string    `json:"signature"`
	Payer      string    `json:"payer"`
	Asset      string    `json:"asset"`
	Amount     float64   `json:"amount"`
	USDValue   float64   `json:"usd_value"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"` // always "confirmed"
	Superseded bool      `json:"superseded"`
}

// LedgerUpsert carries a confirmed tribute to the board ledger
type LedgerUpsert struct {
	Payer      string      `json:"payer"`
	Name       string      `json:"name,omitempty"`
	Asset      string      `json:"asset"`
	Amount     float64     `json:"amount"`
	Signature  string      `json:"signature"`
	USDValue   float64     `json:"usd_value"`
	Annotation *Annotation `json:"annotation,omitempty"`
}
