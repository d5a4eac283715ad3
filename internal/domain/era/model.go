package era

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/platform/apperr"
)

// Adjustment is one itemized CARC adjustment on a remittance record.
type Adjustment struct {
	Code        string  `json:"code"`
	Reason      *string `json:"reason,omitempty"`
	AmountCents int64   `json:"amountCents"`
}

// Record is one claim-level remittance line. Identifiers stay strings so a
// malformed id can be reported against its record instead of failing the
// whole request body.
type Record struct {
	ClaimNumber                *string      `json:"claimNumber,omitempty"`
	ClaimID                    *string      `json:"claimId,omitempty"`
	PatientName                *string      `json:"patientName,omitempty"`
	ServiceDate                *string      `json:"serviceDate,omitempty"`
	PaidAmountCents            *int64       `json:"paidAmountCents"`
	PaymentDate                *string      `json:"paymentDate,omitempty"`
	PayerName                  *string      `json:"payerName,omitempty"`
	CheckNumber                *string      `json:"checkNumber,omitempty"`
	DenialCode                 *string      `json:"denialCode,omitempty"`
	DenialReason               *string      `json:"denialReason,omitempty"`
	PatientResponsibilityCents *int64       `json:"patientResponsibilityCents,omitempty"`
	Adjustments                []Adjustment `json:"adjustments,omitempty"`

	decodeErr error
}

// UnmarshalJSON never fails on a well-formed JSON value. A record whose
// fields have the wrong types keeps only its claim number, when readable,
// and carries the decode failure into reconciliation, where it is reported
// against that record alone.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*r = Record{ClaimNumber: looseClaimNumber(data), decodeErr: decodeError(err)}
		return nil
	}
	*r = Record(p)
	return nil
}

func looseClaimNumber(data []byte) *string {
	var head struct {
		ClaimNumber json.RawMessage `json:"claimNumber"`
	}
	if err := json.Unmarshal(data, &head); err != nil || len(head.ClaimNumber) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(head.ClaimNumber, &s); err != nil || strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func decodeError(err error) error {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return apperr.Invalid(te.Field, "has the wrong type, want "+te.Type.String())
	}
	return apperr.Invalid("record", "must be a JSON object")
}

// Key identifies the record in error lists: the claim number when present,
// then the claim id, then the patient name.
func (r Record) Key() string {
	for _, s := range []*string{r.ClaimNumber, r.ClaimID, r.PatientName} {
		if s != nil && *s != "" {
			return *s
		}
	}
	return "unknown"
}

type ImportRequest struct {
	Filename *string  `json:"filename,omitempty"`
	Claims   []Record `json:"claims"`
}

// Match strategies, in priority order.
const (
	MatchByID     = "claim_id"
	MatchByNumber = "claim_number"
	MatchByName   = "patient_name"
)

type MatchedClaim struct {
	Index           int          `json:"index"`
	ClaimID         uuid.UUID    `json:"claimId"`
	ClaimNumber     string       `json:"claimNumber"`
	MatchedBy       string       `json:"matchedBy"`
	PaidAmountCents int64        `json:"paidAmountCents"`
	Status          claim.Status `json:"status"`
	Denied          bool         `json:"denied"`
	Paid            bool         `json:"paid"`
	Partial         bool         `json:"partial"`
}

type UnmatchedClaim struct {
	Index           int     `json:"index"`
	ClaimNumber     *string `json:"claimNumber,omitempty"`
	ClaimID         *string `json:"claimId,omitempty"`
	PatientName     *string `json:"patientName,omitempty"`
	ServiceDate     *string `json:"serviceDate,omitempty"`
	PaidAmountCents int64   `json:"paidAmountCents"`
	Reason          string  `json:"reason"`
}

type RecordError struct {
	Index       int    `json:"index"`
	ClaimNumber string `json:"claimNumber"`
	Error       string `json:"error"`
	Type        string `json:"type"`
}

// Summary totals are dollars; counts are records.
type Summary struct {
	TotalClaims      int             `json:"totalClaims"`
	Matched          int             `json:"matched"`
	AutoPosted       int             `json:"autoPosted"`
	Unmatched        int             `json:"unmatched"`
	Denied           int             `json:"denied"`
	PartialPayments  int             `json:"partialPayments"`
	TotalPaid        decimal.Decimal `json:"totalPaid"`
	TotalAdjustments decimal.Decimal `json:"totalAdjustments"`
}

type ImportResult struct {
	EraID           uuid.UUID        `json:"eraId"`
	Filename        string           `json:"filename"`
	Summary         Summary          `json:"summary"`
	MatchedClaims   []MatchedClaim   `json:"matchedClaims"`
	UnmatchedClaims []UnmatchedClaim `json:"unmatchedClaims"`
	Errors          []RecordError    `json:"errors,omitempty"`
}

type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Batch is the stored record of one import.
type Batch struct {
	ID                    uuid.UUID     `json:"id"`
	Filename              string        `json:"filename"`
	Status                BatchStatus   `json:"status"`
	TotalClaims           int           `json:"totalClaims"`
	Matched               int           `json:"matched"`
	AutoPosted            int           `json:"autoPosted"`
	Unmatched             int           `json:"unmatched"`
	Denied                int           `json:"denied"`
	PartialPayments       int           `json:"partialPayments"`
	ErrorCount            int           `json:"errorCount"`
	TotalPaidCents        int64         `json:"totalPaidCents"`
	TotalAdjustmentsCents int64         `json:"totalAdjustmentsCents"`
	FailureReason         *string       `json:"failureReason,omitempty"`
	Result                *ImportResult `json:"result,omitempty"`
	CreatedBy             string        `json:"createdBy"`
	CreatedAt             time.Time     `json:"createdAt"`
	CompletedAt           *time.Time    `json:"completedAt,omitempty"`
}
