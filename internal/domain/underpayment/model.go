package underpayment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/revcycle/internal/domain/claim"
)

// Baselines a line's expected amount can come from.
const (
	BasisFeeSchedule = "fee_schedule"
	BasisMedicare    = "medicare"
	BasisBilled      = "billed"
)

// DefaultThresholdPercent is the variance above which a claim is underpaid.
var DefaultThresholdPercent = decimal.NewFromInt(10)

const DefaultTopN = 50

type LineAnalysis struct {
	LineIndex     int    `json:"lineIndex"`
	CPT           string `json:"cpt"`
	Units         int    `json:"units"`
	Basis         string `json:"basis"`
	BilledCents   int64  `json:"billedCents"`
	BaselineCents int64  `json:"baselineCents"`
	ExpectedCents int64  `json:"expectedCents"`
	// PaidCents is an estimate: payments post at claim level and are split
	// across lines in proportion to expected amounts.
	PaidCents     int64 `json:"paidCents"`
	VarianceCents int64 `json:"varianceCents"`
}

type Analysis struct {
	ClaimID         uuid.UUID        `json:"claimId"`
	ClaimNumber     string           `json:"claimNumber"`
	Status          claim.Status     `json:"status"`
	PayerID         *string          `json:"payerId,omitempty"`
	PayerName       *string          `json:"payerName,omitempty"`
	ServiceDate     *time.Time       `json:"serviceDate,omitempty"`
	ContractPercent *decimal.Decimal `json:"contractPercent,omitempty"`
	BilledCents     int64            `json:"billedCents"`
	ExpectedCents   int64            `json:"expectedCents"`
	PaidCents       int64            `json:"paidCents"`
	VarianceCents   int64            `json:"varianceCents"`
	VariancePercent decimal.Decimal  `json:"variancePercent"`
	IsUnderpaid     bool             `json:"isUnderpaid"`
	Lines           []LineAnalysis   `json:"lines"`
}

type Summary struct {
	Count                  int             `json:"count"`
	TotalUnderpaymentCents int64           `json:"totalUnderpaymentCents"`
	AverageVariancePercent decimal.Decimal `json:"averageVariancePercent"`
}

type Report struct {
	ThresholdPercent decimal.Decimal `json:"thresholdPercent"`
	Scanned          int             `json:"scanned"`
	Claims           []Analysis      `json:"claims"`
	Summary          Summary         `json:"summary"`
	GeneratedAt      time.Time       `json:"generatedAt"`
}

type FlagStatus string

const (
	FlagPending   FlagStatus = "pending"
	FlagResolved  FlagStatus = "resolved"
	FlagDismissed FlagStatus = "dismissed"
)

func (s FlagStatus) Valid() bool {
	return s == FlagPending || s == FlagResolved || s == FlagDismissed
}

// Flag marks a claim for underpayment follow-up with the figures at the
// time it was raised.
type Flag struct {
	ID                  uuid.UUID       `json:"id"`
	ClaimID             uuid.UUID       `json:"claimId"`
	ClaimNumber         string          `json:"claimNumber"`
	ExpectedAmountCents int64           `json:"expectedAmountCents"`
	ActualPaidCents     int64           `json:"actualPaidCents"`
	VariancePercent     decimal.Decimal `json:"variancePercent"`
	Status              FlagStatus      `json:"status"`
	Notes               *string         `json:"notes,omitempty"`
	CreatedBy           string          `json:"createdBy"`
	CreatedAt           time.Time       `json:"createdAt"`
	ResolvedAt          *time.Time      `json:"resolvedAt,omitempty"`
}

type FlagRequest struct {
	Notes *string `json:"notes"`
}

type ResolveRequest struct {
	Status FlagStatus `json:"status"`
	Notes  *string    `json:"notes"`
}
