package claim

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/revcycle/pkg/money"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScrubbed  Status = "scrubbed"
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusDenied    Status = "denied"
	StatusAppealed  Status = "appealed"
	StatusPaid      Status = "paid"
)

type LineItem struct {
	CPT         string       `json:"cpt"`
	Modifiers   []string     `json:"modifiers"`
	Dx          []string     `json:"dx"`
	Units       int          `json:"units"`
	Charge      money.Amount `json:"charge"`
	Description *string      `json:"description,omitempty"`
}

// Total is charge × units in cents.
func (l LineItem) Total() int64 {
	return money.MulUnits(l.Charge.Cents(), l.Units)
}

func (l LineItem) HasModifier(m string) bool {
	for _, have := range l.Modifiers {
		if strings.EqualFold(have, m) {
			return true
		}
	}
	return false
}

type Claim struct {
	ID                    uuid.UUID    `json:"id"`
	TenantID              string       `json:"tenantId"`
	ClaimNumber           string       `json:"claimNumber"`
	EncounterID           *uuid.UUID   `json:"encounterId"`
	PatientID             uuid.UUID    `json:"patientId"`
	TotalCharges          money.Amount `json:"totalCharges"`
	PaidAmount            money.Amount `json:"paidAmount"`
	PatientResponsibility money.Amount `json:"patientResponsibility"`
	Status                Status       `json:"status"`
	Payer                 *string      `json:"payer"`
	PayerID               *string      `json:"payerId"`
	PayerName             *string      `json:"payerName"`
	ServiceDate           *time.Time   `json:"serviceDate"`
	DiagnosisCodes        []string     `json:"diagnosisCodes"`
	LineItems             []LineItem   `json:"lineItems"`

	ScrubStatus    *ScrubStatus `json:"scrubStatus"`
	ScrubErrors    []Issue      `json:"scrubErrors"`
	ScrubWarnings  []Issue      `json:"scrubWarnings"`
	ScrubInfo      []Issue      `json:"scrubInfo"`
	LastScrubbedAt *time.Time   `json:"lastScrubbedAt"`

	IsCosmetic     bool    `json:"isCosmetic"`
	CosmeticReason *string `json:"cosmeticReason"`

	DenialReason      *string    `json:"denialReason"`
	DenialCode        *string    `json:"denialCode"`
	DenialDate        *time.Time `json:"denialDate"`
	DenialCategory    *string    `json:"denialCategory"`
	AppealStatus      *string    `json:"appealStatus"`
	AppealNotes       *string    `json:"appealNotes"`
	AppealSubmittedAt *time.Time `json:"appealSubmittedAt"`

	VersionID int       `json:"versionId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ComputeTotal is Σ charge × units over the line items, in cents.
func (c *Claim) ComputeTotal() int64 {
	var total int64
	for _, li := range c.LineItems {
		total += li.Total()
	}
	return total
}

// PayerKey returns payerId and payerName with nils flattened.
func (c *Claim) PayerKey() (string, string) {
	return deref(c.PayerID), deref(c.PayerName)
}

// Clone returns a deep copy. Engines work on clones so the stored snapshot
// never changes under them.
func (c *Claim) Clone() *Claim {
	cp := *c
	cp.DiagnosisCodes = append([]string(nil), c.DiagnosisCodes...)
	cp.LineItems = make([]LineItem, len(c.LineItems))
	for i, li := range c.LineItems {
		li.Modifiers = append([]string(nil), li.Modifiers...)
		li.Dx = append([]string(nil), li.Dx...)
		cp.LineItems[i] = li
	}
	cp.ScrubErrors = append([]Issue(nil), c.ScrubErrors...)
	cp.ScrubWarnings = append([]Issue(nil), c.ScrubWarnings...)
	cp.ScrubInfo = append([]Issue(nil), c.ScrubInfo...)
	return &cp
}

func (c *Claim) clearScrub() {
	c.ScrubStatus = nil
	c.ScrubErrors = nil
	c.ScrubWarnings = nil
	c.ScrubInfo = nil
	c.LastScrubbedAt = nil
}

func (c *Claim) applyScrub(r ScrubResult, at time.Time) {
	st := r.Status
	c.ScrubStatus = &st
	c.ScrubErrors = r.Errors
	c.ScrubWarnings = r.Warnings
	c.ScrubInfo = r.Info
	c.LastScrubbedAt = &at
}

type Payment struct {
	ID            uuid.UUID    `json:"id"`
	ClaimID       uuid.UUID    `json:"claimId"`
	AmountCents   int64        `json:"amountCents"`
	Amount        money.Amount `json:"amount"`
	PaymentDate   time.Time    `json:"paymentDate"`
	PaymentMethod *string      `json:"paymentMethod,omitempty"`
	Payer         *string      `json:"payer,omitempty"`
	CheckNumber   *string      `json:"checkNumber,omitempty"`
	EraBatchID    *uuid.UUID   `json:"eraBatchId,omitempty"`
	CreatedBy     string       `json:"createdBy"`
	CreatedAt     time.Time    `json:"createdAt"`
}

type Adjustment struct {
	ID          uuid.UUID  `json:"id"`
	ClaimID     uuid.UUID  `json:"claimId"`
	Code        string     `json:"code"`
	Reason      *string    `json:"reason,omitempty"`
	AmountCents int64      `json:"amountCents"`
	EraBatchID  *uuid.UUID `json:"eraBatchId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type StatusHistoryEntry struct {
	ID        uuid.UUID `json:"id"`
	ClaimID   uuid.UUID `json:"claimId"`
	Status    Status    `json:"status"`
	Notes     *string   `json:"notes,omitempty"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
}

// -- Scrub results --

type ScrubStatus string

const (
	ScrubClean    ScrubStatus = "clean"
	ScrubWarnings ScrubStatus = "warnings"
	ScrubErrors   ScrubStatus = "errors"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Issue struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Severity    Severity               `json:"severity"`
	AutoFixable bool                   `json:"autoFixable"`
	LineIndex   *int                   `json:"lineIndex,omitempty"`
	Field       string                 `json:"field,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

type ScrubResult struct {
	Status   ScrubStatus `json:"status"`
	Errors   []Issue     `json:"errors"`
	Warnings []Issue     `json:"warnings"`
	Info     []Issue     `json:"info"`
}

// ScrubOutcome is what ScrubClaim returns: the persisted claim, the final
// result and the fixes applied on the way.
type ScrubOutcome struct {
	Claim   *Claim      `json:"claim"`
	Result  ScrubResult `json:"result"`
	Applied []Issue     `json:"applied"`
}

type ModifierSuggestion struct {
	LineIndex  int     `json:"lineIndex"`
	CPT        string  `json:"cpt"`
	Modifier   string  `json:"modifier"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
	RuleID     string  `json:"ruleId"`
	Required   bool    `json:"required"`
}

// -- Requests --

type CreateRequest struct {
	PatientID      uuid.UUID  `json:"patientId"`
	EncounterID    *uuid.UUID `json:"encounterId"`
	Payer          *string    `json:"payer"`
	PayerID        *string    `json:"payerId"`
	PayerName      *string    `json:"payerName"`
	ServiceDate    *Date      `json:"serviceDate"`
	DiagnosisCodes []string   `json:"diagnosisCodes"`
	LineItems      []LineItem `json:"lineItems"`
	IsCosmetic     bool       `json:"isCosmetic"`
	CosmeticReason *string    `json:"cosmeticReason"`
}

// UpdateRequest carries header fields and, when LineItems is non-nil, a full
// replacement of the line items.
type UpdateRequest struct {
	VersionID      *int        `json:"versionId"`
	EncounterID    *uuid.UUID  `json:"encounterId"`
	Payer          *string     `json:"payer"`
	PayerID        *string     `json:"payerId"`
	PayerName      *string     `json:"payerName"`
	ServiceDate    *Date       `json:"serviceDate"`
	DiagnosisCodes []string    `json:"diagnosisCodes"`
	LineItems      *[]LineItem `json:"lineItems"`
	IsCosmetic     *bool       `json:"isCosmetic"`
	CosmeticReason *string     `json:"cosmeticReason"`
}

type TransitionRequest struct {
	Status       Status  `json:"status"`
	Notes        *string `json:"notes"`
	DenialCode   *string `json:"denialCode"`
	DenialReason *string `json:"denialReason"`
	DenialDate   *Date   `json:"denialDate"`
}

type PaymentRequest struct {
	AmountCents   int64   `json:"amountCents"`
	PaymentDate   *Date   `json:"paymentDate"`
	PaymentMethod *string `json:"paymentMethod"`
	Payer         *string `json:"payer"`
	CheckNumber   *string `json:"checkNumber"`
}

type BulkSubmitRequest struct {
	ClaimIDs []uuid.UUID `json:"claimIds"`
}

// Filter narrows ListClaims. Zero values are ignored.
type Filter struct {
	Status          Status
	PatientID       uuid.UUID
	PayerID         string
	ServiceDateFrom *time.Time
	ServiceDateTo   *time.Time
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	return &s
}
