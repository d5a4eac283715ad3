package claim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/audit"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
	"github.com/ehr/revcycle/internal/platform/events"
	"github.com/ehr/revcycle/internal/platform/idgen"
	"github.com/ehr/revcycle/pkg/batch"
	"github.com/ehr/revcycle/pkg/money"
)

// Scrubber validates a claim snapshot against a catalog rule set.
type Scrubber interface {
	Scrub(c *Claim, rs *catalog.RuleSet, now time.Time) ScrubResult
	// AutoFix repeatedly applies fixable issues to c and re-scrubs until
	// nothing fixable remains. c is modified in place.
	AutoFix(c *Claim, rs *catalog.RuleSet, now time.Time) (ScrubResult, []Issue)
	PassedChecks(c *Claim, rs *catalog.RuleSet, now time.Time) []string
}

// Advisor suggests coding modifiers for a claim.
type Advisor interface {
	Suggest(c *Claim, rs *catalog.RuleSet) []ModifierSuggestion
}

// AppealCloser settles a claim's open appeal round when a remittance decides
// the claim outside the appeal workflow.
type AppealCloser interface {
	CloseOpenAppeal(ctx context.Context, claimID uuid.UUID, outcome string, decided time.Time) error
}

const (
	PaymentMethodERA    = "ERA"
	PaymentMethodAppeal = "Appeal Payment"
)

type Deps struct {
	Claims   Repository
	Ledger   LedgerRepository
	History  HistoryRepository
	Tx       db.TxRunner
	IDs      idgen.Generator
	Catalog  catalog.Store
	Scrubber Scrubber
	Advisor  Advisor
	Appeals  AppealCloser
	Events   events.Emitter
	Audit    audit.Sink
	Logger   zerolog.Logger
	Now      func() time.Time
}

type Service struct {
	claims   Repository
	ledger   LedgerRepository
	history  HistoryRepository
	tx       db.TxRunner
	ids      idgen.Generator
	catalog  catalog.Store
	scrubber Scrubber
	advisor  Advisor
	appeals  AppealCloser
	events   events.Emitter
	audit    audit.Sink
	logger   zerolog.Logger
	clock    func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		claims: d.Claims, ledger: d.Ledger, history: d.History, tx: d.Tx, ids: d.IDs,
		catalog: d.Catalog, scrubber: d.Scrubber, advisor: d.Advisor, appeals: d.Appeals,
		events: d.Events, audit: d.Audit, logger: d.Logger, clock: d.Now,
	}
	if s.tx == nil {
		s.tx = db.NopTxRunner{}
	}
	if s.ids == nil {
		s.ids = idgen.NewUUIDGenerator()
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }

func today(t time.Time) time.Time {
	return NewDate(t).Time
}

// -- Create / read / update --

func (s *Service) CreateClaim(ctx context.Context, req CreateRequest) (*Claim, error) {
	f := apperr.Fields{}
	if req.PatientID == uuid.Nil {
		f.Add("patientId", "is required")
	}
	if req.IsCosmetic && strings.TrimSpace(deref(req.CosmeticReason)) == "" {
		f.Add("cosmeticReason", "is required when isCosmetic is true")
	}
	validateLines(f, req.LineItems)
	if err := f.Err(); err != nil {
		return nil, err
	}

	c := &Claim{
		ID:             s.ids.NewID(),
		TenantID:       db.TenantFromContext(ctx),
		ClaimNumber:    s.ids.NewClaimNumber(),
		EncounterID:    req.EncounterID,
		PatientID:      req.PatientID,
		Status:         StatusDraft,
		Payer:          req.Payer,
		PayerID:        req.PayerID,
		PayerName:      req.PayerName,
		ServiceDate:    req.ServiceDate.Ptr(),
		DiagnosisCodes: normalizeCodes(req.DiagnosisCodes),
		LineItems:      normalizeLines(req.LineItems),
		IsCosmetic:     req.IsCosmetic,
		CosmeticReason: req.CosmeticReason,
	}
	c.TotalCharges = money.Cents(c.ComputeTotal())

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.claims.Create(ctx, c); err != nil {
			return s.storeErr(ctx, "create claim", c.ID, err)
		}
		return s.appendHistory(ctx, c, "Claim created")
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, c, events.ClaimCreated, nil)
	audit.Record(ctx, s.audit, s.logger, audit.ActionCreate, "claim", c.ID.String())
	return c, nil
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "load claim", id, err)
	}
	return c, nil
}

func (s *Service) GetClaimByNumber(ctx context.Context, number string) (*Claim, error) {
	c, err := s.claims.GetByNumber(ctx, number)
	if err != nil {
		return nil, s.storeErr(ctx, "load claim", uuid.Nil, err)
	}
	return c, nil
}

func (s *Service) ListClaims(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Invalid("status", "unknown status "+string(f.Status))
	}
	items, total, err := s.claims.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, s.storeErr(ctx, "list claims", uuid.Nil, err)
	}
	return items, total, nil
}

// UpdateClaim edits an unsubmitted claim. Any change to a scrub input clears
// the cached scrub result and returns a scrubbed or ready claim to draft.
func (s *Service) UpdateClaim(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Claim, error) {
	f := apperr.Fields{}
	if req.LineItems != nil {
		validateLines(f, *req.LineItems)
	}
	if err := f.Err(); err != nil {
		return nil, err
	}

	var (
		out  *Claim
		from Status
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.Editable() {
			return apperr.Conflict("claim %s cannot be edited in status %s", c.ClaimNumber, c.Status)
		}
		if req.VersionID != nil && *req.VersionID != c.VersionID {
			return apperr.Conflict("claim %s was modified by another request; reload and retry", c.ClaimNumber)
		}

		scrubInputs := false
		if req.EncounterID != nil {
			c.EncounterID = req.EncounterID
		}
		if req.Payer != nil {
			c.Payer = req.Payer
		}
		if req.PayerID != nil {
			c.PayerID, scrubInputs = req.PayerID, true
		}
		if req.PayerName != nil {
			c.PayerName, scrubInputs = req.PayerName, true
		}
		if req.ServiceDate != nil {
			c.ServiceDate, scrubInputs = req.ServiceDate.Ptr(), true
		}
		if req.DiagnosisCodes != nil {
			c.DiagnosisCodes, scrubInputs = normalizeCodes(req.DiagnosisCodes), true
		}
		if req.LineItems != nil {
			c.LineItems, scrubInputs = normalizeLines(*req.LineItems), true
			c.TotalCharges = money.Cents(c.ComputeTotal())
		}
		if req.IsCosmetic != nil {
			c.IsCosmetic, scrubInputs = *req.IsCosmetic, true
		}
		if req.CosmeticReason != nil {
			c.CosmeticReason, scrubInputs = req.CosmeticReason, true
		}

		from = c.Status
		if scrubInputs {
			c.clearScrub()
			c.Status = StatusDraft
		}
		if err := s.claims.Update(ctx, c); err != nil {
			return s.storeErr(ctx, "update claim", c.ID, err)
		}
		if c.Status != from {
			if err := s.appendHistory(ctx, c, "Claim edited; returned to draft for re-scrub"); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, out, events.ClaimUpdated, nil)
	s.emitTransition(ctx, out, from)
	audit.Record(ctx, s.audit, s.logger, audit.ActionUpdate, "claim", out.ID.String())
	return out, nil
}

// -- Status machine --

// TransitionStatus applies a manual transition. Moving to the current status
// is a no-op.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, req TransitionRequest) (*Claim, error) {
	if req.Status == "" {
		return nil, apperr.Invalid("status", "is required")
	}
	var (
		out  *Claim
		from Status
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		out, from = c, c.Status
		if c.Status == req.Status {
			return nil
		}
		if err := CanTransition(c.Status, req.Status); err != nil {
			return err
		}
		if err := checkGuards(c, req.Status); err != nil {
			return err
		}
		if req.Status == StatusDenied {
			denialDate := req.DenialDate.Ptr()
			if denialDate == nil {
				d := today(s.now())
				denialDate = &d
			}
			c.setDenial(deref(req.DenialCode), deref(req.DenialReason), *denialDate)
		}
		return s.setStatus(ctx, c, req.Status, deref(req.Notes))
	})
	if err != nil {
		return nil, err
	}

	if out.Status != from {
		s.emitTransition(ctx, out, from)
		audit.Record(ctx, s.audit, s.logger, audit.ActionStatus, "claim", out.ID.String())
	}
	return out, nil
}

func (s *Service) SubmitClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.TransitionStatus(ctx, id, TransitionRequest{Status: StatusSubmitted})
}

// SubmitClaims submits each claim independently and in order. One claim's
// failure never affects the others.
func (s *Service) SubmitClaims(ctx context.Context, ids []uuid.UUID) batch.Result[uuid.UUID, *Claim] {
	return batch.Run(ids, func(id uuid.UUID) (*Claim, error) {
		return s.SubmitClaim(ctx, id)
	})
}

// -- Ledger --

type PaymentResult struct {
	Claim   *Claim   `json:"claim"`
	Payment *Payment `json:"payment"`
}

// PostPayment records a payment and marks the claim paid once postings
// cover total charges.
func (s *Service) PostPayment(ctx context.Context, id uuid.UUID, req PaymentRequest) (*PaymentResult, error) {
	if req.AmountCents <= 0 {
		return nil, apperr.Invalid("amountCents", "must be greater than 0")
	}
	var (
		res  PaymentResult
		from Status
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if c.Status == StatusPaid {
			return apperr.Conflict("claim %s is already paid", c.ClaimNumber)
		}
		from = c.Status

		p := s.newPayment(ctx, c, req.AmountCents, req.PaymentDate.Ptr())
		p.PaymentMethod, p.Payer, p.CheckNumber = req.PaymentMethod, req.Payer, req.CheckNumber
		if err := s.post(ctx, c, p); err != nil {
			return err
		}
		note := fmt.Sprintf("Payment of %s posted", money.Cents(p.AmountCents))
		if err := s.settle(ctx, c, note); err != nil {
			return err
		}
		res = PaymentResult{Claim: c, Payment: p}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, res.Claim, events.ClaimPaymentReceived, map[string]interface{}{
		"amount_cents": res.Payment.AmountCents,
		"paid_cents":   res.Claim.PaidAmount.Cents(),
	})
	s.emitTransition(ctx, res.Claim, from)
	audit.Record(ctx, s.audit, s.logger, audit.ActionPost, "claim", id.String())
	return &res, nil
}

// Remittance is one ERA record already matched to a claim.
type Remittance struct {
	PaidCents                  int64
	PaymentDate                *time.Time
	Payer                      *string
	CheckNumber                *string
	DenialCode                 *string
	DenialReason               *string
	PatientResponsibilityCents *int64
	Adjustments                []Adjustment
	BatchID                    *uuid.UUID
}

type RemittanceOutcome struct {
	Claim   *Claim
	Posted  bool
	Denied  bool
	Paid    bool
	Partial bool
}

// ApplyRemittance posts a remittance in one transaction. A denial code wins
// over any payment on the same record.
func (s *Service) ApplyRemittance(ctx context.Context, id uuid.UUID, r Remittance) (*RemittanceOutcome, error) {
	if r.PaidCents < 0 {
		return nil, apperr.Invalid("paidAmountCents", "must not be negative")
	}
	var (
		out  RemittanceOutcome
		from Status
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if c.Status == StatusPaid {
			return apperr.Conflict("claim %s is already paid", c.ClaimNumber)
		}
		denial := strings.TrimSpace(deref(r.DenialCode))
		if denial != "" && !c.Status.OpenForPayment() && c.Status != StatusDenied {
			return apperr.Conflict("claim %s cannot be denied in status %s", c.ClaimNumber, c.Status)
		}
		from = c.Status

		if r.PaidCents > 0 {
			p := s.newPayment(ctx, c, r.PaidCents, r.PaymentDate)
			p.PaymentMethod, p.Payer, p.CheckNumber, p.EraBatchID = strPtr(PaymentMethodERA), r.Payer, r.CheckNumber, r.BatchID
			if err := s.post(ctx, c, p); err != nil {
				return err
			}
			out.Posted = true
		}
		for i := range r.Adjustments {
			a := r.Adjustments[i]
			a.ID, a.ClaimID, a.EraBatchID = s.ids.NewID(), c.ID, r.BatchID
			if err := s.ledger.AddAdjustment(ctx, &a); err != nil {
				return s.storeErr(ctx, "record adjustment", c.ID, err)
			}
		}
		if r.PatientResponsibilityCents != nil {
			c.PatientResponsibility = money.Cents(*r.PatientResponsibilityCents)
		}

		day := today(s.now())
		if r.PaymentDate != nil {
			day = today(*r.PaymentDate)
		}
		switch {
		case denial != "":
			c.setDenial(denial, deref(r.DenialReason), day)
			c.Status = StatusDenied
			out.Denied = true
		case c.TotalCharges > 0 && c.PaidAmount >= c.TotalCharges:
			c.Status = StatusPaid
			out.Paid = true
		default:
			out.Partial = out.Posted
		}
		if from == StatusAppealed && (out.Denied || out.Paid) {
			outcome := OutcomeApproved
			if out.Denied {
				outcome = OutcomeDenied
			}
			c.AppealStatus = &outcome
			if s.appeals != nil {
				if err := s.appeals.CloseOpenAppeal(ctx, c.ID, outcome, day); err != nil {
					return s.storeErr(ctx, "close appeal", c.ID, err)
				}
			}
		}

		if err := s.claims.Update(ctx, c); err != nil {
			return s.storeErr(ctx, "apply remittance", c.ID, err)
		}
		if err := s.appendHistory(ctx, c, "ERA auto-post"); err != nil {
			return err
		}
		out.Claim = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Posted {
		s.emit(ctx, out.Claim, events.ClaimPaymentReceived, map[string]interface{}{
			"amount_cents": r.PaidCents,
			"source":       "era",
		})
	}
	s.emitTransition(ctx, out.Claim, from)
	return &out, nil
}

func (s *Service) ListPayments(ctx context.Context, id uuid.UUID) ([]*Payment, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.ledger.ListPayments(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "list payments", id, err)
	}
	return items, nil
}

func (s *Service) ListAdjustments(ctx context.Context, id uuid.UUID) ([]*Adjustment, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.ledger.ListAdjustments(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "list adjustments", id, err)
	}
	return items, nil
}

func (s *Service) ListStatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusHistoryEntry, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.history.List(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "list status history", id, err)
	}
	return items, nil
}

// -- Appeals --

// EnterAppeal moves a denied claim, or an appealed claim whose last appeal
// was denied, into appealed. The caller checks appeal history.
func (s *Service) EnterAppeal(ctx context.Context, id uuid.UUID, notes string) (*Claim, error) {
	var (
		out  *Claim
		from Status
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusDenied && c.Status != StatusAppealed {
			return apperr.Conflict("claim %s must be denied to appeal, status is %s", c.ClaimNumber, c.Status)
		}
		from = c.Status
		now := s.now()
		c.AppealStatus = strPtr("submitted")
		c.AppealSubmittedAt = &now
		if notes != "" {
			c.AppealNotes = &notes
		}
		note := "Appeal submitted"
		if from == StatusAppealed {
			note = "Re-appeal submitted"
		}
		if err := s.setStatus(ctx, c, StatusAppealed, note); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != StatusAppealed {
		s.emitTransition(ctx, out, from)
	} else {
		s.emit(ctx, out, events.ClaimStatusChanged, map[string]interface{}{"from": string(from)})
	}
	audit.Record(ctx, s.audit, s.logger, audit.ActionAppeal, "claim", id.String())
	return out, nil
}

// Appeal outcomes.
const (
	OutcomeApproved = "approved"
	OutcomePartial  = "partial"
	OutcomeDenied   = "denied"
)

// ResolveAppeal applies an appeal decision. approved and partial accept the
// claim and post the approved amount; approved without an amount posts the
// full charge.
func (s *Service) ResolveAppeal(ctx context.Context, id uuid.UUID, outcome string, approvedCents *int64, notes string) (*Claim, *Payment, error) {
	switch outcome {
	case OutcomeApproved, OutcomeDenied:
	case OutcomePartial:
		if approvedCents == nil {
			return nil, nil, apperr.Invalid("approvedAmountCents", "is required for a partial approval")
		}
	default:
		return nil, nil, apperr.Invalid("outcome", "must be approved, partial or denied")
	}
	if approvedCents != nil && *approvedCents <= 0 {
		return nil, nil, apperr.Invalid("approvedAmountCents", "must be greater than 0")
	}

	var (
		out     *Claim
		payment *Payment
		from    Status
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusAppealed {
			return apperr.Conflict("claim %s has no appeal in progress", c.ClaimNumber)
		}
		from = c.Status
		c.AppealStatus = &outcome
		if notes != "" {
			c.AppealNotes = &notes
		}

		if outcome == OutcomeDenied {
			if err := s.setStatus(ctx, c, StatusDenied, "Appeal denied"); err != nil {
				return err
			}
			out = c
			return nil
		}

		if err := s.setStatus(ctx, c, StatusAccepted, "Appeal "+outcome); err != nil {
			return err
		}
		amount := c.TotalCharges.Cents()
		if approvedCents != nil {
			amount = *approvedCents
		}
		if amount > 0 {
			payment = s.newPayment(ctx, c, amount, nil)
			payment.PaymentMethod = strPtr(PaymentMethodAppeal)
			if err := s.post(ctx, c, payment); err != nil {
				return err
			}
			if err := s.settle(ctx, c, ""); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if payment != nil {
		s.emit(ctx, out, events.ClaimPaymentReceived, map[string]interface{}{
			"amount_cents": payment.AmountCents,
			"source":       "appeal",
		})
	}
	s.emitTransition(ctx, out, from)
	return out, payment, nil
}

// -- Scrub and modifiers --

// ScrubClaim runs the scrub engine on the stored claim and caches the
// result. The first scrub of a draft moves it to scrubbed.
func (s *Service) ScrubClaim(ctx context.Context, id uuid.UUID, autoFix bool) (*ScrubOutcome, error) {
	rs, err := s.ruleSet(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out  ScrubOutcome
		from Status
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !c.Status.Editable() {
			return apperr.Conflict("claim %s cannot be scrubbed in status %s", c.ClaimNumber, c.Status)
		}
		from = c.Status
		now := s.now()

		work := c.Clone()
		var result ScrubResult
		if autoFix {
			result, out.Applied = s.scrubber.AutoFix(work, rs, now)
		} else {
			result = s.scrubber.Scrub(work, rs, now)
		}
		work.applyScrub(result, now)
		if work.Status == StatusDraft {
			work.Status = StatusScrubbed
		}
		if err := s.claims.Update(ctx, work); err != nil {
			return s.storeErr(ctx, "save scrub result", c.ID, err)
		}
		if work.Status != from {
			if err := s.appendHistory(ctx, work, fmt.Sprintf("Claim scrubbed: %s", result.Status)); err != nil {
				return err
			}
		}
		out.Claim, out.Result = work, result
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Applied == nil {
		out.Applied = []Issue{}
	}
	s.emitTransition(ctx, out.Claim, from)
	return &out, nil
}

func (s *Service) GetPassedChecks(ctx context.Context, id uuid.UUID) ([]string, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	rs, err := s.ruleSet(ctx)
	if err != nil {
		return nil, err
	}
	return s.scrubber.PassedChecks(c, rs, s.now()), nil
}

func (s *Service) SuggestModifiers(ctx context.Context, id uuid.UUID) ([]ModifierSuggestion, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	rs, err := s.ruleSet(ctx)
	if err != nil {
		return nil, err
	}
	return s.advisor.Suggest(c, rs), nil
}

// -- internals --

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, "load claim", id, err)
	}
	return c, nil
}

func (s *Service) ruleSet(ctx context.Context) (*catalog.RuleSet, error) {
	rs, err := s.catalog.RuleSet(ctx)
	if err != nil {
		return nil, s.storeErr(ctx, "load code catalogs", uuid.Nil, err)
	}
	return rs, nil
}

func (s *Service) newPayment(ctx context.Context, c *Claim, cents int64, date *time.Time) *Payment {
	day := today(s.now())
	if date != nil {
		day = today(*date)
	}
	return &Payment{
		ID:          s.ids.NewID(),
		ClaimID:     c.ID,
		AmountCents: cents,
		Amount:      money.Cents(cents),
		PaymentDate: day,
		CreatedBy:   auth.ActorFromContext(ctx),
	}
}

// post inserts p and refreshes the claim's paid total from the ledger.
func (s *Service) post(ctx context.Context, c *Claim, p *Payment) error {
	if err := s.ledger.AddPayment(ctx, p); err != nil {
		return s.storeErr(ctx, "post payment", c.ID, err)
	}
	sum, err := s.ledger.SumPayments(ctx, c.ID)
	if err != nil {
		return s.storeErr(ctx, "sum payments", c.ID, err)
	}
	c.PaidAmount = money.Cents(sum)
	return nil
}

// settle persists c, flipping it to paid when postings cover the charges.
// A history entry is written when the status changes, or with note when
// note is set.
func (s *Service) settle(ctx context.Context, c *Claim, note string) error {
	from := c.Status
	if c.PaidAmount >= c.TotalCharges {
		c.Status = StatusPaid
		if note == "" {
			note = "Paid in full"
		} else {
			note += "; paid in full"
		}
	}
	if err := s.claims.Update(ctx, c); err != nil {
		return s.storeErr(ctx, "update claim", c.ID, err)
	}
	if c.Status != from || note != "" {
		return s.appendHistory(ctx, c, note)
	}
	return nil
}

func (s *Service) setStatus(ctx context.Context, c *Claim, to Status, note string) error {
	c.Status = to
	if err := s.claims.Update(ctx, c); err != nil {
		return s.storeErr(ctx, "update claim status", c.ID, err)
	}
	return s.appendHistory(ctx, c, note)
}

func (s *Service) appendHistory(ctx context.Context, c *Claim, note string) error {
	h := &StatusHistoryEntry{
		ID:        s.ids.NewID(),
		ClaimID:   c.ID,
		Status:    c.Status,
		ChangedBy: auth.ActorFromContext(ctx),
		ChangedAt: s.now(),
	}
	if note != "" {
		h.Notes = &note
	}
	if err := s.history.Append(ctx, h); err != nil {
		return s.storeErr(ctx, "record status history", c.ID, err)
	}
	return nil
}

// storeErr passes taxonomy errors through and wraps anything else as a
// persistence failure, logging the driver error here.
func (s *Service) storeErr(ctx context.Context, op string, claimID uuid.UUID, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	ev := s.logger.Error().Err(err).
		Str("tenant_id", db.TenantFromContext(ctx)).
		Str("op", op)
	if claimID != uuid.Nil {
		ev = ev.Str("claim_id", claimID.String())
	}
	ev.Msg("persistence failure")
	return apperr.Persistence(op, err)
}

func (s *Service) emit(ctx context.Context, c *Claim, t events.Type, data map[string]interface{}) {
	s.events.Emit(ctx, events.Event{
		ID:          s.ids.NewID(),
		Type:        t,
		TenantID:    c.TenantID,
		ClaimID:     c.ID,
		ClaimNumber: c.ClaimNumber,
		Status:      string(c.Status),
		Data:        data,
		OccurredAt:  s.now(),
	})
}

// emitTransition publishes status_changed and the status specific event when
// c moved away from from.
func (s *Service) emitTransition(ctx context.Context, c *Claim, from Status) {
	if c == nil || c.Status == from {
		return
	}
	s.emit(ctx, c, events.ClaimStatusChanged, map[string]interface{}{"from": string(from)})
	switch c.Status {
	case StatusSubmitted:
		s.emit(ctx, c, events.ClaimSubmitted, nil)
	case StatusDenied:
		s.emit(ctx, c, events.ClaimDenied, map[string]interface{}{"denial_code": deref(c.DenialCode)})
	case StatusPaid:
		s.emit(ctx, c, events.ClaimPaid, map[string]interface{}{"paid_cents": c.PaidAmount.Cents()})
	}
}

func (c *Claim) setDenial(code, reason string, day time.Time) {
	if code != "" {
		c.DenialCode = &code
		c.DenialCategory = strPtr(DenialCategory(code))
	}
	if reason != "" {
		c.DenialReason = &reason
	}
	c.DenialDate = &day
}

func validateLines(f apperr.Fields, lines []LineItem) {
	for i, li := range lines {
		key := fmt.Sprintf("lineItems[%d]", i)
		if strings.TrimSpace(li.CPT) == "" {
			f.Add(key+".cpt", "is required")
		}
		if li.Units <= 0 {
			f.Add(key+".units", "must be greater than 0")
		}
		if li.Charge <= 0 {
			f.Add(key+".charge", "must be greater than 0")
		}
	}
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			out = append(out, code)
		}
	}
	return out
}

func normalizeLines(lines []LineItem) []LineItem {
	out := make([]LineItem, len(lines))
	for i, li := range lines {
		li.CPT = strings.ToUpper(strings.TrimSpace(li.CPT))
		li.Modifiers = normalizeCodes(li.Modifiers)
		li.Dx = normalizeCodes(li.Dx)
		out[i] = li
	}
	return out
}
