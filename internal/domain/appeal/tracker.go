// Package appeal tracks appeal rounds for denied claims: submission with a
// rendered letter and deadline, outcomes that drive the claim back to
// accepted or denied, and the deadline worklist.
package appeal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/audit"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
	"github.com/ehr/revcycle/internal/platform/idgen"
)

// ClaimWorkflow is the part of the claim service appeals drive.
type ClaimWorkflow interface {
	GetClaim(ctx context.Context, id uuid.UUID) (*claim.Claim, error)
	EnterAppeal(ctx context.Context, id uuid.UUID, notes string) (*claim.Claim, error)
	ResolveAppeal(ctx context.Context, id uuid.UUID, outcome string, approvedCents *int64, notes string) (*claim.Claim, *claim.Payment, error)
}

type Deps struct {
	Claims       ClaimWorkflow
	Appeals      Repository
	Tx           db.TxRunner
	Templates    *Templates
	IDs          idgen.Generator
	Audit        audit.Sink
	Logger       zerolog.Logger
	DeadlineDays int
	Now          func() time.Time
}

type Tracker struct {
	claims       ClaimWorkflow
	appeals      Repository
	tx           db.TxRunner
	templates    *Templates
	ids          idgen.Generator
	audit        audit.Sink
	logger       zerolog.Logger
	deadlineDays int
	clock        func() time.Time
}

func NewTracker(d Deps) *Tracker {
	t := &Tracker{
		claims: d.Claims, appeals: d.Appeals, tx: d.Tx, templates: d.Templates,
		ids: d.IDs, audit: d.Audit, logger: d.Logger,
		deadlineDays: d.DeadlineDays, clock: d.Now,
	}
	if t.tx == nil {
		t.tx = db.NopTxRunner{}
	}
	if t.templates == nil {
		t.templates = DefaultTemplates()
	}
	if t.ids == nil {
		t.ids = idgen.NewUUIDGenerator()
	}
	if t.deadlineDays <= 0 {
		t.deadlineDays = DefaultDeadlineDays
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	return t
}

func (t *Tracker) today() time.Time {
	return claim.NewDate(t.clock().UTC()).Time
}

// Deadline returns the appeal deadline for a denial on denialDate, or from
// today when the denial date is unknown.
func (t *Tracker) Deadline(denialDate *time.Time) time.Time {
	base := t.today()
	if denialDate != nil && !denialDate.IsZero() {
		base = claim.NewDate(*denialDate).Time
	}
	return base.AddDate(0, 0, t.deadlineDays)
}

// Submit opens an appeal round. The claim must be denied, or appealed with
// its latest round denied.
func (t *Tracker) Submit(ctx context.Context, claimID uuid.UUID, req SubmitRequest) (*SubmitResult, error) {
	f := apperr.Fields{}
	if req.AppealLevel != nil && !req.AppealLevel.Valid() {
		f.Add("appealLevel", "must be first, second or external")
	}
	if req.TemplateUsed != nil && !t.templates.Has(*req.TemplateUsed) {
		f.Add("templateUsed", "unknown template")
	}
	if err := f.Err(); err != nil {
		return nil, err
	}

	var out SubmitResult
	err := t.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := t.claims.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		prior, err := t.appeals.ListByClaim(ctx, claimID)
		if err != nil {
			return t.storeErr(ctx, "list appeals", claimID, err)
		}
		if err := canSubmit(c, prior); err != nil {
			return err
		}

		a := &Appeal{
			ID:          t.ids.NewID(),
			ClaimID:     claimID,
			Level:       levelFor(len(prior)),
			Status:      StatusSubmitted,
			Deadline:    t.Deadline(c.DenialDate),
			Notes:       req.Notes,
			SubmittedBy: auth.ActorFromContext(ctx),
		}
		if req.AppealLevel != nil {
			a.Level = *req.AppealLevel
		}
		if d := req.AppealDeadline.Ptr(); d != nil {
			a.Deadline = *d
		}

		name := t.templates.For(c.DenialCategory)
		if req.TemplateUsed != nil {
			name = *req.TemplateUsed
		}
		letter, err := t.templates.Render(name, t.letterData(c, a))
		if err != nil {
			return err
		}
		a.TemplateUsed, a.Letter = &name, &letter

		if err := t.appeals.Create(ctx, a); err != nil {
			return t.storeErr(ctx, "create appeal", claimID, err)
		}
		updated, err := t.claims.EnterAppeal(ctx, claimID, deref(req.Notes))
		if err != nil {
			return err
		}
		out = SubmitResult{Claim: updated, Appeal: a}
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, t.audit, t.logger, audit.ActionCreate, "appeal", out.Appeal.ID.String())
	return &out, nil
}

func canSubmit(c *claim.Claim, prior []*Appeal) error {
	switch c.Status {
	case claim.StatusDenied:
		return nil
	case claim.StatusAppealed:
		if len(prior) > 0 && prior[0].Status == StatusDenied {
			return nil
		}
		return apperr.Conflict("claim %s already has an appeal in progress", c.ClaimNumber)
	default:
		return apperr.Conflict("claim %s must be denied to appeal, status is %s", c.ClaimNumber, c.Status)
	}
}

// RecordOutcome closes the active appeal and moves the claim: approved and
// partial post a payment and accept it, denied sends it back to denied.
func (t *Tracker) RecordOutcome(ctx context.Context, claimID uuid.UUID, req OutcomeRequest) (*OutcomeResult, error) {
	var out OutcomeResult
	err := t.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := t.claims.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if c.Status != claim.StatusAppealed {
			return apperr.Conflict("claim %s has no appeal in progress, status is %s", c.ClaimNumber, c.Status)
		}
		prior, err := t.appeals.ListByClaim(ctx, claimID)
		if err != nil {
			return t.storeErr(ctx, "list appeals", claimID, err)
		}
		active := activeAppeal(prior)
		if active == nil {
			return apperr.Conflict("claim %s has no submitted appeal", c.ClaimNumber)
		}

		updated, payment, err := t.claims.ResolveAppeal(ctx, claimID, req.Outcome, req.ApprovedAmountCents, deref(req.Notes))
		if err != nil {
			return err
		}

		outcome := req.Outcome
		decided := t.today()
		if d := req.DecisionDate.Ptr(); d != nil {
			decided = *d
		}
		active.Status = Status(outcome)
		active.Outcome = &outcome
		active.DecisionDate = &decided
		active.ApprovedAmountCents = nil
		if outcome != claim.OutcomeDenied {
			active.ApprovedAmountCents = req.ApprovedAmountCents
		}
		if payment != nil {
			amount := payment.AmountCents
			active.ApprovedAmountCents = &amount
		}
		if req.Notes != nil {
			active.Notes = req.Notes
		}
		if err := t.appeals.RecordOutcome(ctx, active); err != nil {
			return t.storeErr(ctx, "record appeal outcome", claimID, err)
		}
		out = OutcomeResult{Claim: updated, Appeal: active, Payment: payment}
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit.Record(ctx, t.audit, t.logger, audit.ActionAppeal, "appeal", out.Appeal.ID.String())
	return &out, nil
}

// activeAppeal is the newest submitted round.
func activeAppeal(appeals []*Appeal) *Appeal {
	for _, a := range appeals {
		if a.Status == StatusSubmitted {
			return a
		}
	}
	return nil
}

func (t *Tracker) ListAppeals(ctx context.Context, claimID uuid.UUID) ([]*Appeal, error) {
	if _, err := t.claims.GetClaim(ctx, claimID); err != nil {
		return nil, err
	}
	items, err := t.appeals.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, t.storeErr(ctx, "list appeals", claimID, err)
	}
	return items, nil
}

// ListUpcomingDeadlines returns open appeals due between today and
// withinDays from now.
func (t *Tracker) ListUpcomingDeadlines(ctx context.Context, withinDays int) ([]UpcomingDeadline, error) {
	if withinDays <= 0 {
		return nil, apperr.Invalid("withinDays", "must be greater than 0")
	}
	today := t.today()
	items, err := t.appeals.ListOpenDeadlines(ctx, today, today.AddDate(0, 0, withinDays))
	if err != nil {
		return nil, t.storeErr(ctx, "list appeal deadlines", uuid.Nil, err)
	}
	for i := range items {
		items[i].DaysRemaining = int(claim.NewDate(items[i].Deadline).Sub(today).Hours() / 24)
	}
	return items, nil
}

func (t *Tracker) letterData(c *claim.Claim, a *Appeal) LetterData {
	d := LetterData{
		ClaimNumber:  c.ClaimNumber,
		PatientID:    c.PatientID.String(),
		TotalCharges: "$" + c.TotalCharges.String(),
		DenialCode:   deref(c.DenialCode),
		DenialReason: deref(c.DenialReason),
		Level:        a.Level,
		Deadline:     a.Deadline.Format("January 2, 2006"),
		Notes:        deref(a.Notes),
		Today:        t.today().Format("January 2, 2006"),
	}
	if c.PayerName != nil {
		d.PayerName = *c.PayerName
	} else if c.Payer != nil {
		d.PayerName = *c.Payer
	}
	if c.ServiceDate != nil {
		d.ServiceDate = c.ServiceDate.Format("01/02/2006")
	}
	if c.DenialDate != nil {
		d.DenialDate = c.DenialDate.Format("01/02/2006")
	}
	return d
}

func (t *Tracker) storeErr(ctx context.Context, op string, claimID uuid.UUID, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	t.logger.Error().Err(err).
		Str("tenant_id", db.TenantFromContext(ctx)).
		Str("claim_id", claimID.String()).
		Str("op", op).
		Msg("appeal store failure")
	return apperr.Persistence(op, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
