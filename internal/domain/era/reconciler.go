// Package era reconciles electronic remittance advice against claims and
// auto-posts the payments, adjustments and denials it carries.
package era

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/audit"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
	"github.com/ehr/revcycle/internal/platform/idgen"
	"github.com/ehr/revcycle/pkg/batch"
	"github.com/ehr/revcycle/pkg/money"
)

// Claims is the part of the claim service the reconciler drives.
type Claims interface {
	GetClaim(ctx context.Context, id uuid.UUID) (*claim.Claim, error)
	GetClaimByNumber(ctx context.Context, number string) (*claim.Claim, error)
	ApplyRemittance(ctx context.Context, id uuid.UUID, r claim.Remittance) (*claim.RemittanceOutcome, error)
}

// CandidateFinder lists open claims for a service day with patient names.
type CandidateFinder interface {
	ListOpenByServiceDate(ctx context.Context, serviceDate time.Time) ([]claim.PatientClaim, error)
}

type Deps struct {
	Claims     Claims
	Candidates CandidateFinder
	Batches    BatchRepository
	IDs        idgen.Generator
	Audit      audit.Sink
	Logger     zerolog.Logger
}

type Reconciler struct {
	claims     Claims
	candidates CandidateFinder
	batches    BatchRepository
	ids        idgen.Generator
	audit      audit.Sink
	logger     zerolog.Logger
}

func NewReconciler(d Deps) *Reconciler {
	r := &Reconciler{
		claims: d.Claims, candidates: d.Candidates, batches: d.Batches,
		ids: d.IDs, audit: d.Audit, logger: d.Logger,
	}
	if r.ids == nil {
		r.ids = idgen.NewUUIDGenerator()
	}
	return r
}

// ImportOption tunes a single import.
type ImportOption func(*importOptions)

type importOptions struct {
	onRecord func(index int)
}

// OnRecord is called after each record, whatever its outcome.
func OnRecord(fn func(index int)) ImportOption {
	return func(o *importOptions) { o.onRecord = fn }
}

// outcome is what one record produced: matched or unmatched is set.
type outcome struct {
	matched   *MatchedClaim
	unmatched *UnmatchedClaim
	adjusted  int64
}

type indexed struct {
	index  int
	record Record
}

// String keys the record in errors: its claim identifier, or its position
// when the record carries none.
func (i indexed) String() string {
	if k := i.record.Key(); k != "unknown" {
		return k
	}
	return "record " + strconv.Itoa(i.index)
}

// Import reconciles req.Claims in order. Records are independent: a
// malformed record, a conflict or a panic is reported in Errors and the rest
// of the batch still posts.
func (r *Reconciler) Import(ctx context.Context, req ImportRequest, opts ...ImportOption) (*ImportResult, error) {
	var o importOptions
	for _, fn := range opts {
		fn(&o)
	}

	filename := strings.TrimSpace(derefStr(req.Filename))
	if filename == "" {
		filename = "era-" + time.Now().UTC().Format("20060102-150405") + ".json"
	}
	b := &Batch{
		ID:          r.ids.NewID(),
		Filename:    filename,
		Status:      BatchProcessing,
		TotalClaims: len(req.Claims),
		CreatedBy:   auth.ActorFromContext(ctx),
	}
	if err := r.batches.Create(ctx, b); err != nil {
		r.logger.Error().Err(err).
			Str("tenant_id", db.TenantFromContext(ctx)).
			Str("op", "create era batch").
			Msg("era import aborted")
		return nil, apperr.Persistence("create era batch", err)
	}
	log := r.logger.With().
		Str("tenant_id", db.TenantFromContext(ctx)).
		Str("era_batch_id", b.ID.String()).
		Logger()

	if err := ctx.Err(); err != nil {
		r.fail(ctx, log, b.ID, err)
		return nil, err
	}

	items := make([]indexed, len(req.Claims))
	for i, rec := range req.Claims {
		items[i] = indexed{index: i, record: rec}
	}
	res := batch.Run(items, func(it indexed) (outcome, error) {
		if o.onRecord != nil {
			defer o.onRecord(it.index)
		}
		return r.reconcile(ctx, b.ID, it.index, it.record)
	})

	out := &ImportResult{
		EraID:           b.ID,
		Filename:        filename,
		MatchedClaims:   []MatchedClaim{},
		UnmatchedClaims: []UnmatchedClaim{},
	}
	var paidCents, adjustedCents int64
	for _, oc := range res.Successes {
		switch {
		case oc.matched != nil:
			m := *oc.matched
			out.MatchedClaims = append(out.MatchedClaims, m)
			paidCents += m.PaidAmountCents
			adjustedCents += oc.adjusted
			if m.PaidAmountCents > 0 {
				out.Summary.AutoPosted++
			}
			if m.Denied {
				out.Summary.Denied++
			}
			if m.Partial {
				out.Summary.PartialPayments++
			}
		case oc.unmatched != nil:
			out.UnmatchedClaims = append(out.UnmatchedClaims, *oc.unmatched)
		}
	}
	for _, f := range res.Failures {
		out.Errors = append(out.Errors, RecordError{
			Index:       f.Item.index,
			ClaimNumber: f.Item.String(),
			Error:       f.Error,
			Type:        f.Type,
		})
		log.Warn().Int("index", f.Item.index).Str("claim_number", f.Item.String()).
			Str("error_type", f.Type).Msg("era record failed")
	}

	out.Summary.TotalClaims = len(req.Claims)
	out.Summary.Matched = len(out.MatchedClaims)
	out.Summary.Unmatched = len(out.UnmatchedClaims)
	out.Summary.TotalPaid = money.FromCents(paidCents)
	out.Summary.TotalAdjustments = money.FromCents(adjustedCents)

	b.Matched, b.AutoPosted, b.Unmatched = out.Summary.Matched, out.Summary.AutoPosted, out.Summary.Unmatched
	b.Denied, b.PartialPayments, b.ErrorCount = out.Summary.Denied, out.Summary.PartialPayments, len(out.Errors)
	b.TotalPaidCents, b.TotalAdjustmentsCents = paidCents, adjustedCents
	b.Result = out
	if err := r.batches.Complete(ctx, b); err != nil {
		// Postings are already committed per record; the result still goes back.
		log.Error().Err(err).Str("op", "complete era batch").Msg("era batch left in processing")
	}

	log.Info().
		Int("total", out.Summary.TotalClaims).
		Int("matched", out.Summary.Matched).
		Int("unmatched", out.Summary.Unmatched).
		Int("errors", len(out.Errors)).
		Int64("paid_cents", paidCents).
		Msg("era import completed")
	audit.Record(ctx, r.audit, r.logger, audit.ActionImport, "era_batch", b.ID.String())
	return out, nil
}

func (r *Reconciler) fail(ctx context.Context, log zerolog.Logger, id uuid.UUID, cause error) {
	if err := r.batches.Fail(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		log.Error().Err(err).Str("op", "fail era batch").Msg("failed to mark era batch failed")
	}
}

func (r *Reconciler) reconcile(ctx context.Context, batchID uuid.UUID, index int, rec Record) (outcome, error) {
	rem, err := toRemittance(rec, batchID)
	if err != nil {
		return outcome{}, err
	}

	c, by, err := r.match(ctx, rec)
	if err != nil {
		return outcome{}, err
	}
	if c == nil {
		return outcome{unmatched: &UnmatchedClaim{
			Index:           index,
			ClaimNumber:     rec.ClaimNumber,
			ClaimID:         rec.ClaimID,
			PatientName:     rec.PatientName,
			ServiceDate:     rec.ServiceDate,
			PaidAmountCents: rem.PaidCents,
			Reason:          "no claim matched by id, number or patient name and service date",
		}}, nil
	}

	res, err := r.claims.ApplyRemittance(ctx, c.ID, rem)
	if err != nil {
		return outcome{}, err
	}
	var adjusted int64
	for _, a := range rem.Adjustments {
		adjusted += a.AmountCents
	}
	return outcome{
		matched: &MatchedClaim{
			Index:           index,
			ClaimID:         res.Claim.ID,
			ClaimNumber:     res.Claim.ClaimNumber,
			MatchedBy:       by,
			PaidAmountCents: rem.PaidCents,
			Status:          res.Claim.Status,
			Denied:          res.Denied,
			Paid:            res.Paid,
			Partial:         res.Partial,
		},
		adjusted: adjusted,
	}, nil
}

// match tries claim id, then claim number, then patient name on the service
// day. A miss returns a nil claim; only store failures are errors.
func (r *Reconciler) match(ctx context.Context, rec Record) (*claim.Claim, string, error) {
	if s := strings.TrimSpace(derefStr(rec.ClaimID)); s != "" {
		id, _ := uuid.Parse(s)
		c, err := r.claims.GetClaim(ctx, id)
		switch {
		case err == nil:
			return c, MatchByID, nil
		case !apperr.Is(err, apperr.TypeNotFound):
			return nil, "", err
		}
	}

	if s := strings.TrimSpace(derefStr(rec.ClaimNumber)); s != "" {
		c, err := r.claims.GetClaimByNumber(ctx, s)
		switch {
		case err == nil:
			return c, MatchByNumber, nil
		case !apperr.Is(err, apperr.TypeNotFound):
			return nil, "", err
		}
	}

	name, ok := ParseName(derefStr(rec.PatientName))
	if !ok || strings.TrimSpace(derefStr(rec.ServiceDate)) == "" {
		return nil, "", nil
	}
	day, _ := claim.ParseDate(*rec.ServiceDate)
	candidates, err := r.candidates.ListOpenByServiceDate(ctx, day.Time)
	if err != nil {
		r.logger.Error().Err(err).
			Str("tenant_id", db.TenantFromContext(ctx)).
			Str("op", "list era candidates").
			Msg("era fuzzy match failed")
		return nil, "", apperr.Persistence("match remittance", err)
	}
	if c := bestCandidate(name, candidates); c != nil {
		return c, MatchByName, nil
	}
	return nil, "", nil
}

// toRemittance validates the record's shape and converts it. Identifier
// lookups happen later; only their format is checked here.
func toRemittance(rec Record, batchID uuid.UUID) (claim.Remittance, error) {
	if rec.decodeErr != nil {
		return claim.Remittance{}, rec.decodeErr
	}
	fields := apperr.Fields{}
	if rec.PaidAmountCents == nil {
		fields.Add("paidAmountCents", "is required")
	} else if *rec.PaidAmountCents < 0 {
		fields.Add("paidAmountCents", "must not be negative")
	}
	if s := strings.TrimSpace(derefStr(rec.ClaimID)); s != "" {
		if _, err := uuid.Parse(s); err != nil {
			fields.Add("claimId", "must be a UUID")
		}
	}
	hasName := strings.TrimSpace(derefStr(rec.PatientName)) != "" && strings.TrimSpace(derefStr(rec.ServiceDate)) != ""
	if strings.TrimSpace(derefStr(rec.ClaimID)) == "" && strings.TrimSpace(derefStr(rec.ClaimNumber)) == "" && !hasName {
		fields.Add("claimNumber", "claimId, claimNumber or patientName with serviceDate is required")
	}
	if s := strings.TrimSpace(derefStr(rec.ServiceDate)); s != "" {
		if _, err := claim.ParseDate(s); err != nil {
			fields.Add("serviceDate", "must be YYYY-MM-DD")
		}
	}
	var paymentDate *time.Time
	if s := strings.TrimSpace(derefStr(rec.PaymentDate)); s != "" {
		d, err := claim.ParseDate(s)
		if err != nil {
			fields.Add("paymentDate", "must be YYYY-MM-DD")
		}
		paymentDate = d.Ptr()
	}
	if rec.PatientResponsibilityCents != nil && *rec.PatientResponsibilityCents < 0 {
		fields.Add("patientResponsibilityCents", "must not be negative")
	}
	adjustments := make([]claim.Adjustment, 0, len(rec.Adjustments))
	for i, a := range rec.Adjustments {
		code := strings.ToUpper(strings.TrimSpace(a.Code))
		if code == "" {
			fields.Add("adjustments["+strconv.Itoa(i)+"].code", "is required")
		}
		adjustments = append(adjustments, claim.Adjustment{Code: code, Reason: a.Reason, AmountCents: a.AmountCents})
	}
	if err := fields.Err(); err != nil {
		return claim.Remittance{}, err
	}

	id := batchID
	return claim.Remittance{
		PaidCents:                  *rec.PaidAmountCents,
		PaymentDate:                paymentDate,
		Payer:                      trimmed(rec.PayerName),
		CheckNumber:                trimmed(rec.CheckNumber),
		DenialCode:                 trimmed(rec.DenialCode),
		DenialReason:               trimmed(rec.DenialReason),
		PatientResponsibilityCents: rec.PatientResponsibilityCents,
		Adjustments:                adjustments,
		BatchID:                    &id,
	}, nil
}

// ListBatches returns stored imports, newest first.
func (r *Reconciler) ListBatches(ctx context.Context, limit, offset int) ([]*Batch, int, error) {
	items, total, err := r.batches.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, r.storeErr(ctx, "list era batches", err)
	}
	return items, total, nil
}

func (r *Reconciler) GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error) {
	b, err := r.batches.GetByID(ctx, id)
	if err != nil {
		return nil, r.storeErr(ctx, "load era batch", err)
	}
	return b, nil
}

func (r *Reconciler) storeErr(ctx context.Context, op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	r.logger.Error().Err(err).
		Str("tenant_id", db.TenantFromContext(ctx)).
		Str("op", op).
		Msg("era store failure")
	return apperr.Persistence(op, err)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
