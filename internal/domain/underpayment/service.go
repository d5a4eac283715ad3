package underpayment

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/audit"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
	"github.com/ehr/revcycle/internal/platform/idgen"
)

// ClaimReader loads one claim through the claim service.
type ClaimReader interface {
	GetClaim(ctx context.Context, id uuid.UUID) (*claim.Claim, error)
}

type Deps struct {
	Analyzer *Analyzer
	Claims   ClaimReader
	Source   ClaimSource
	Flags    FlagRepository
	Catalog  catalog.Store
	IDs      idgen.Generator
	Audit    audit.Sink
	Logger   zerolog.Logger
	TopN     int
	Now      func() time.Time
}

type Service struct {
	analyzer *Analyzer
	claims   ClaimReader
	source   ClaimSource
	flags    FlagRepository
	catalog  catalog.Store
	ids      idgen.Generator
	audit    audit.Sink
	logger   zerolog.Logger
	topN     int
	clock    func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		analyzer: d.Analyzer, claims: d.Claims, source: d.Source, flags: d.Flags,
		catalog: d.Catalog, ids: d.IDs, audit: d.Audit, logger: d.Logger,
		topN: d.TopN, clock: d.Now,
	}
	if s.analyzer == nil {
		s.analyzer = NewAnalyzer(DefaultThresholdPercent)
	}
	if s.ids == nil {
		s.ids = idgen.NewUUIDGenerator()
	}
	if s.topN <= 0 {
		s.topN = DefaultTopN
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// AnalyzeClaim compares a claim's posted payments with its expected
// reimbursement.
func (s *Service) AnalyzeClaim(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	c, err := s.claims.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	rs, err := s.ruleSet(ctx)
	if err != nil {
		return nil, err
	}
	a := s.analyzer.Analyze(c, c.PaidAmount.Cents(), rs)
	return &a, nil
}

// ReportOptions narrow the list report. Zero values use the service defaults.
type ReportOptions struct {
	TopN int
	// UnderpaidOnly drops claims at or under the threshold before ranking.
	UnderpaidOnly bool
}

// Report scans paid and accepted claims with postings, ranks them by
// absolute variance so overpayments surface next to underpayments, and keeps
// the top N. The summary covers every underpaid claim scanned, not only
// those returned.
func (s *Service) Report(ctx context.Context, opts ReportOptions) (*Report, error) {
	claims, err := s.source.ListForUnderpayment(ctx)
	if err != nil {
		return nil, s.storeErr(ctx, "scan claims for underpayment", err)
	}
	rs, err := s.ruleSet(ctx)
	if err != nil {
		return nil, err
	}

	analyses := make([]Analysis, 0, len(claims))
	for _, c := range claims {
		if c.TotalCharges <= 0 || c.PaidAmount <= 0 {
			continue
		}
		a := s.analyzer.Analyze(c, c.PaidAmount.Cents(), rs)
		if opts.UnderpaidOnly && !a.IsUnderpaid {
			continue
		}
		analyses = append(analyses, a)
	}

	n := opts.TopN
	if n <= 0 {
		n = s.topN
	}
	return &Report{
		ThresholdPercent: s.analyzer.Threshold(),
		Scanned:          len(claims),
		Claims:           Rank(analyses, n),
		Summary:          Summarize(analyses),
		GeneratedAt:      s.clock().UTC(),
	}, nil
}

// ExportReport writes the report as an XLSX workbook.
func (s *Service) ExportReport(ctx context.Context, w io.Writer, opts ReportOptions) error {
	r, err := s.Report(ctx, opts)
	if err != nil {
		return err
	}
	if err := WriteXLSX(w, r); err != nil {
		return err
	}
	audit.Record(ctx, s.audit, s.logger, audit.ActionExport, "underpayment_report", "")
	return nil
}

// FlagUnderpayment records a pending flag with the claim's current figures.
// A claim has at most one pending flag; flagging again returns it.
func (s *Service) FlagUnderpayment(ctx context.Context, claimID uuid.UUID, req FlagRequest) (*Flag, error) {
	if existing, err := s.flags.PendingForClaim(ctx, claimID); err != nil {
		return nil, s.storeErr(ctx, "load underpayment flag", err)
	} else if existing != nil {
		return existing, nil
	}

	a, err := s.AnalyzeClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if a.PaidCents <= 0 {
		return nil, apperr.Conflict("claim %s has no posted payments", a.ClaimNumber)
	}
	f := &Flag{
		ID:                  s.ids.NewID(),
		ClaimID:             claimID,
		ClaimNumber:         a.ClaimNumber,
		ExpectedAmountCents: a.ExpectedCents,
		ActualPaidCents:     a.PaidCents,
		VariancePercent:     a.VariancePercent,
		Status:              FlagPending,
		Notes:               req.Notes,
		CreatedBy:           auth.ActorFromContext(ctx),
	}
	if err := s.flags.Create(ctx, f); err != nil {
		return nil, s.storeErr(ctx, "create underpayment flag", err)
	}
	audit.Record(ctx, s.audit, s.logger, audit.ActionCreate, "underpayment_flag", f.ID.String())
	return f, nil
}

func (s *Service) ListFlags(ctx context.Context, status FlagStatus, limit, offset int) ([]*Flag, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, apperr.Invalid("status", "must be pending, resolved or dismissed")
	}
	items, total, err := s.flags.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, s.storeErr(ctx, "list underpayment flags", err)
	}
	return items, total, nil
}

// ResolveFlag closes a pending flag as resolved or dismissed.
func (s *Service) ResolveFlag(ctx context.Context, id uuid.UUID, req ResolveRequest) (*Flag, error) {
	if req.Status != FlagResolved && req.Status != FlagDismissed {
		return nil, apperr.Invalid("status", "must be resolved or dismissed")
	}
	f, err := s.flags.Resolve(ctx, id, req.Status, req.Notes, s.clock().UTC())
	if err != nil {
		return nil, s.storeErr(ctx, "resolve underpayment flag", err)
	}
	audit.Record(ctx, s.audit, s.logger, audit.ActionUpdate, "underpayment_flag", id.String())
	return f, nil
}

func (s *Service) ruleSet(ctx context.Context) (*catalog.RuleSet, error) {
	rs, err := s.catalog.RuleSet(ctx)
	if err != nil {
		return nil, s.storeErr(ctx, "load code catalogs", err)
	}
	return rs, nil
}

func (s *Service) storeErr(ctx context.Context, op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	s.logger.Error().Err(err).
		Str("tenant_id", db.TenantFromContext(ctx)).
		Str("op", op).
		Msg("underpayment store failure")
	return apperr.Persistence(op, err)
}
