//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/revcycle/internal/domain/appeal"
	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/domain/era"
	"github.com/ehr/revcycle/internal/domain/modifier"
	"github.com/ehr/revcycle/internal/domain/scrub"
	"github.com/ehr/revcycle/internal/domain/underpayment"
	"github.com/ehr/revcycle/internal/platform/audit"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
	"github.com/ehr/revcycle/internal/platform/events"
	"github.com/ehr/revcycle/pkg/money"
)

type services struct {
	claims       *claim.Service
	reconciler   *era.Reconciler
	underpayment *underpayment.Service
	appeals      *appeal.Tracker
}

func newServices() services {
	logger := zerolog.Nop()
	store := catalog.NewStorePG(globalDB)
	sink := audit.NewPGSink(globalDB)
	tx := db.NewTxRunner(globalDB)
	advisor := modifier.NewAdvisor()
	repo := claim.NewRepoPG(globalDB)
	appeals := appeal.NewRepoPG(globalDB)

	claims := claim.NewService(claim.Deps{
		Claims:   repo,
		Ledger:   claim.NewLedgerRepoPG(globalDB),
		History:  claim.NewHistoryRepoPG(globalDB),
		Tx:       tx,
		Catalog:  store,
		Scrubber: scrub.NewEngine(advisor),
		Advisor:  advisor,
		Appeals:  appeal.Closer{Appeals: appeals},
		Events:   events.Nop{},
		Audit:    sink,
		Logger:   logger,
	})
	return services{
		claims: claims,
		reconciler: era.NewReconciler(era.Deps{
			Claims: claims, Candidates: repo, Batches: era.NewBatchRepoPG(globalDB), Audit: sink, Logger: logger,
		}),
		underpayment: underpayment.NewService(underpayment.Deps{
			Analyzer: underpayment.NewAnalyzer(decimal.NewFromInt(10)),
			Claims:   claims, Source: repo, Flags: underpayment.NewFlagRepoPG(globalDB),
			Catalog: store, Audit: sink, Logger: logger,
		}),
		appeals: appeal.NewTracker(appeal.Deps{
			Claims: claims, Appeals: appeals, Tx: tx, Audit: sink, Logger: logger,
		}),
	}
}

func seedCatalog(t *testing.T, ctx context.Context) uuid.UUID {
	t.Helper()
	exec(t, ctx, `INSERT INTO diagnosis_codes (code, description, billable) VALUES ('E11.9', 'Type 2 diabetes', TRUE)`)
	exec(t, ctx, `INSERT INTO fee_schedule (cpt, amount_cents, medicare_amount_cents, description) VALUES ('99213', 15000, 10000, 'Office visit')`)
	exec(t, ctx, `INSERT INTO payer_contracts (id, payer_id, payer_name, reimbursement_percent, basis, effective_from, active)
		VALUES ($1, 'AET', 'Aetna', 80, 'fee_schedule', '2020-01-01', TRUE)`, uuid.New())

	patientID := uuid.New()
	exec(t, ctx, `INSERT INTO patient (id, first_name, last_name) VALUES ($1, 'Jane', 'Doe')`, patientID)
	return patientID
}

// submittedClaim creates a one-line office visit and walks it to submitted.
func submittedClaim(t *testing.T, ctx context.Context, s services, patientID uuid.UUID) *claim.Claim {
	t.Helper()
	serviceDate := claim.NewDate(time.Now().UTC().AddDate(0, 0, -10))
	payerID, payerName := "AET", "Aetna"

	c, err := s.claims.CreateClaim(ctx, claim.CreateRequest{
		PatientID:      patientID,
		PayerID:        &payerID,
		PayerName:      &payerName,
		ServiceDate:    &serviceDate,
		DiagnosisCodes: []string{"E11.9"},
		LineItems: []claim.LineItem{
			{CPT: "99213", Dx: []string{"E11.9"}, Units: 1, Charge: money.Cents(15000)},
		},
	})
	if err != nil {
		t.Fatalf("create claim: %v", err)
	}

	out, err := s.claims.ScrubClaim(ctx, c.ID, true)
	if err != nil {
		t.Fatalf("scrub: %v", err)
	}
	if out.Result.Status == claim.ScrubErrors {
		t.Fatalf("unexpected scrub errors: %+v", out.Result)
	}
	if _, err := s.claims.TransitionStatus(ctx, c.ID, claim.TransitionRequest{Status: claim.StatusReady}); err != nil {
		t.Fatalf("ready: %v", err)
	}
	submitted, err := s.claims.SubmitClaim(ctx, c.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != claim.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", submitted.Status)
	}
	return submitted
}

func TestRevenueCycle_EndToEnd(t *testing.T) {
	ctx := auth.WithUser(tenantContext(t, "e2e"), "biller-1", "billing")
	s := newServices()
	patientID := seedCatalog(t, ctx)

	partial := submittedClaim(t, ctx, s, patientID)
	denied := submittedClaim(t, ctx, s, patientID)

	// ERA: one short payment, one denial.
	filename := "remit-001.json"
	paid, zero := int64(10000), int64(0)
	denialCode, denialReason := "CO-50", "Not medically necessary"
	res, err := s.reconciler.Import(ctx, era.ImportRequest{
		Filename: &filename,
		Claims: []era.Record{
			{ClaimNumber: &partial.ClaimNumber, PaidAmountCents: &paid},
			{ClaimNumber: &denied.ClaimNumber, PaidAmountCents: &zero, DenialCode: &denialCode, DenialReason: &denialReason},
		},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Summary.Matched != 2 || res.Summary.Denied != 1 || res.Summary.PartialPayments != 1 {
		t.Fatalf("unexpected summary %+v (errors %+v)", res.Summary, res.Errors)
	}

	batch, err := era.NewBatchRepoPG(globalDB).GetByID(ctx, res.EraID)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if batch.Status != era.BatchCompleted {
		t.Errorf("expected completed batch, got %s", batch.Status)
	}

	// Underpayment: accepted at $100 against an expected $120.
	if _, err := s.claims.TransitionStatus(ctx, partial.ID, claim.TransitionRequest{Status: claim.StatusAccepted}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	report, err := s.underpayment.Report(ctx, underpayment.ReportOptions{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Claims) != 1 || report.Claims[0].ClaimNumber != partial.ClaimNumber {
		t.Fatalf("expected %s in report, got %+v", partial.ClaimNumber, report.Claims)
	}
	if report.Claims[0].ExpectedCents != 12000 || report.Claims[0].VarianceCents != 2000 {
		t.Errorf("unexpected analysis %+v", report.Claims[0])
	}
	flag, err := s.underpayment.FlagUnderpayment(ctx, partial.ID, underpayment.FlagRequest{})
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if flag.Status != underpayment.FlagPending {
		t.Errorf("expected pending flag, got %s", flag.Status)
	}

	// Appeal the denial and win it.
	submitted, err := s.appeals.Submit(ctx, denied.ID, appeal.SubmitRequest{})
	if err != nil {
		t.Fatalf("submit appeal: %v", err)
	}
	if submitted.Claim.Status != claim.StatusAppealed || submitted.Appeal.Level != appeal.LevelFirst {
		t.Fatalf("unexpected appeal result %+v", submitted)
	}
	upcoming, err := s.appeals.ListUpcomingDeadlines(ctx, 61)
	if err != nil {
		t.Fatalf("deadlines: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].ClaimNumber != denied.ClaimNumber {
		t.Errorf("expected one upcoming deadline for %s, got %+v", denied.ClaimNumber, upcoming)
	}

	amount := int64(15000)
	outcome, err := s.appeals.RecordOutcome(ctx, denied.ID, appeal.OutcomeRequest{Outcome: "approved", ApprovedAmountCents: &amount})
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if outcome.Claim.Status != claim.StatusPaid {
		t.Errorf("expected paid after full approval, got %s", outcome.Claim.Status)
	}

	history, err := s.claims.ListStatusHistory(ctx, denied.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) < 5 {
		t.Errorf("expected the full status trail, got %d entries", len(history))
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	s := newServices()
	a := auth.WithUser(tenantContext(t, "iso_a"), "biller-1", "billing")
	b := auth.WithUser(tenantContext(t, "iso_b"), "biller-1", "billing")

	c := submittedClaim(t, a, s, seedCatalog(t, a))
	seedCatalog(t, b)

	if _, err := s.claims.GetClaim(b, c.ID); err == nil {
		t.Fatal("expected claim to be invisible from another tenant")
	}
}
