package era

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/domain/claim/claimtest"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
	"github.com/ehr/revcycle/internal/platform/idgen"
	"github.com/ehr/revcycle/pkg/money"
)

var serviceDay = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type memBatches struct {
	mu        sync.Mutex
	batches   map[uuid.UUID]*Batch
	failed    map[uuid.UUID]string
	createErr error
}

func newMemBatches() *memBatches {
	return &memBatches{batches: map[uuid.UUID]*Batch{}, failed: map[uuid.UUID]string{}}
}

func (m *memBatches) Create(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memBatches) Complete(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Status = BatchCompleted
	now := claimtest.Now
	b.CompletedAt = &now
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memBatches) Fail(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = reason
	if b, ok := m.batches[id]; ok {
		b.Status = BatchFailed
	}
	return nil
}

func (m *memBatches) GetByID(_ context.Context, id uuid.UUID) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, apperr.NotFound("era batch", id.String())
	}
	cp := *b
	return &cp, nil
}

func (m *memBatches) List(_ context.Context, limit, offset int) ([]*Batch, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Batch
	for _, b := range m.batches {
		cp := *b
		out = append(out, &cp)
	}
	return out, len(out), nil
}

// panicky wraps the claim service and panics for one claim number.
type panicky struct {
	Claims
	number string
}

func (p panicky) ApplyRemittance(ctx context.Context, id uuid.UUID, r claim.Remittance) (*claim.RemittanceOutcome, error) {
	c, err := p.Claims.GetClaim(ctx, id)
	if err == nil && c.ClaimNumber == p.number {
		panic("payer file exploded")
	}
	return p.Claims.ApplyRemittance(ctx, id, r)
}

type fixture struct {
	store   *claimtest.Store
	svc     *claim.Service
	batches *memBatches
	rec     *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := claimtest.NewStore()
	svc := claimtest.NewService(st, claim.Deps{})
	b := newMemBatches()
	return &fixture{
		store:   st,
		svc:     svc,
		batches: b,
		rec: NewReconciler(Deps{
			Claims: svc, Candidates: st.Claims(), Batches: b,
			IDs: &idgen.Sequence{Prefix: "ERA"}, Logger: zerolog.Nop(),
		}),
	}
}

func (f *fixture) seed(number string, status claim.Status, totalCents int64, patientID uuid.UUID, created time.Time) *claim.Claim {
	day := serviceDay
	c := &claim.Claim{
		ID:             uuid.New(),
		ClaimNumber:    number,
		PatientID:      patientID,
		Status:         status,
		TotalCharges:   money.Cents(totalCents),
		ServiceDate:    &day,
		DiagnosisCodes: []string{"J06.9"},
		LineItems:      []claim.LineItem{{CPT: "99213", Units: 1, Charge: money.Cents(totalCents), Dx: []string{"J06.9"}}},
		CreatedAt:      created,
	}
	f.store.Put(c)
	return c
}

func testCtx() context.Context {
	ctx := db.WithTenant(context.Background(), "acme")
	return auth.WithUser(ctx, "biller-1", "billing")
}

func str(s string) *string { return &s }
func cents(v int64) *int64 { return &v }

func TestImport_ClaimIDWinsOverNumber(t *testing.T) {
	f := newFixture(t)
	a := f.seed("CLM-A", claim.StatusSubmitted, 10000, uuid.New(), claimtest.Now)
	b := f.seed("CLM-B", claim.StatusSubmitted, 10000, uuid.New(), claimtest.Now)

	res, err := f.rec.Import(testCtx(), ImportRequest{Claims: []Record{{
		ClaimID: str(a.ID.String()), ClaimNumber: str("CLM-B"), PaidAmountCents: cents(10000),
	}}})
	require.NoError(t, err)
	require.Len(t, res.MatchedClaims, 1)
	assert.Equal(t, a.ID, res.MatchedClaims[0].ClaimID)
	assert.Equal(t, MatchByID, res.MatchedClaims[0].MatchedBy)
	assert.Equal(t, claim.StatusPaid, f.store.Get(a.ID).Status)
	assert.Equal(t, claim.StatusSubmitted, f.store.Get(b.ID).Status)
}

func TestImport_UnknownIDFallsBackToNumber(t *testing.T) {
	f := newFixture(t)
	b := f.seed("CLM-B", claim.StatusAccepted, 10000, uuid.New(), claimtest.Now)

	res, err := f.rec.Import(testCtx(), ImportRequest{Claims: []Record{{
		ClaimID: str(uuid.NewString()), ClaimNumber: str("CLM-B"), PaidAmountCents: cents(4000),
	}}})
	require.NoError(t, err)
	require.Len(t, res.MatchedClaims, 1)
	m := res.MatchedClaims[0]
	assert.Equal(t, b.ID, m.ClaimID)
	assert.Equal(t, MatchByNumber, m.MatchedBy)
	assert.True(t, m.Partial)
	assert.Equal(t, claim.StatusAccepted, m.Status, "partial payment leaves status alone")
	assert.Equal(t, 1, res.Summary.PartialPayments)
}

func TestImport_FuzzyNameNewestWins(t *testing.T) {
	f := newFixture(t)
	jane, other := uuid.New(), uuid.New()
	f.store.AddPatient(jane, "Jane", "Doe")
	f.store.AddPatient(other, "Janet", "Dorsey")
	older := f.seed("CLM-OLD", claim.StatusSubmitted, 10000, jane, claimtest.Now.Add(-time.Hour))
	newer := f.seed("CLM-NEW", claim.StatusSubmitted, 10000, jane, claimtest.Now)
	f.seed("CLM-DRAFT", claim.StatusDraft, 10000, jane, claimtest.Now.Add(time.Hour))
	f.seed("CLM-OTHER", claim.StatusSubmitted, 10000, other, claimtest.Now.Add(2*time.Hour))

	res, err := f.rec.Import(testCtx(), ImportRequest{Claims: []Record{
		{PatientName: str("Doe, Jane"), ServiceDate: str("2025-03-01"), PaidAmountCents: cents(10000)},
		{PatientName: str("Jan Doe"), ServiceDate: str("2025-03-01"), PaidAmountCents: cents(2500)},
	}})
	require.NoError(t, err)
	require.Len(t, res.MatchedClaims, 2)
	assert.Equal(t, newer.ID, res.MatchedClaims[0].ClaimID)
	assert.Equal(t, MatchByName, res.MatchedClaims[0].MatchedBy)
	// CLM-NEW is paid after the first record, so the prefix match falls to the older claim.
	assert.Equal(t, older.ID, res.MatchedClaims[1].ClaimID)
}

func TestImport_Unmatched(t *testing.T) {
	f := newFixture(t)
	res, err := f.rec.Import(testCtx(), ImportRequest{Claims: []Record{
		{ClaimNumber: str("CLM-NOPE"), PaidAmountCents: cents(100)},
		{PatientName: str("Nobody, Here"), ServiceDate: str("2025-03-01"), PaidAmountCents: cents(100)},
	}})
	require.NoError(t, err)
	assert.Empty(t, res.MatchedClaims)
	require.Len(t, res.UnmatchedClaims, 2)
	assert.Equal(t, 2, res.Summary.Unmatched)
	assert.Equal(t, "CLM-NOPE", *res.UnmatchedClaims[0].ClaimNumber)
	assert.Empty(t, res.Errors)
}

func TestImport_BatchIsolation(t *testing.T) {
	f := newFixture(t)
	a := f.seed("CLM-A", claim.StatusSubmitted, 10000, uuid.New(), claimtest.Now)
	c := f.seed("CLM-C", claim.StatusSubmitted, 20000, uuid.New(), claimtest.Now)
	d := f.seed("CLM-D", claim.StatusSubmitted, 5000, uuid.New(), claimtest.Now)
	paid := f.seed("CLM-PAID", claim.StatusPaid, 5000, uuid.New(), claimtest.Now)
	f.rec.claims = panicky{Claims: f.svc, number: "CLM-D"}

	res, err := f.rec.Import(testCtx(), ImportRequest{Filename: str("remit.json"), Claims: []Record{
		{ClaimNumber: str("CLM-A"), PaidAmountCents: cents(10000)},
		{ClaimNumber: str("CLM-B")},
		{ClaimNumber: str("CLM-C"), PaidAmountCents: cents(20000), Adjustments: []Adjustment{{Code: "co-45", AmountCents: 1500}}},
		{ClaimNumber: str("CLM-D"), PaidAmountCents: cents(5000)},
		{ClaimNumber: str("CLM-PAID"), PaidAmountCents: cents(5000)},
	}})
	require.NoError(t, err)

	require.Len(t, res.MatchedClaims, 2)
	assert.Equal(t, claim.StatusPaid, f.store.Get(a.ID).Status)
	assert.Equal(t, claim.StatusPaid, f.store.Get(c.ID).Status)
	assert.Equal(t, claim.StatusSubmitted, f.store.Get(d.ID).Status)
	assert.Len(t, f.store.PaymentsFor(paid.ID), 0)

	require.Len(t, res.Errors, 3)
	assert.Equal(t, "CLM-B", res.Errors[0].ClaimNumber)
	assert.Equal(t, string(apperr.TypeValidation), res.Errors[0].Type)
	assert.Equal(t, "CLM-D", res.Errors[1].ClaimNumber)
	assert.Equal(t, apperr.UnknownError, res.Errors[1].Error)
	assert.Equal(t, "CLM-PAID", res.Errors[2].ClaimNumber)
	assert.Equal(t, string(apperr.TypeStateConflict), res.Errors[2].Type)

	assert.Equal(t, 5, res.Summary.TotalClaims)
	assert.Equal(t, 2, res.Summary.AutoPosted)
	assert.Equal(t, "300", res.Summary.TotalPaid.String())
	assert.Equal(t, "15", res.Summary.TotalAdjustments.String())

	stored, err := f.rec.GetBatch(testCtx(), res.EraID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, stored.Status)
	assert.Equal(t, "remit.json", stored.Filename)
	assert.Equal(t, 3, stored.ErrorCount)
	assert.Equal(t, int64(30000), stored.TotalPaidCents)
}

func TestImport_DenialWinsOverPayment(t *testing.T) {
	f := newFixture(t)
	a := f.seed("CLM-A", claim.StatusSubmitted, 10000, uuid.New(), claimtest.Now)

	res, err := f.rec.Import(testCtx(), ImportRequest{Claims: []Record{{
		ClaimNumber: str("CLM-A"), PaidAmountCents: cents(10000),
		DenialCode: str("CO-50"), DenialReason: str("Not medically necessary"),
		PatientResponsibilityCents: cents(2000), PaymentDate: str("2025-03-05"),
	}}})
	require.NoError(t, err)
	require.Len(t, res.MatchedClaims, 1)
	assert.True(t, res.MatchedClaims[0].Denied)
	assert.Equal(t, 1, res.Summary.Denied)

	got := f.store.Get(a.ID)
	assert.Equal(t, claim.StatusDenied, got.Status)
	assert.Equal(t, "CO-50", *got.DenialCode)
	assert.Equal(t, claim.DenialMedicalNecessity, *got.DenialCategory)
	assert.Equal(t, int64(2000), got.PatientResponsibility.Cents())

	hist := f.store.HistoryFor(a.ID)
	require.NotEmpty(t, hist)
	assert.Equal(t, "ERA auto-post", *hist[len(hist)-1].Notes)
}

func TestImport_BatchCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.batches.createErr = errors.New("relation era_import_batches does not exist")

	_, err := f.rec.Import(testCtx(), ImportRequest{Claims: []Record{{ClaimNumber: str("X"), PaidAmountCents: cents(1)}}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.TypePersistence))
	assert.Equal(t, "failed to create era batch", apperr.PublicMessage(err))
}

func TestImport_CanceledBeforeProcessingFailsBatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(testCtx())
	cancel()

	_, err := f.rec.Import(ctx, ImportRequest{Claims: []Record{{ClaimNumber: str("X"), PaidAmountCents: cents(1)}}})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, f.batches.failed, 1)
	for id := range f.batches.failed {
		b, err := f.batches.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, BatchFailed, b.Status)
	}
}

func TestImport_ProgressCallback(t *testing.T) {
	f := newFixture(t)
	var seen []int
	_, err := f.rec.Import(testCtx(), ImportRequest{Claims: []Record{
		{ClaimNumber: str("A"), PaidAmountCents: cents(1)},
		{ClaimNumber: str("B")},
	}}, OnRecord(func(i int) { seen = append(seen, i) }))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestImport_UndecodableRecordKeyedByIndex(t *testing.T) {
	f := newFixture(t)
	f.seed("CLM-A", claim.StatusSubmitted, 10000, uuid.New(), claimtest.Now)

	req, err := DecodeImport(strings.NewReader(`[{"claimNumber":7,"paidAmountCents":1},{"claimNumber":"CLM-A","paidAmountCents":10000}]`))
	require.NoError(t, err)
	res, err := f.rec.Import(testCtx(), req)
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, 0, res.Errors[0].Index)
	assert.Equal(t, "record 0", res.Errors[0].ClaimNumber)
	require.Len(t, res.MatchedClaims, 1)
	assert.Equal(t, "CLM-A", res.MatchedClaims[0].ClaimNumber)
}
