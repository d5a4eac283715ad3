// Package claimtest provides an in-memory claim store for tests of the
// claim service and the engines built on it.
package claimtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/db"
	"github.com/ehr/revcycle/internal/platform/idgen"
)

// Now is the fixed clock used by NewService.
var Now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type patient struct{ first, last string }

// Store keeps claims, ledger rows and history in maps. Reads return copies
// so callers cannot mutate stored state without Update.
type Store struct {
	mu          sync.Mutex
	claims      map[uuid.UUID]*claim.Claim
	order       []uuid.UUID
	patients    map[uuid.UUID]patient
	payments    []*claim.Payment
	adjustments []*claim.Adjustment
	history     []*claim.StatusHistoryEntry

	// FailUpdate makes Update fail for the given claim ids.
	FailUpdate map[uuid.UUID]error
}

func NewStore() *Store {
	return &Store{
		claims:     make(map[uuid.UUID]*claim.Claim),
		patients:   make(map[uuid.UUID]patient),
		FailUpdate: make(map[uuid.UUID]error),
	}
}

func (s *Store) Claims() claim.Repository         { return claimRepo{s} }
func (s *Store) Ledger() claim.LedgerRepository   { return ledgerRepo{s} }
func (s *Store) History() claim.HistoryRepository { return historyRepo{s} }

// AddPatient registers a patient name for ERA name matching.
func (s *Store) AddPatient(id uuid.UUID, first, last string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[id] = patient{first: first, last: last}
}

// Put stores c as is, bypassing the service. Useful for seeding a status.
func (s *Store) Put(c *claim.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.VersionID == 0 {
		c.VersionID = 1
	}
	if _, ok := s.claims[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.claims[c.ID] = c.Clone()
}

// Get returns the stored claim or nil.
func (s *Store) Get(id uuid.UUID) *claim.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[id]; ok {
		return c.Clone()
	}
	return nil
}

func (s *Store) HistoryFor(id uuid.UUID) []*claim.StatusHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*claim.StatusHistoryEntry
	for _, h := range s.history {
		if h.ClaimID == id {
			out = append(out, h)
		}
	}
	return out
}

func (s *Store) PaymentsFor(id uuid.UUID) []*claim.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*claim.Payment
	for _, p := range s.payments {
		if p.ClaimID == id {
			out = append(out, p)
		}
	}
	return out
}

type claimRepo struct{ s *Store }

func (r claimRepo) Create(_ context.Context, c *claim.Claim) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.claims {
		if existing.ClaimNumber == c.ClaimNumber {
			return apperr.Conflict("claim number %s already exists", c.ClaimNumber)
		}
	}
	c.VersionID = 1
	c.CreatedAt = Now.Add(time.Duration(len(r.s.order)) * time.Second)
	c.UpdatedAt = c.CreatedAt
	r.s.order = append(r.s.order, c.ID)
	r.s.claims[c.ID] = c.Clone()
	return nil
}

func (r claimRepo) GetByID(_ context.Context, id uuid.UUID) (*claim.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok {
		return nil, apperr.NotFound("claim", id.String())
	}
	return c.Clone(), nil
}

func (r claimRepo) GetByNumber(_ context.Context, number string) (*claim.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.claims {
		if c.ClaimNumber == number {
			return c.Clone(), nil
		}
	}
	return nil, apperr.NotFound("claim", number)
}

func (r claimRepo) Update(_ context.Context, c *claim.Claim) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.FailUpdate[c.ID]; err != nil {
		return err
	}
	stored, ok := r.s.claims[c.ID]
	if !ok {
		return apperr.NotFound("claim", c.ID.String())
	}
	if stored.VersionID != c.VersionID {
		return apperr.Conflict("claim %s was modified by another request; reload and retry", c.ClaimNumber)
	}
	c.VersionID++
	c.UpdatedAt = Now
	r.s.claims[c.ID] = c.Clone()
	return nil
}

func (r claimRepo) List(_ context.Context, f claim.Filter, limit, offset int) ([]*claim.Claim, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*claim.Claim
	for i := len(r.s.order) - 1; i >= 0; i-- {
		c := r.s.claims[r.s.order[i]]
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.PatientID != uuid.Nil && c.PatientID != f.PatientID {
			continue
		}
		if f.PayerID != "" && (c.PayerID == nil || *c.PayerID != f.PayerID) {
			continue
		}
		if f.ServiceDateFrom != nil && (c.ServiceDate == nil || c.ServiceDate.Before(*f.ServiceDateFrom)) {
			continue
		}
		if f.ServiceDateTo != nil && (c.ServiceDate == nil || c.ServiceDate.After(*f.ServiceDateTo)) {
			continue
		}
		out = append(out, c.Clone())
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r claimRepo) ListOpenByServiceDate(_ context.Context, day time.Time) ([]claim.PatientClaim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []claim.PatientClaim
	for i := len(r.s.order) - 1; i >= 0; i-- {
		c := r.s.claims[r.s.order[i]]
		if !c.Status.OpenForPayment() || c.ServiceDate == nil || !sameDay(*c.ServiceDate, day) {
			continue
		}
		p := r.s.patients[c.PatientID]
		out = append(out, claim.PatientClaim{Claim: c.Clone(), FirstName: p.first, LastName: p.last})
	}
	return out, nil
}

func (r claimRepo) ListForUnderpayment(_ context.Context) ([]*claim.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*claim.Claim
	for _, id := range r.s.order {
		c := r.s.claims[id]
		if (c.Status == claim.StatusPaid || c.Status == claim.StatusAccepted) && c.TotalCharges > 0 && c.PaidAmount > 0 {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) AddPayment(_ context.Context, p *claim.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.CreatedAt = Now
	cp := *p
	r.s.payments = append(r.s.payments, &cp)
	return nil
}

func (r ledgerRepo) ListPayments(_ context.Context, claimID uuid.UUID) ([]*claim.Payment, error) {
	return r.s.PaymentsFor(claimID), nil
}

func (r ledgerRepo) SumPayments(_ context.Context, claimID uuid.UUID) (int64, error) {
	var sum int64
	for _, p := range r.s.PaymentsFor(claimID) {
		sum += p.AmountCents
	}
	return sum, nil
}

func (r ledgerRepo) AddAdjustment(_ context.Context, a *claim.Adjustment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.CreatedAt = Now
	cp := *a
	r.s.adjustments = append(r.s.adjustments, &cp)
	return nil
}

func (r ledgerRepo) ListAdjustments(_ context.Context, claimID uuid.UUID) ([]*claim.Adjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*claim.Adjustment
	for _, a := range r.s.adjustments {
		if a.ClaimID == claimID {
			out = append(out, a)
		}
	}
	return out, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Append(_ context.Context, h *claim.StatusHistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *h
	r.s.history = append(r.s.history, &cp)
	return nil
}

func (r historyRepo) List(_ context.Context, claimID uuid.UUID) ([]*claim.StatusHistoryEntry, error) {
	out := r.s.HistoryFor(claimID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangedAt.Before(out[j].ChangedAt) })
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// NewService wires a claim service over st with a fixed clock, sequential
// ids and the default catalog unless d overrides them.
func NewService(st *Store, d claim.Deps) *claim.Service {
	d.Claims, d.Ledger, d.History = st.Claims(), st.Ledger(), st.History()
	if d.Tx == nil {
		d.Tx = db.NopTxRunner{}
	}
	if d.IDs == nil {
		d.IDs = &idgen.Sequence{Prefix: "CLM"}
	}
	if d.Catalog == nil {
		d.Catalog = catalog.NewStatic(catalog.NewRuleSet(nil, nil, nil, catalog.DefaultModifierRules(), catalog.DefaultModifiers()))
	}
	if d.Now == nil {
		d.Now = func() time.Time { return Now }
	}
	d.Logger = zerolog.Nop()
	return claim.NewService(d)
}
