package modifier

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/db"
)

// Service serves the advisor's read paths against the tenant catalog.
type Service struct {
	advisor *Advisor
	catalog catalog.Store
	logger  zerolog.Logger
}

func NewService(advisor *Advisor, store catalog.Store, logger zerolog.Logger) *Service {
	return &Service{advisor: advisor, catalog: store, logger: logger}
}

// SuggestRequest is an unsaved claim: payer plus line items.
type SuggestRequest struct {
	PayerID   *string          `json:"payerId"`
	LineItems []claim.LineItem `json:"lineItems"`
}

func (s *Service) Suggest(ctx context.Context, req SuggestRequest) ([]claim.ModifierSuggestion, error) {
	if len(req.LineItems) == 0 {
		return nil, apperr.Invalid("lineItems", "at least one line item is required")
	}
	rs, err := s.ruleSet(ctx)
	if err != nil {
		return nil, err
	}
	c := &claim.Claim{PayerID: req.PayerID, LineItems: make([]claim.LineItem, len(req.LineItems))}
	for i, li := range req.LineItems {
		li.CPT = strings.ToUpper(strings.TrimSpace(li.CPT))
		c.LineItems[i] = li
	}
	return s.advisor.Suggest(c, rs), nil
}

func (s *Service) GetModifierInfo(ctx context.Context, cpt string) (CPTInfo, error) {
	cpt = strings.ToUpper(strings.TrimSpace(cpt))
	if cpt == "" {
		return CPTInfo{}, apperr.Invalid("cpt", "is required")
	}
	rs, err := s.ruleSet(ctx)
	if err != nil {
		return CPTInfo{}, err
	}
	return s.advisor.Info(cpt, rs), nil
}

// GetAllModifierRules returns every rule, or the effective rules for payerID
// when it is set.
func (s *Service) GetAllModifierRules(ctx context.Context, payerID string) ([]catalog.ModifierRule, error) {
	rs, err := s.ruleSet(ctx)
	if err != nil {
		return nil, err
	}
	if payerID != "" {
		return rs.RulesFor(payerID), nil
	}
	return append([]catalog.ModifierRule{}, rs.ModifierRules...), nil
}

func (s *Service) ruleSet(ctx context.Context) (*catalog.RuleSet, error) {
	rs, err := s.catalog.RuleSet(ctx)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		s.logger.Error().Err(err).Str("tenant_id", db.TenantFromContext(ctx)).Str("op", "load modifier rules").Msg("persistence failure")
		return nil, apperr.Persistence("load modifier rules", err)
	}
	return rs, nil
}
