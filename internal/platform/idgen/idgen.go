// Package idgen generates record ids and human-readable claim numbers.
package idgen

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator is injected wherever new identifiers are minted so tests can make
// them deterministic.
type Generator interface {
	NewID() uuid.UUID
	NewClaimNumber() string
}

// UUIDGenerator uses random v4 UUIDs. Claim numbers look like
// CLM-20250101-3F9A1C2B: service day plus eight hex digits of a fresh UUID.
type UUIDGenerator struct {
	Now func() time.Time
}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{Now: time.Now}
}

func (g *UUIDGenerator) NewID() uuid.UUID {
	return uuid.New()
}

func (g *UUIDGenerator) NewClaimNumber() string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("CLM-%s-%s", now().UTC().Format("20060102"), suffix)
}

// Sequence yields predictable ids and claim numbers (CLM-000001, ...).
type Sequence struct {
	Prefix string
	n      atomic.Int64
}

func (s *Sequence) NewID() uuid.UUID {
	n := s.n.Add(1)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s-%d", s.Prefix, n)))
}

func (s *Sequence) NewClaimNumber() string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "CLM"
	}
	return fmt.Sprintf("%s-%06d", prefix, s.n.Add(1))
}
