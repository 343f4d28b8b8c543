package ledger

import (
	"context"
	"sort"

	"stockledger/internal/core/enum"
	"stockledger/internal/core/id"
)

// Policy is the batch selection order of a (warehouse, material) pair.
type Policy uint8

const (
	PolicyFIFO Policy = 1
	PolicyLIFO Policy = 2
)

var policies = enum.NewTable("allocation policy",
	enum.Member[Policy]{Value: PolicyFIFO, Name: "FIFO"},
	enum.Member[Policy]{Value: PolicyLIFO, Name: "LIFO"},
)

// ParsePolicy converts an integer code.
func ParsePolicy(code int) (Policy, error) { return policies.FromCode(code) }

// ParsePolicyName converts "FIFO" or "LIFO" (case-insensitive).
func ParsePolicyName(name string) (Policy, error) { return policies.FromName(name) }

func (p Policy) String() string { return policies.Name(p) }

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool { return policies.Valid(p) }

func (p Policy) MarshalJSON() ([]byte, error) { return policies.Marshal(p) }

func (p *Policy) UnmarshalJSON(data []byte) error { return policies.Unmarshal(data, p) }

// compareAscending orders entries by (transactionDate, createdAt, id).
// The id makes the order total.
func compareAscending(a, b *Entry) int {
	if c := a.TransactionDate.Compare(b.TransactionDate); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return id.Compare(a.ID, b.ID)
}

// Before reports whether a is consumed before b under the policy.
func (p Policy) Before(a, b *Entry) bool {
	c := compareAscending(a, b)
	if p == PolicyLIFO {
		return c > 0
	}
	return c < 0
}

// Sort orders entries in consumption order for the policy.
func (p Policy) Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return p.Before(&entries[i], &entries[j])
	})
}

// PolicyResolver returns the policy configured for a pair.
type PolicyResolver interface {
	PolicyFor(ctx context.Context, pair Pair) (Policy, error)
}

// StaticPolicies resolves policies from a fixed default plus per-pair overrides.
type StaticPolicies struct {
	def       Policy
	overrides map[Pair]Policy
}

var _ PolicyResolver = (*StaticPolicies)(nil)

// NewStaticPolicies creates a resolver. An invalid default falls back to FIFO.
func NewStaticPolicies(def Policy, overrides map[Pair]Policy) *StaticPolicies {
	if !def.Valid() {
		def = PolicyFIFO
	}
	copied := make(map[Pair]Policy, len(overrides))
	for pair, p := range overrides {
		copied[pair] = p
	}
	return &StaticPolicies{def: def, overrides: copied}
}

// PolicyFor implements PolicyResolver.
func (s *StaticPolicies) PolicyFor(_ context.Context, pair Pair) (Policy, error) {
	if p, ok := s.overrides[pair]; ok {
		return p, nil
	}
	return s.def, nil
}

// Default returns the fallback policy.
func (s *StaticPolicies) Default() Policy { return s.def }
