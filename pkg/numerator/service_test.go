package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "stockledger/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences: strict calls pass only the key and
// add one, cached calls pass the range size as the second argument.
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
	calls        int
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	var increment int64 = 1
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}
	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

var period = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("SO")

	num, err := svc.GetNextNumber(ctx, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SO-2026-00001" {
		t.Errorf("expected SO-2026-00001, got %s", num)
	}

	num, err = svc.GetNextNumber(ctx, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SO-2026-00002" {
		t.Errorf("expected SO-2026-00002, got %s", num)
	}
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("SI")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	// First call reserves 1..10.
	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SI-2026-00001" {
		t.Errorf("expected SI-2026-00001, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to be 10, got %d", q.currentValue)
	}

	// The rest of the range is served from memory.
	for i := 0; i < 9; i++ {
		if _, err := svc.GetNextNumber(ctx, cfg, opts, period); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if q.calls != 1 {
		t.Errorf("expected a single DB call, got %d", q.calls)
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SI-2026-00011" {
		t.Errorf("expected SI-2026-00011, got %s", num)
	}
	if q.currentValue != 20 {
		t.Errorf("expected DB value to be 20, got %d", q.currentValue)
	}
}

func TestMemory(t *testing.T) {
	gen := NewMemory()
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("ADJ")

	first, _ := gen.GetNextNumber(ctx, cfg, nil, period)
	second, _ := gen.GetNextNumber(ctx, cfg, nil, period)
	if first != "ADJ-2026-00001" || second != "ADJ-2026-00002" {
		t.Errorf("unexpected sequence %s, %s", first, second)
	}

	nextYear, _ := gen.GetNextNumber(ctx, cfg, nil, period.AddDate(1, 0, 0))
	if nextYear != "ADJ-2027-00001" {
		t.Errorf("expected yearly reset, got %s", nextYear)
	}

	if err := gen.SetNextNumber(ctx, cfg, period, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	num, _ := gen.GetNextNumber(ctx, cfg, nil, period)
	if num != "ADJ-2026-00100" {
		t.Errorf("expected ADJ-2026-00100, got %s", num)
	}
}
