package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/filtersense/filtersense/internal/eventbus"
	"github.com/filtersense/filtersense/internal/filter"
	"github.com/filtersense/filtersense/internal/ruleset"
	"github.com/filtersense/filtersense/internal/store"
)

// memStore is an in-memory store.Store for tests.
type memStore struct {
	mu      sync.Mutex
	records []*store.CheckRecord
}

func (m *memStore) Record(_ context.Context, rec *store.CheckRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) Query(context.Context, store.QueryFilter) ([]store.CheckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.CheckRecord, len(m.records))
	for i, r := range m.records {
		out[len(m.records)-1-i] = *r
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id string) (*store.CheckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) Stats(context.Context, string) (*store.Stats, error) {
	return &store.Stats{}, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) all() []*store.CheckRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*store.CheckRecord(nil), m.records...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *memStore, *eventbus.EventBus) {
	t.Helper()
	ms := &memStore{}
	eb := eventbus.New(16)
	return New(filter.New(nil), ms, eb, testLogger()), ms, eb
}

func TestService_ClassifyRecordsCheck(t *testing.T) {
	svc, ms, eb := newTestService(t)
	ch, unsub := eb.Subscribe("test")
	defer unsub()

	c := svc.Classify(context.Background(), "api", "  Contact me at test@example.com ")
	if c.Label != filter.LabelRestricted || c.Severity != filter.SeverityMedium {
		t.Fatalf("unexpected classification: %+v", c)
	}

	recs := ms.all()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID == "" || rec.Operation != OpClassify || rec.Source != "api" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Sanitized != "Contact me at test@example.com" {
		t.Errorf("sanitized = %q", rec.Sanitized)
	}
	if rec.Safe || rec.Label != "restricted" || rec.Severity != "medium" {
		t.Errorf("unexpected verdict: %+v", rec)
	}
	if fmt.Sprint(rec.Triggers) != "[email]" {
		t.Errorf("triggers = %v", rec.Triggers)
	}

	select {
	case got := <-ch:
		if got.ID != rec.ID {
			t.Errorf("published id = %q, want %q", got.ID, rec.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published record")
	}
}

func TestService_EnsureSafe(t *testing.T) {
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.EnsureSafe(ctx, "cli", "Hello there, nice weather."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := svc.EnsureSafe(ctx, "cli", "shit")
	if !errors.Is(err, filter.ErrContentBlocked) {
		t.Fatalf("err = %v, want ErrContentBlocked", err)
	}
	if err.Error() != "Text contains unsafe content: profanity_strong" {
		t.Errorf("message = %q", err.Error())
	}

	checks, blocked := svc.Totals()
	if checks != 2 || blocked != 1 {
		t.Errorf("totals = %d/%d, want 2/1", checks, blocked)
	}
	if n := len(ms.all()); n != 2 {
		t.Errorf("records = %d, want 2", n)
	}
}

func TestService_Redact(t *testing.T) {
	svc, ms, _ := newTestService(t)

	red := svc.Redact(context.Background(), "api", "mail test@example.com")
	if red.Text != "mail [REDACTED:email]" || red.Count != 1 {
		t.Fatalf("unexpected redaction: %+v", red)
	}
	recs := ms.all()
	if len(recs) != 1 || recs[0].Redacted != 1 || recs[0].Operation != OpRedact {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestService_WithoutStoreOrBus(t *testing.T) {
	svc := New(filter.New(nil), nil, nil, testLogger())
	res := svc.Check(context.Background(), "", "test@example.com")
	if res.Safe {
		t.Fatal("expected unsafe result")
	}
	if checks, _ := svc.Totals(); checks != 1 {
		t.Errorf("checks = %d, want 1", checks)
	}
}

func TestService_RuleMutations(t *testing.T) {
	svc, _, eb := newTestService(t)
	events, unsub := eb.SubscribeRules("rules")
	defer unsub()
	ctx := context.Background()

	svc.RemoveRule("email")
	if !svc.Check(ctx, "", "test@example.com").Safe {
		t.Fatal("expected email to pass after removal")
	}

	svc.AddRule("email", regexp.MustCompile(`@example\.com`), filter.SeverityCritical)
	c := svc.Classify(ctx, "", "test@example.com")
	if c.Severity != filter.SeverityCritical {
		t.Fatalf("severity = %q, want critical", c.Severity)
	}

	if err := svc.AddSpec(ruleset.RuleSpec{Name: "ticket", Pattern: `jira-\d+`, IgnoreCase: true}); err != nil {
		t.Fatal(err)
	}
	rules := svc.Rules()
	last := rules[len(rules)-1]
	if last.Name != "ticket" || last.Severity != filter.SeverityMedium {
		t.Errorf("last rule = %+v", last)
	}

	if err := svc.AddSpec(ruleset.RuleSpec{Name: "bad", Pattern: `[`}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}

	want := []string{"removed", "added", "added"}
	for i, typ := range want {
		select {
		case ev := <-events:
			if ev.Type != typ {
				t.Errorf("event %d type = %q, want %q", i, ev.Type, typ)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestService_Replace(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.Replace(filter.New([]filter.Rule{}))
	if len(svc.Rules()) != 0 {
		t.Fatalf("rules = %d, want 0", len(svc.Rules()))
	}
	if !svc.Check(context.Background(), "", "shit").Safe {
		t.Fatal("expected empty rule set to allow everything")
	}
}

func TestService_ConcurrentMutationAndChecks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				name := fmt.Sprintf("rule-%d", i)
				svc.AddRule(name, regexp.MustCompile(name), filter.SeverityLow)
				svc.RemoveRule(name)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res := svc.Check(ctx, "", "test@example.com")
				if res.Safe {
					t.Error("email rule should always match")
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(svc.Rules()) != len(filter.DefaultRules()) {
		t.Errorf("rules = %d, want %d", len(svc.Rules()), len(filter.DefaultRules()))
	}
}
