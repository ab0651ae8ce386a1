// Package service shares one filter between concurrent callers and
// records every check it runs.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/filtersense/filtersense/internal/eventbus"
	"github.com/filtersense/filtersense/internal/filter"
	"github.com/filtersense/filtersense/internal/ruleset"
	"github.com/filtersense/filtersense/internal/store"
)

// Operation names recorded in the check log.
const (
	OpCheck    = "check"
	OpClassify = "classify"
	OpEnsure   = "ensure"
	OpRedact   = "redact"
)

// Service serializes rule changes against checks on a single filter.
// Checks hold the read lock, so they run in parallel with each other.
type Service struct {
	mu     sync.RWMutex
	filter *filter.Filter

	store    store.Store
	eventBus *eventbus.EventBus
	logger   *slog.Logger

	totalChecks  atomic.Int64
	totalBlocked atomic.Int64
}

// New wraps f. The store and event bus are optional.
func New(f *filter.Filter, s store.Store, eb *eventbus.EventBus, logger *slog.Logger) *Service {
	return &Service{
		filter:   f,
		store:    s,
		eventBus: eb,
		logger:   logger,
	}
}

// Check runs a check and records it.
func (s *Service) Check(ctx context.Context, source, text string) filter.Result {
	s.mu.RLock()
	res := s.filter.Check(text)
	s.mu.RUnlock()

	s.record(ctx, OpCheck, source, text, res, 0)
	return res
}

// Classify classifies text and records the underlying check.
func (s *Service) Classify(ctx context.Context, source, text string) filter.Classification {
	s.mu.RLock()
	res := s.filter.Check(text)
	s.mu.RUnlock()

	s.record(ctx, OpClassify, source, text, res, 0)
	return res.Classify()
}

// EnsureSafe returns a *filter.BlockedError when text matches any rule.
func (s *Service) EnsureSafe(ctx context.Context, source, text string) error {
	s.mu.RLock()
	res := s.filter.Check(text)
	s.mu.RUnlock()

	s.record(ctx, OpEnsure, source, text, res, 0)
	return res.Err()
}

// Redact scrubs text and records the check it was based on.
func (s *Service) Redact(ctx context.Context, source, text string) filter.Redaction {
	s.mu.RLock()
	res := s.filter.Check(text)
	red := s.filter.Redact(text)
	s.mu.RUnlock()

	s.record(ctx, OpRedact, source, text, res, red.Count)
	return red
}

// Rules returns a copy of the current rule set.
func (s *Service) Rules() []filter.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter.Rules()
}

// AddRule adds or replaces a rule.
func (s *Service) AddRule(name string, pattern filter.Matcher, severity filter.Severity) {
	s.mu.Lock()
	s.filter.AddRule(name, pattern, severity)
	count := len(s.filter.Rules())
	s.mu.Unlock()

	s.logger.Info("rule added", "rule", name, "severity", severity)
	s.publishRule("added", name, count)
}

// AddSpec compiles spec and adds it as a rule.
func (s *Service) AddSpec(spec ruleset.RuleSpec) error {
	if err := spec.Compile(); err != nil {
		return err
	}

	s.mu.Lock()
	spec.AddTo(s.filter)
	count := len(s.filter.Rules())
	s.mu.Unlock()

	s.logger.Info("rule added", "rule", spec.Name, "pattern", spec.Pattern, "severity", spec.Severity)
	s.publishRule("added", spec.Name, count)
	return nil
}

// RemoveRule removes a rule by name. Removing a missing rule is not an
// error.
func (s *Service) RemoveRule(name string) {
	s.mu.Lock()
	s.filter.RemoveRule(name)
	count := len(s.filter.Rules())
	s.mu.Unlock()

	s.logger.Info("rule removed", "rule", name)
	s.publishRule("removed", name, count)
}

// Replace swaps in a new filter, e.g. after a rule pack reload.
// Checks already running finish against the old rules.
func (s *Service) Replace(f *filter.Filter) {
	s.mu.Lock()
	s.filter = f
	count := len(f.Rules())
	s.mu.Unlock()

	s.logger.Info("rules replaced", "rules", count)
	s.publishRule("replaced", "", count)
}

// Totals returns the number of checks run and how many were unsafe.
func (s *Service) Totals() (checks, blocked int64) {
	return s.totalChecks.Load(), s.totalBlocked.Load()
}

func (s *Service) record(ctx context.Context, op, source, text string, res filter.Result, redacted int) {
	s.totalChecks.Add(1)
	c := res.Classify()

	if !res.Safe {
		s.totalBlocked.Add(1)
		s.logger.Info("content restricted",
			"operation", op,
			"source", source,
			"severity", c.Severity,
			"triggers", c.Triggers,
		)
	} else {
		s.logger.Debug("content allowed", "operation", op, "source", source)
	}

	if s.store == nil && s.eventBus == nil {
		return
	}

	rec := &store.CheckRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Source:    source,
		Operation: op,
		Sanitized: res.Sanitized,
		SizeBytes: len(text),
		Safe:      res.Safe,
		Label:     string(c.Label),
		Severity:  string(c.Severity),
		Triggers:  c.Triggers,
		Redacted:  redacted,
	}

	// Async; does not block
	if s.store != nil {
		if err := s.store.Record(ctx, rec); err != nil {
			s.logger.Error("record check", "id", rec.ID, "error", err)
		}
	}
	if s.eventBus != nil {
		s.eventBus.Publish(rec)
	}
}

func (s *Service) publishRule(typ, name string, count int) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.PublishRule(&eventbus.RuleEvent{
		Type:      typ,
		Rule:      name,
		Count:     count,
		Timestamp: time.Now(),
	})
}
