// Package state holds the latest balance and subscription results shared
// between the scheduler, the HTTP API and WebSocket clients.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
)

// Event names the snapshot that changed.
type Event string

const (
	EventBalance      Event = "balance"
	EventSubscription Event = "subscription"
)

// BalanceSummary counts the results of one balance run.
type BalanceSummary struct {
	Total     int `json:"total"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	NeedAlarm int `json:"need_alarm"`
}

// BalanceSnapshot is the latest set of project results.
type BalanceSnapshot struct {
	LastUpdate time.Time                  `json:"last_update"`
	Projects   []model.ProjectCheckResult `json:"projects"`
	Summary    BalanceSummary             `json:"summary"`
}

// SubscriptionSummary counts the results of one subscription run.
type SubscriptionSummary struct {
	Total     int `json:"total"`
	NeedAlert int `json:"need_alert"`
}

// SubscriptionSnapshot is the latest set of subscription results.
type SubscriptionSnapshot struct {
	LastUpdate    time.Time                       `json:"last_update"`
	Subscriptions []model.SubscriptionCheckResult `json:"subscriptions"`
	Summary       SubscriptionSummary             `json:"summary"`
}

// Listener is called after a snapshot is replaced.
type Listener func(Event)

// Store swaps immutable snapshots under a lock. Readers get copies.
type Store struct {
	mu           sync.RWMutex
	balance      BalanceSnapshot
	subscription SubscriptionSnapshot

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int

	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		listeners: make(map[int]Listener),
		now:       time.Now,
		logger:    logger.With("component", "state"),
	}
}

// UpdateBalance replaces the balance snapshot with results.
func (s *Store) UpdateBalance(results []model.ProjectCheckResult) {
	snap := BalanceSnapshot{
		LastUpdate: s.now(),
		Projects:   append([]model.ProjectCheckResult(nil), results...),
		Summary:    summarizeBalance(results),
	}
	s.mu.Lock()
	s.balance = snap
	s.mu.Unlock()

	s.logger.Info("balance state updated",
		"total", snap.Summary.Total, "failed", snap.Summary.Failed, "need_alarm", snap.Summary.NeedAlarm)
	s.notify(EventBalance)
}

// UpdateSubscriptions replaces the subscription snapshot with results.
func (s *Store) UpdateSubscriptions(results []model.SubscriptionCheckResult) {
	snap := SubscriptionSnapshot{
		LastUpdate:    s.now(),
		Subscriptions: append([]model.SubscriptionCheckResult(nil), results...),
		Summary:       summarizeSubscriptions(results),
	}
	s.mu.Lock()
	s.subscription = snap
	s.mu.Unlock()

	s.logger.Info("subscription state updated", "total", snap.Summary.Total, "need_alert", snap.Summary.NeedAlert)
	s.notify(EventSubscription)
}

// Balance returns a copy of the balance snapshot.
func (s *Store) Balance() BalanceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.balance
	snap.Projects = append(make([]model.ProjectCheckResult, 0, len(s.balance.Projects)), s.balance.Projects...)
	return snap
}

// Subscriptions returns a copy of the subscription snapshot.
func (s *Store) Subscriptions() SubscriptionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.subscription
	snap.Subscriptions = append(make([]model.SubscriptionCheckResult, 0, len(s.subscription.Subscriptions)), s.subscription.Subscriptions...)
	return snap
}

// HasData reports whether a balance run has completed or been restored.
func (s *Store) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.balance.LastUpdate.IsZero()
}

// LastUpdate returns the time of the latest balance snapshot.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance.LastUpdate
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

// Clear drops both snapshots.
func (s *Store) Clear() {
	s.mu.Lock()
	s.balance = BalanceSnapshot{}
	s.subscription = SubscriptionSnapshot{}
	s.mu.Unlock()
}

func (s *Store) notify(ev Event) {
	s.lmu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		s.call(fn, ev)
	}
}

func (s *Store) call(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state listener panicked", "event", ev, "panic", r)
		}
	}()
	fn(ev)
}

type cacheFile struct {
	Projects      []model.ProjectCheckResult      `json:"projects"`
	Subscriptions []model.SubscriptionCheckResult `json:"subscriptions"`
	Metadata      struct {
		BalanceLastUpdate      time.Time `json:"balance_last_update"`
		SubscriptionLastUpdate time.Time `json:"subscription_last_update"`
		SavedAt                time.Time `json:"saved_at"`
	} `json:"metadata"`
}

// SaveFile writes both snapshots to path as JSON, replacing it atomically.
func (s *Store) SaveFile(path string) error {
	bal, sub := s.Balance(), s.Subscriptions()

	var f cacheFile
	f.Projects = bal.Projects
	f.Subscriptions = sub.Subscriptions
	f.Metadata.BalanceLastUpdate = bal.LastUpdate
	f.Metadata.SubscriptionLastUpdate = sub.LastUpdate
	f.Metadata.SavedAt = s.now()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// LoadFile restores snapshots saved by SaveFile and rebuilds their summaries.
// A missing file returns an error satisfying errors.Is(err, fs.ErrNotExist).
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse state file %s: %w", path, err)
	}

	s.mu.Lock()
	s.balance = BalanceSnapshot{
		LastUpdate: f.Metadata.BalanceLastUpdate,
		Projects:   f.Projects,
		Summary:    summarizeBalance(f.Projects),
	}
	s.subscription = SubscriptionSnapshot{
		LastUpdate:    f.Metadata.SubscriptionLastUpdate,
		Subscriptions: f.Subscriptions,
		Summary:       summarizeSubscriptions(f.Subscriptions),
	}
	s.mu.Unlock()

	s.logger.Info("state restored", "path", path, "projects", len(f.Projects), "subscriptions", len(f.Subscriptions))
	s.notify(EventBalance)
	s.notify(EventSubscription)
	return nil
}

func summarizeBalance(results []model.ProjectCheckResult) BalanceSummary {
	sum := BalanceSummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			sum.Success++
		} else {
			sum.Failed++
		}
		if r.NeedAlarm {
			sum.NeedAlarm++
		}
	}
	return sum
}

func summarizeSubscriptions(results []model.SubscriptionCheckResult) SubscriptionSummary {
	sum := SubscriptionSummary{Total: len(results)}
	for _, r := range results {
		if r.NeedAlert {
			sum.NeedAlert++
		}
	}
	return sum
}
