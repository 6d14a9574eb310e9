// Package session tracks per-conversation bot state. Sessions live for
// the lifetime of the process; a stopped session is frozen, not removed.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Phase is the dispatcher state of one conversation.
type Phase int

const (
	Uninitialized Phase = iota
	AwaitingRun
	Ready
	Inactive
)

var (
	ErrNoSession       = errors.New("no session for chat")
	ErrUnknownRun      = errors.New("run is not in the last enumeration")
	ErrInvalidInterval = errors.New("interval must be a positive number of seconds")
)

// State is the conversation record for one chat. All access happens on
// the dispatcher goroutine; the Manager's lock only guards the table.
type State struct {
	ChatID       int64
	Phase        Phase
	Active       bool
	CurrentRun   string
	KnownMetrics []string
	LastRuns     []string
	Watchlist    []string
	Interval     time.Duration
	LastSeenStep map[string]int
	LastReport   time.Time
	NextDue      time.Time
}

func (s *State) Knows(metric string) bool {
	for _, name := range s.KnownMetrics {
		if name == metric {
			return true
		}
	}
	return false
}

// Manager owns the chat-id to session table.
type Manager struct {
	mu              sync.Mutex
	sessions        map[int64]*State
	defaultInterval time.Duration
	watchlist       []string
	now             func() time.Time
}

func NewManager(defaultInterval time.Duration, watchlist []string) *Manager {
	return &Manager{
		sessions:        make(map[int64]*State),
		defaultInterval: defaultInterval,
		watchlist:       watchlist,
		now:             time.Now,
	}
}

// GetOrCreate returns the session for chatID, creating it on first use.
func (m *Manager) GetOrCreate(chatID int64) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.sessions[chatID]; ok {
		return st
	}

	now := m.now()
	st := &State{
		ChatID:       chatID,
		Phase:        Uninitialized,
		Active:       true,
		Watchlist:    append([]string(nil), m.watchlist...),
		Interval:     m.defaultInterval,
		LastSeenStep: make(map[string]int),
		LastReport:   now,
		NextDue:      now.Add(m.defaultInterval),
	}
	m.sessions[chatID] = st
	return st
}

// Lookup returns the session for chatID or nil if none exists yet.
func (m *Manager) Lookup(chatID int64) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[chatID]
}

// SetLastRuns records the most recent run enumeration for chatID.
func (m *Manager) SetLastRuns(chatID int64, runs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[chatID]; ok {
		st.LastRuns = append([]string(nil), runs...)
	}
}

func (m *Manager) SetPhase(chatID int64, phase Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[chatID]; ok {
		st.Phase = phase
	}
}

// SelectRun validates run against the last enumeration, makes it current
// and refreshes the known metrics through listMetrics. An empty refresh
// result keeps the previous metric list (stale beats cleared).
func (m *Manager) SelectRun(chatID int64, run string, listMetrics func(run string) []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[chatID]
	if !ok {
		return ErrNoSession
	}

	found := false
	for _, candidate := range st.LastRuns {
		if candidate == run {
			found = true
			break
		}
	}
	if !found {
		return errors.Wrap(ErrUnknownRun, run)
	}

	st.CurrentRun = run
	if listMetrics != nil {
		if names := listMetrics(run); len(names) > 0 {
			st.KnownMetrics = names
		}
	}
	st.Phase = Ready
	return nil
}

// SetKnownMetrics replaces the cached metric list. An empty refresh is
// treated as a failed refresh and keeps the previous list.
func (m *Manager) SetKnownMetrics(chatID int64, names []string) {
	if len(names) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[chatID]; ok {
		st.KnownMetrics = append([]string(nil), names...)
	}
}

// SetInterval updates the report interval. The next due time is
// retargeted off the last report so an interval change never resets the
// reporting phase; the next fire may legitimately be already overdue.
func (m *Manager) SetInterval(chatID int64, seconds int) error {
	if seconds <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[chatID]
	if !ok {
		return ErrNoSession
	}
	st.Interval = time.Duration(seconds) * time.Second
	st.NextDue = st.LastReport.Add(st.Interval)
	return nil
}

// Deactivate freezes the session. It stays in the table but refuses all
// further commands.
func (m *Manager) Deactivate(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[chatID]; ok {
		st.Active = false
		st.Phase = Inactive
	}
}

// Due returns the active sessions whose next report is due at now,
// ordered by chat id.
func (m *Manager) Due(now time.Time) []*State {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*State
	for _, st := range m.sessions {
		if st.Active && len(st.Watchlist) > 0 && !st.NextDue.After(now) {
			due = append(due, st)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ChatID < due[j].ChatID })
	return due
}

// MarkReported records the last pushed step for a watched metric.
func (m *Manager) MarkReported(chatID int64, metric string, step int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[chatID]; ok {
		st.LastSeenStep[metric] = step
	}
}

// MarkTicked advances the session's due-time bookkeeping after a tick
// processed it.
func (m *Manager) MarkTicked(chatID int64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[chatID]; ok {
		st.LastReport = now
		st.NextDue = now.Add(st.Interval)
	}
}

// NextTick returns when the next auto-report evaluation is owed: the
// earliest NextDue across active sessions with a watchlist, or a full
// default interval from now when no session is eligible.
func (m *Manager) NextTick(now time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	var earliest time.Time
	for _, st := range m.sessions {
		if !st.Active || len(st.Watchlist) == 0 {
			continue
		}
		if earliest.IsZero() || st.NextDue.Before(earliest) {
			earliest = st.NextDue
		}
	}
	if earliest.IsZero() {
		return now.Add(m.defaultInterval)
	}
	return earliest
}
