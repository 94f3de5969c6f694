package reload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raaihank/log-redactor/internal/logger"
	"github.com/raaihank/log-redactor/internal/redact"
	"go.uber.org/zap"
)

// Source produces rule sets for the manager
type Source interface {
	// Name identifies the source in events and errors
	Name() string
	Load(ctx context.Context) (*redact.RuleSet, error)
}

// FileSource loads rules from a JSON or YAML file
type FileSource struct {
	Path string
}

// Name returns the file path
func (s FileSource) Name() string { return s.Path }

// Load reads and compiles the file
func (s FileSource) Load(ctx context.Context) (*redact.RuleSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return redact.LoadFile(s.Path)
}

// Status is the outcome of a reload attempt
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Triggers name what started a reload
const (
	TriggerStartup = "startup"
	TriggerWatch   = "watch"
	TriggerAPI     = "api"
	TriggerRemote  = "redis"
)

// Event records one reload attempt
type Event struct {
	Source   string    `json:"source"`
	Trigger  string    `json:"trigger"`
	Checksum string    `json:"checksum,omitempty"`
	Rules    int       `json:"rules"`
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Listener is notified after every reload attempt, successful or not.
// Listeners run synchronously, in registration order, while the reload
// lock is held.
type Listener func(ctx context.Context, ev Event)

// Manager coordinates reloads of the engine's rule set
type Manager struct {
	engine *redact.Engine
	source Source
	logger *logger.Logger

	mu        sync.Mutex // serialises reloads
	listeners []Listener
	last      atomic.Pointer[Event]

	now func() time.Time
}

// NewManager creates a manager with an unconfigured engine. Call Reload
// with TriggerStartup before the engine is used.
func NewManager(source Source, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		engine: &redact.Engine{},
		source: source,
		logger: log.WithComponent("reload"),
		now:    time.Now,
	}
}

// Engine returns the engine whose rules the manager replaces
func (m *Manager) Engine() *redact.Engine {
	return m.engine
}

// Source returns the configured rule source
func (m *Manager) Source() Source {
	return m.source
}

// Subscribe registers l for every later reload
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Reload loads a rule set from the source and swaps it into the engine.
// On failure the bound rule set is kept and the error is returned along
// with the failure event.
func (m *Manager) Reload(ctx context.Context, trigger string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reload(ctx, trigger)
}

// ReloadIfChanged reloads unless the bound rule set already has checksum.
// The returned bool reports whether a reload was attempted.
func (m *Manager) ReloadIfChanged(ctx context.Context, trigger, checksum string) (Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.engine.RuleSet(); current != nil && current.Checksum() == checksum {
		m.logger.Debug("Rules unchanged, skipping reload",
			zap.String("trigger", trigger),
			zap.String("checksum", checksum))
		return Event{}, false, nil
	}
	ev, err := m.reload(ctx, trigger)
	return ev, true, err
}

// reload does the work of Reload. Callers hold m.mu.
func (m *Manager) reload(ctx context.Context, trigger string) (Event, error) {
	ev := Event{
		Source:  m.source.Name(),
		Trigger: trigger,
		At:      m.now().UTC(),
	}

	rs, err := m.source.Load(ctx)
	if err == nil {
		_, err = m.engine.Swap(rs)
	}

	if err != nil {
		ev.Status = StatusFailed
		ev.Error = err.Error()
		if current := m.engine.RuleSet(); current != nil {
			ev.Checksum = current.Checksum()
			ev.Rules = current.Len()
		}
		m.logger.Error("Rules reload failed, keeping previous rules",
			zap.String("source", ev.Source),
			zap.String("trigger", trigger),
			zap.Bool("configured", m.engine.Configured()),
			zap.Error(err))
		m.record(ctx, ev)
		return ev, fmt.Errorf("failed to load rules from %s: %w", ev.Source, err)
	}

	ev.Status = StatusOK
	ev.Checksum = rs.Checksum()
	ev.Rules = rs.Len()

	m.logger.Info("Rules loaded",
		zap.String("source", ev.Source),
		zap.String("trigger", trigger),
		zap.Int("rules", ev.Rules),
		zap.String("checksum", ev.Checksum))

	m.record(ctx, ev)
	return ev, nil
}

// record stores ev and notifies listeners. Callers hold m.mu.
func (m *Manager) record(ctx context.Context, ev Event) {
	m.last.Store(&ev)
	for _, l := range m.listeners {
		l(ctx, ev)
	}
}

// Last returns the most recent reload event
func (m *Manager) Last() (Event, bool) {
	ev := m.last.Load()
	if ev == nil {
		return Event{}, false
	}
	return *ev, true
}
