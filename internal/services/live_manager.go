package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-storefront/internal/clock"
	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/google/uuid"
)

type LiveManagerConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultLiveManagerConfig() LiveManagerConfig {
	return LiveManagerConfig{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// BackoffDelay returns min(base * 2^attempt, max).
func (c LiveManagerConfig) BackoffDelay(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

type handlerEntry struct {
	id string
	fn domain.MessageHandler
}

type statusEntry struct {
	id string
	fn domain.StatusHandler
}

// generation scopes one connect cycle. Everything started on behalf of an
// older generation (dials, read loops, timers) is ignored once it is replaced.
type generation struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// LiveManager owns at most one live-update connection and fans inbound
// messages out to registered handlers.
type LiveManager struct {
	cfg    LiveManagerConfig
	dialer domain.LiveDialer
	clock  clock.Clock
	log    logger.Logger

	mu        sync.Mutex
	state     domain.LiveState
	subject   string
	transport domain.LiveTransport
	attempts  int
	timer     clock.Timer
	gen       *generation
	nextGen   uint64
	lastErr   error
	handlers  []handlerEntry
	listeners []statusEntry
	pending   []domain.LiveStatus
	flushing  bool
}

func NewLiveManager(cfg LiveManagerConfig, dialer domain.LiveDialer, clk clock.Clock, log logger.Logger) *LiveManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &LiveManager{
		cfg:    cfg,
		dialer: dialer,
		clock:  clk,
		log:    log,
		state:  domain.LiveIdle,
	}
}

// Connect subscribes to subjectID and registers handler. A connection to a
// different subject is torn down first. The dial happens asynchronously.
func (m *LiveManager) Connect(subjectID string, handler domain.MessageHandler) (string, error) {
	if subjectID == "" {
		return "", domain.ErrEmptySubject
	}

	m.mu.Lock()
	if m.subject == subjectID && m.isLiveLocked() {
		id := m.addHandlerLocked(handler)
		m.mu.Unlock()
		return id, nil
	}

	if m.subject != "" && m.subject != subjectID {
		m.log.Info("Switching live subject", "from", m.subject, "to", subjectID)
		m.teardownLocked()
		m.handlers = nil
	}

	m.subject = subjectID
	id := m.addHandlerLocked(handler)
	gen := m.startGenerationLocked()
	m.enqueueLocked()
	m.mu.Unlock()

	m.flush()
	go m.dial(gen)
	return id, nil
}

// Reconnect re-dials the last subject with a fresh attempt budget. It is the
// way out of the failed state.
func (m *LiveManager) Reconnect() error {
	m.mu.Lock()
	if m.subject == "" {
		m.mu.Unlock()
		return domain.ErrNoSubject
	}
	gen := m.startGenerationLocked()
	m.enqueueLocked()
	m.mu.Unlock()

	m.flush()
	go m.dial(gen)
	return nil
}

// Disconnect clears handlers, cancels any pending reconnect and closes the
// transport. Safe to call in any state.
func (m *LiveManager) Disconnect() {
	m.mu.Lock()
	wasIdle := m.state == domain.LiveIdle && m.subject == ""
	m.teardownLocked()
	m.handlers = nil
	m.subject = ""
	m.attempts = 0
	m.lastErr = nil
	m.state = domain.LiveIdle
	if !wasIdle {
		m.enqueueLocked()
	}
	m.mu.Unlock()

	if !wasIdle {
		m.log.Info("Live connection disconnected")
		m.flush()
	}
}

func (m *LiveManager) AddMessageHandler(handler domain.MessageHandler) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addHandlerLocked(handler)
}

func (m *LiveManager) RemoveMessageHandler(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := make([]handlerEntry, 0, len(m.handlers))
	for _, h := range m.handlers {
		if h.id != id {
			handlers = append(handlers, h)
		}
	}
	m.handlers = handlers
}

// OnStatus registers a listener for state transitions, including the terminal failed state.
func (m *LiveManager) OnStatus(fn domain.StatusHandler) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.listeners = append(m.listeners, statusEntry{id: id, fn: fn})
	return id
}

func (m *LiveManager) RemoveStatusListener(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	listeners := make([]statusEntry, 0, len(m.listeners))
	for _, l := range m.listeners {
		if l.id != id {
			listeners = append(listeners, l)
		}
	}
	m.listeners = listeners
}

func (m *LiveManager) Status() domain.LiveStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *LiveManager) HandlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *LiveManager) statusLocked() domain.LiveStatus {
	return domain.LiveStatus{
		State:   m.state,
		Subject: m.subject,
		Attempt: m.attempts,
		Err:     m.lastErr,
	}
}

func (m *LiveManager) isLiveLocked() bool {
	switch m.state {
	case domain.LiveConnecting, domain.LiveOpen, domain.LiveReconnecting:
		return true
	}
	return false
}

func (m *LiveManager) addHandlerLocked(handler domain.MessageHandler) string {
	id := uuid.NewString()
	m.handlers = append(m.handlers, handlerEntry{id: id, fn: handler})
	return id
}

func (m *LiveManager) startGenerationLocked() *generation {
	m.teardownLocked()
	m.nextGen++
	ctx, cancel := context.WithCancel(context.Background())
	m.gen = &generation{id: m.nextGen, ctx: ctx, cancel: cancel}
	m.attempts = 0
	m.lastErr = nil
	m.state = domain.LiveConnecting
	return m.gen
}

// teardownLocked invalidates the current generation: it stops the reconnect
// timer, aborts an in-flight dial and closes the transport.
func (m *LiveManager) teardownLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.gen != nil {
		m.gen.cancel()
		m.gen = nil
	}
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.log.Debug("Failed to close live transport", "subject", m.subject, "error", err)
		}
		m.transport = nil
	}
}

func (m *LiveManager) current(gen *generation) bool {
	return m.gen != nil && m.gen.id == gen.id
}

func (m *LiveManager) dial(gen *generation) {
	m.mu.Lock()
	if !m.current(gen) {
		m.mu.Unlock()
		return
	}
	subject := m.subject
	m.mu.Unlock()

	m.log.Info("Connecting live updates", "subject", subject)
	transport, err := m.dialer.Dial(gen.ctx, subject)
	if err != nil {
		m.handleFailure(gen, fmt.Errorf("dial %s: %w", subject, err))
		return
	}

	m.mu.Lock()
	if !m.current(gen) {
		m.mu.Unlock()
		transport.Close()
		return
	}
	m.transport = transport
	m.attempts = 0
	m.lastErr = nil
	m.state = domain.LiveOpen
	m.enqueueLocked()
	m.mu.Unlock()

	m.log.Info("Live connection open", "subject", subject)
	m.flush()
	m.readLoop(gen, subject, transport)
}

func (m *LiveManager) readLoop(gen *generation, subject string, transport domain.LiveTransport) {
	for {
		data, err := transport.ReadMessage()
		receivedAt := m.clock.Now()
		if err != nil {
			m.handleFailure(gen, fmt.Errorf("read %s: %w", subject, err))
			return
		}

		msg, err := domain.DecodeLiveMessage(subject, data, receivedAt)
		if err != nil {
			m.log.Warn("Dropping malformed live message", "subject", subject, "payload", string(data), "error", err)
			continue
		}

		if !m.dispatch(gen, msg) {
			return
		}
	}
}

// dispatch delivers msg to every handler in registration order. It reports
// false when gen is no longer current.
func (m *LiveManager) dispatch(gen *generation, msg *domain.LiveMessage) bool {
	m.mu.Lock()
	if !m.current(gen) {
		m.mu.Unlock()
		return false
	}
	handlers := make([]handlerEntry, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		m.invoke(h, msg)
	}
	return true
}

func (m *LiveManager) invoke(h handlerEntry, msg *domain.LiveMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Live message handler panicked", "handler_id", h.id, "type", msg.Type, "panic", r)
		}
	}()
	h.fn(msg)
}

func (m *LiveManager) handleFailure(gen *generation, err error) {
	m.mu.Lock()
	if !m.current(gen) {
		m.mu.Unlock()
		return
	}

	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}
	m.lastErr = err

	if m.attempts < m.cfg.MaxAttempts {
		m.attempts++
		delay := m.cfg.BackoffDelay(m.attempts)
		m.state = domain.LiveReconnecting
		m.timer = m.clock.AfterFunc(delay, func() { m.retry(gen) })
		attempt, subject := m.attempts, m.subject
		m.enqueueLocked()
		m.mu.Unlock()

		m.log.Warn("Live connection lost, scheduling reconnect",
			"subject", subject, "attempt", attempt, "delay", delay, "error", err)
		m.flush()
		return
	}

	m.state = domain.LiveFailed
	m.lastErr = fmt.Errorf("%w: %v", domain.ErrReconnectExhausted, err)
	m.gen.cancel()
	m.gen = nil
	subject := m.subject
	handlers := make([]handlerEntry, len(m.handlers))
	copy(handlers, m.handlers)
	m.enqueueLocked()
	m.mu.Unlock()

	m.log.Error("Live reconnect attempts exhausted", "subject", subject, "max_attempts", m.cfg.MaxAttempts, "error", err)
	m.flush()

	unavailable := &domain.LiveMessage{
		Type:       domain.MessageLiveUnavailable,
		Subject:    subject,
		Raw:        map[string]any{"type": domain.MessageLiveUnavailable, "subject": subject},
		ReceivedAt: m.clock.Now(),
	}
	for _, h := range handlers {
		m.invoke(h, unavailable)
	}
}

func (m *LiveManager) retry(gen *generation) {
	m.mu.Lock()
	if !m.current(gen) || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.state = domain.LiveConnecting
	m.enqueueLocked()
	m.mu.Unlock()

	m.flush()
	go m.dial(gen)
}

// enqueueLocked records the status as of this transition. Listeners see it
// even if another transition lands before they are called.
func (m *LiveManager) enqueueLocked() {
	m.pending = append(m.pending, m.statusLocked())
}

// flush delivers queued statuses in transition order. A flush started while
// another is delivering (for example from inside a listener) leaves the queue
// to the active one.
func (m *LiveManager) flush() {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	for len(m.pending) > 0 {
		batch := m.pending
		m.pending = nil
		listeners := make([]statusEntry, len(m.listeners))
		copy(listeners, m.listeners)
		m.mu.Unlock()

		for _, status := range batch {
			for _, l := range listeners {
				m.invokeListener(l, status)
			}
		}

		m.mu.Lock()
	}
	m.flushing = false
	m.mu.Unlock()
}

func (m *LiveManager) invokeListener(l statusEntry, status domain.LiveStatus) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Live status listener panicked", "listener_id", l.id, "state", status.State, "panic", r)
		}
	}()
	l.fn(status)
}
