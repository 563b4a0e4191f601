// Package locker owns the locker pool, the active card assignments and the
// transaction history, and implements drop-off and pickup on top of them.
package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"laundry-locker/internal/clock"
	"laundry-locker/internal/metrics"
	"laundry-locker/internal/model"
	"laundry-locker/internal/reader"
	"laundry-locker/internal/store"
	"laundry-locker/internal/telemetry"
)

// Opener drives a locker door through its unlock/hold/lock sequence.
// *actuator.Sequencer implements it.
type Opener interface {
	Open(ctx context.Context, lockerID string) error
}

// Catalog resolves wash types. *washtype.Catalog implements it.
type Catalog interface {
	List(ctx context.Context) []model.WashType
	Lookup(ctx context.Context, id model.WashTypeID) (model.WashType, bool)
}

// Publisher forwards events to the remote collector without blocking.
// *telemetry.Dispatcher implements it.
type Publisher interface {
	Publish(action string, payload any)
}

// RemoteStatus reports telemetry delivery health.
type RemoteStatus interface {
	Status() telemetry.Status
}

// Notifier is told about lockers that became free.
// *notification.WorkerPool implements it.
type Notifier interface {
	Dispatch(lockerID string)
}

// CardSource is the recent-read buffer fed by the detector.
// *cardcache.Cache implements it.
type CardSource interface {
	LastCard() (model.CardRead, bool)
	Clear()
}

// ReaderMonitor exposes the detector's counters and manual reset.
// *reader.Detector implements it.
type ReaderMonitor interface {
	Stats() reader.Stats
	Reinitialize(ctx context.Context) error
}

// DeviceInfo identifies this installation.
type DeviceInfo struct {
	DeviceName     string `json:"device_name"`
	DeviceLocation string `json:"device_location"`
	SystemName     string `json:"system_name"`
}

// Service is the locker controller. All state mutations happen under one
// mutex, including the save, so concurrent callers never observe a locker
// that is both free and assigned.
type Service struct {
	lockers []string
	store   store.Store

	opener   Opener
	catalog  Catalog
	events   Publisher
	remote   RemoteStatus
	notifier Notifier
	cards    CardSource
	reader   ReaderMonitor
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
	started  time.Time

	mu         sync.Mutex
	state      *model.State
	device     DeviceInfo
	lastSave   *time.Time
	saveErr    error
	saveFailed *time.Time

	// view is what Status, Health, Snapshot and DeviceInfo read. It is
	// replaced after every change; readers never take s.mu.
	view atomic.Pointer[statusView]
}

// statusView is an immutable copy of the figures read by the status calls.
type statusView struct {
	activeCards  int
	available    []string
	transactions int
	device       DeviceInfo
	lastSave     *time.Time
	saveErr      error
	saveFailed   *time.Time
}

// refreshView publishes the current figures. The caller holds s.mu.
func (s *Service) refreshView() {
	s.view.Store(&statusView{
		activeCards:  len(s.state.ActiveCards),
		available:    slices.Clone(s.state.AvailableLockers),
		transactions: len(s.state.Transactions),
		device:       s.device,
		lastSave:     s.lastSave,
		saveErr:      s.saveErr,
		saveFailed:   s.saveFailed,
	})
}

// Option customises a Service.
type Option func(*Service)

// WithOpener sets the door actuator.
func WithOpener(o Opener) Option { return func(s *Service) { s.opener = o } }

// WithCatalog sets the wash-type catalog.
func WithCatalog(c Catalog) Option { return func(s *Service) { s.catalog = c } }

// WithPublisher sets the telemetry sink.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

// WithRemoteStatus sets where telemetry health is read from.
func WithRemoteStatus(r RemoteStatus) Option { return func(s *Service) { s.remote = r } }

// WithNotifier sets the locker-available notifier.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithCards sets the recent card buffer.
func WithCards(c CardSource) Option { return func(s *Service) { s.cards = c } }

// WithReader sets the card detector.
func WithReader(r ReaderMonitor) Option { return func(s *Service) { s.reader = r } }

// WithClock sets the clock.
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithDevice sets the initial device identity.
func WithDevice(d DeviceInfo) Option { return func(s *Service) { s.device = d } }

// WithIDGenerator replaces the transaction id generator.
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// New creates a Service for the given configured lockers, in pool order.
// Call Load before serving requests.
func New(st store.Store, lockers []string, opts ...Option) *Service {
	s := &Service{
		lockers: slices.Clone(lockers),
		store:   st,
		clock:   clock.Real{},
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	s.logger = s.logger.With("component", "locker")
	s.started = s.clock.Now()
	s.state = model.NewState(s.lockers)
	s.refreshView()
	return s
}

// quarantiner is implemented by stores that can move an unreadable state
// aside.
type quarantiner interface {
	Quarantine(now time.Time) (string, error)
}

// Load reads the persisted state and repairs it against the configured
// lockers. A missing or unreadable state is replaced by the default state.
func (s *Service) Load(ctx context.Context) error {
	st, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNoState):
		s.logger.Info("no saved state, starting with all lockers free", "lockers", s.lockers)
		st = nil
	case errors.Is(err, store.ErrCorruptState):
		s.logger.Error("saved state is unreadable, starting with all lockers free", "err", err)
		if q, ok := s.store.(quarantiner); ok {
			if moved, qerr := q.Quarantine(s.clock.Now()); qerr != nil {
				s.logger.Error("moving unreadable state aside", "err", qerr)
			} else {
				s.logger.Warn("unreadable state moved aside", "path", moved)
			}
		}
		st = nil
	case err != nil:
		return fmt.Errorf("load locker state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := st == nil
	if st == nil {
		st = model.NewState(s.lockers)
	}
	for _, repair := range reconcile(st, s.lockers) {
		s.logger.Warn("repaired locker state", "repair", repair)
		dirty = true
	}
	s.state = st
	if dirty {
		s.persist(ctx)
	}
	s.observePool()
	s.logger.Info("locker state loaded",
		"active_cards", len(st.ActiveCards),
		"available_lockers", len(st.AvailableLockers),
		"transactions", len(st.Transactions))
	return nil
}

// reconcile makes the pool consistent with the configured lockers and the
// active assignments. It returns a description of each change.
func reconcile(st *model.State, lockers []string) []string {
	var repairs []string
	configured := make(map[string]bool, len(lockers))
	for _, id := range lockers {
		configured[id] = true
	}
	occupied := make(map[string]bool, len(st.ActiveCards))
	for _, a := range st.ActiveCards {
		occupied[a.LockerID] = true
	}

	seen := make(map[string]bool, len(st.AvailableLockers))
	pool := make([]string, 0, len(lockers))
	for _, id := range st.AvailableLockers {
		switch {
		case seen[id]:
			repairs = append(repairs, fmt.Sprintf("dropped duplicate pool entry for locker %s", id))
		case occupied[id]:
			repairs = append(repairs, fmt.Sprintf("locker %s is assigned, removed from pool", id))
		case !configured[id]:
			repairs = append(repairs, fmt.Sprintf("locker %s is not configured, removed from pool", id))
		default:
			pool = append(pool, id)
		}
		seen[id] = true
	}
	for _, id := range lockers {
		if !occupied[id] && !slices.Contains(pool, id) {
			pool = append(pool, id)
			repairs = append(repairs, fmt.Sprintf("locker %s was neither free nor assigned, added to pool", id))
		}
	}
	st.AvailableLockers = pool
	return repairs
}

// persist saves the state. The caller holds s.mu. A failure leaves the
// in-memory state as is and is reported through Health.
func (s *Service) persist(ctx context.Context) {
	if err := s.store.Save(ctx, s.state); err != nil {
		now := s.clock.Now()
		s.saveErr = fmt.Errorf("%w: %w", ErrPersistence, err)
		s.saveFailed = &now
		s.logger.Error("failed to save locker state", "err", err)
		s.metrics.PersistFailures.Inc()
		return
	}
	now := s.clock.Now()
	s.lastSave = &now
	s.saveErr = nil
}

// observePool updates the pool gauge and the read view after a change. The
// caller holds s.mu.
func (s *Service) observePool() {
	s.metrics.AvailableLockers.Set(float64(len(s.state.AvailableLockers)))
	s.refreshView()
}

// activeKey finds the assignment key for cardID, exact match first and then
// ignoring case.
func (s *Service) activeKey(cardID string) (string, bool) {
	if _, ok := s.state.ActiveCards[cardID]; ok {
		return cardID, true
	}
	var matches []string
	for key := range s.state.ActiveCards {
		if strings.EqualFold(key, cardID) {
			matches = append(matches, key)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// openTransaction returns the index of a non-completed transaction for
// cardID, or -1.
func (s *Service) openTransaction(cardID string) int {
	for i, t := range s.state.Transactions {
		if t.Open() && strings.EqualFold(strings.TrimSpace(t.CardID), cardID) {
			return i
		}
	}
	return -1
}

func (s *Service) transactionByID(id string) int {
	for i, t := range s.state.Transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// release returns lockerID to the pool unless an assignment still holds it.
func (s *Service) release(lockerID string) bool {
	if lockerID == "" || slices.Contains(s.state.AvailableLockers, lockerID) {
		return false
	}
	for _, a := range s.state.ActiveCards {
		if a.LockerID == lockerID {
			return false
		}
	}
	s.state.AvailableLockers = append(s.state.AvailableLockers, lockerID)
	return true
}

func (s *Service) publish(action string, t model.Transaction) {
	if s.events == nil {
		return
	}
	s.events.Publish(action, newTransactionEvent(t))
}

// transactionEvent is the telemetry form of a transaction: the wash type is
// reduced to its name.
type transactionEvent struct {
	ID                      string                  `json:"transaction_id"`
	CardID                  string                  `json:"card_id"`
	LockerID                string                  `json:"locker_id"`
	WashType                string                  `json:"wash_type"`
	Status                  model.TransactionStatus `json:"status"`
	DropOffTime             time.Time               `json:"drop_off_time"`
	PickupTime              *time.Time              `json:"pickup_time"`
	EstimatedCompletionTime *time.Time              `json:"estimated_completion_time"`
	DeviceInfo              map[string]string       `json:"device_info"`
}

func newTransactionEvent(t model.Transaction) transactionEvent {
	name := t.WashType.Name
	if name == "" {
		name = "Unknown"
	}
	return transactionEvent{
		ID:                      t.ID,
		CardID:                  t.CardID,
		LockerID:                t.LockerID,
		WashType:                name,
		Status:                  t.Status,
		DropOffTime:             t.DropOffTime,
		PickupTime:              t.PickupTime,
		EstimatedCompletionTime: t.EstimatedCompletionTime,
		DeviceInfo:              t.DeviceInfo,
	}
}

// State returns a copy of the current state.
func (s *Service) State() *model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Lockers returns the configured locker ids.
func (s *Service) Lockers() []string {
	return slices.Clone(s.lockers)
}
