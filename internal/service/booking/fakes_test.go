package booking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/stretchr/testify/mock"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory BookingRepository. Transactions are serialized,
// which gives the same guarantees as row locks for a single booking.
type memStore struct {
	txMu sync.Mutex

	mu         sync.Mutex
	rows       map[int64]domain.Booking
	nextID     int64
	now        func() time.Time
	failCommit bool
	failUpdate error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{rows: make(map[int64]domain.Booking), now: now}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.BookingTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := &memTx{store: s, rows: maps.Clone(s.rows), nextID: s.nextID}
	failCommit := s.failCommit
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if failCommit {
		return domain.Internal(fmt.Errorf("%w: connection reset", repository.ErrCommit), "could not save booking")
	}

	s.mu.Lock()
	s.rows = tx.rows
	s.nextID = tx.nextID
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

func (s *memStore) ListByUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	return s.filter(func(b domain.Booking) bool { return b.UserID == userID }), nil
}

func (s *memStore) ListStale(_ context.Context, createdBefore time.Time) ([]domain.Booking, error) {
	return s.filter(func(b domain.Booking) bool {
		return b.Status == domain.BookingStatusInitiated && b.CreatedAt.Before(createdBefore)
	}), nil
}

func (s *memStore) filter(keep func(domain.Booking) bool) []domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Booking, 0)
	for _, b := range s.rows {
		if keep(b) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b domain.Booking) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memStore) status(id int64) domain.BookingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}

// seed stores a booking as if it had been created at createdAt.
func (s *memStore) seed(b domain.Booking) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	b.UpdatedAt = b.CreatedAt
	s.rows[b.ID] = b
	return b.ID
}

func (s *memStore) heldSeats(flightID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := 0
	for _, b := range s.rows {
		if b.FlightID == flightID && b.Status != domain.BookingStatusCancelled {
			held += b.NoOfSeats
		}
	}
	return held
}

type memTx struct {
	store  *memStore
	rows   map[int64]domain.Booking
	nextID int64
}

func (t *memTx) Create(_ context.Context, b *domain.Booking) error {
	t.nextID++
	b.ID = t.nextID
	b.CreatedAt = t.store.now()
	b.UpdatedAt = b.CreatedAt
	t.rows[b.ID] = *b
	return nil
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (*domain.Booking, error) {
	b, ok := t.rows[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

func (t *memTx) UpdateStatus(_ context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error) {
	if err := t.store.failUpdate; err != nil {
		return nil, err
	}
	b, ok := t.rows[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	if !domain.CanTransition(b.Status, status) {
		return nil, domain.Internal(fmt.Errorf("illegal transition %s -> %s", b.Status, status))
	}
	b.Status = status
	b.UpdatedAt = t.store.now()
	t.rows[id] = b
	return &b, nil
}

// fakeInventory keeps seat counters like the flight service does, without
// clamping releases, so a double release shows up in the counters.
type fakeInventory struct {
	mu           sync.Mutex
	flights      map[int64]domain.Flight
	getErr       error
	reserveErr   error
	releaseFails int
	reserveCalls int
	releaseCalls int
}

func newFakeInventory(flights ...domain.Flight) *fakeInventory {
	inv := &fakeInventory{flights: make(map[int64]domain.Flight)}
	for _, f := range flights {
		inv.flights[f.ID] = f
	}
	return inv
}

func (f *fakeInventory) GetFlight(_ context.Context, id int64) (*domain.Flight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	flight, ok := f.flights[id]
	if !ok {
		return nil, domain.ErrFlightNotFound
	}
	return &flight, nil
}

func (f *fakeInventory) ListFlights(_ context.Context, query url.Values) ([]domain.Flight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if query.Get("trips") == "DEL-DEL" {
		return nil, domain.Validation("Departure and arrival airports cannot be the same.")
	}
	out := slices.Collect(maps.Values(f.flights))
	slices.SortFunc(out, func(a, b domain.Flight) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeInventory) ReserveSeats(_ context.Context, id int64, seats int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveCalls++
	if f.reserveErr != nil {
		return f.reserveErr
	}
	flight, ok := f.flights[id]
	if !ok {
		return domain.Inventory(domain.ErrFlightNotFound, "could not reserve seats")
	}
	if flight.AvailableSeats < seats {
		return domain.Inventory(domain.ErrNotEnoughSeats, "could not reserve seats")
	}
	flight.AvailableSeats -= seats
	f.flights[id] = flight
	return nil
}

func (f *fakeInventory) ReleaseSeats(_ context.Context, id int64, seats int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	if f.releaseFails > 0 {
		f.releaseFails--
		return domain.Inventory(errors.New("flight service responded 503"), "could not release seats")
	}
	flight := f.flights[id]
	flight.AvailableSeats += seats
	f.flights[id] = flight
	return nil
}

func (f *fakeInventory) available(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flights[id].AvailableSeats
}

func (f *fakeInventory) calls() (reserve, release int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reserveCalls, f.releaseCalls
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockSweepLock struct {
	mock.Mock
}

func (m *MockSweepLock) AcquireSweepLock(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, token, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockSweepLock) ReleaseSweepLock(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

var (
	_ repository.BookingRepository = (*memStore)(nil)
	_ Inventory                    = (*fakeInventory)(nil)
	_ Notifier                     = (*MockNotifier)(nil)
	_ SweepLock                    = (*MockSweepLock)(nil)
)
