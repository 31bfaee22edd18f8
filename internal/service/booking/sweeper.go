package booking

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultSweepConcurrency = 4

type StaleFinder interface {
	ListStale(ctx context.Context, createdBefore time.Time) ([]domain.Booking, error)
}

type Canceller interface {
	CancelBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
}

// SweepLock elects a single sweeper among several worker replicas.
type SweepLock interface {
	AcquireSweepLock(ctx context.Context, token string, ttl time.Duration) (bool, error)
	ReleaseSweepLock(ctx context.Context, token string) error
}

type SweepResult struct {
	Scanned   int
	Cancelled []int64
	Failed    map[int64]error
	// Skipped is set when another replica holds the sweep lock.
	Skipped bool
}

type Sweeper struct {
	bookings    StaleFinder
	canceller   Canceller
	lock        SweepLock
	lockTTL     time.Duration
	window      time.Duration
	concurrency int
	log         logrus.FieldLogger
	now         func() time.Time
}

type SweeperOption func(*Sweeper)

func WithSweepLock(lock SweepLock, ttl time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.lock = lock
		s.lockTTL = ttl
	}
}

func WithConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

func NewSweeper(bookings StaleFinder, canceller Canceller, window time.Duration, log logrus.FieldLogger, opts ...SweeperOption) *Sweeper {
	if window <= 0 {
		window = DefaultReservationWindow
	}
	s := &Sweeper{
		bookings:    bookings,
		canceller:   canceller,
		window:      window,
		concurrency: defaultSweepConcurrency,
		lockTTL:     time.Minute,
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep cancels every INITIATED booking older than the reservation window.
// A failed cancellation does not stop the others; it stays INITIATED and is
// retried on the next run.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	if s.lock != nil {
		token := uuid.NewString()
		ok, err := s.lock.AcquireSweepLock(ctx, token, s.lockTTL)
		switch {
		case err != nil:
			// Cancellation is serialized by the row lock, so an unguarded
			// sweep is only redundant work.
			s.log.WithError(err).Warn("sweep lock unavailable, sweeping without it")
		case !ok:
			s.log.Debug("sweep lock held by another worker, skipping")
			return &SweepResult{Skipped: true}, nil
		default:
			defer func() {
				if err := s.lock.ReleaseSweepLock(context.WithoutCancel(ctx), token); err != nil {
					s.log.WithError(err).Warn("could not release sweep lock")
				}
			}()
		}
	}

	stale, err := s.bookings.ListStale(ctx, s.now().Add(-s.window))
	if err != nil {
		return nil, err
	}

	result := &SweepResult{
		Scanned: len(stale),
		Failed:  make(map[int64]error),
	}
	var mu sync.Mutex

	// A plain group: one failed cancellation must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, b := range stale {
		id := b.ID
		g.Go(func() error {
			_, err := s.canceller.CancelBooking(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Cancelled = append(result.Cancelled, id)
			case errors.Is(err, domain.ErrBookingFinalized):
				// Paid between the scan and the lock.
			default:
				result.Failed[id] = err
				s.log.WithError(err).WithField("booking_id", id).Warn("could not cancel stale booking")
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(result.Cancelled)
	if result.Scanned > 0 {
		s.log.WithFields(logrus.Fields{
			"scanned":   result.Scanned,
			"cancelled": len(result.Cancelled),
			"failed":    len(result.Failed),
		}).Info("stale bookings swept")
	}
	return result, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
