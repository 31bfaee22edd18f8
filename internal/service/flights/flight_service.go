package flights

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/sirupsen/logrus"
)

type FlightUseCase interface {
	List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	UpdateSeats(ctx context.Context, id int64, seats int, decrease bool) (*domain.Flight, error)
}

// FlightCache holds the unfiltered flight list.
type FlightCache interface {
	GetFlights(ctx context.Context) ([]domain.Flight, error)
	SetFlights(ctx context.Context, flights []domain.Flight) error
	InvalidateFlights(ctx context.Context) error
}

type FlightService struct {
	repo  repository.FlightRepository
	cache FlightCache
	log   logrus.FieldLogger
}

// NewFlightService builds the service. cache may be nil.
func NewFlightService(repo repository.FlightRepository, cache FlightCache, log logrus.FieldLogger) *FlightService {
	return &FlightService{repo: repo, cache: cache, log: log}
}

func (s *FlightService) List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error) {
	cacheable := s.cache != nil && filter.IsZero()
	if cacheable {
		cached, err := s.cache.GetFlights(ctx)
		if err != nil {
			s.log.WithError(err).Warn("flight cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	flights, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.cache.SetFlights(ctx, flights); err != nil {
			s.log.WithError(err).Warn("flight cache write failed")
		}
	}
	return flights, nil
}

func (s *FlightService) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	if id <= 0 {
		return nil, domain.Validation("flight id must be a positive number")
	}
	return s.repo.GetByID(ctx, id)
}

// UpdateSeats moves seats out of or back into a flight's available pool.
func (s *FlightService) UpdateSeats(ctx context.Context, id int64, seats int, decrease bool) (*domain.Flight, error) {
	if seats <= 0 {
		return nil, domain.Validation("seats must be a positive number")
	}

	update, err := s.repo.UpdateSeats(ctx, id, seats, decrease)
	if err != nil {
		return nil, err
	}
	flight := update.Flight

	if s.cache != nil {
		if err := s.cache.InvalidateFlights(ctx); err != nil {
			s.log.WithError(err).WithField("flight_id", id).Warn("flight cache invalidation failed")
		}
	}
	log := s.log.WithFields(logrus.Fields{
		"flight_id": id,
		"seats":     seats,
		"decrease":  decrease,
		"available": flight.AvailableSeats,
	})
	if update.Overflow > 0 {
		// More seats came back than were ever taken: a release ran twice.
		log.WithField("overflow", update.Overflow).Error("seat release exceeded flight capacity, extra seats dropped")
	} else {
		log.Debug("seats updated")
	}
	return flight, nil
}

// ParseFilter reads a flight search from query parameters:
// trips=DEP-ARR, price=min-max, travellers=n, tripDate=YYYY-MM-DD and
// sort=field_ASC,field_DESC.
func ParseFilter(query url.Values) (domain.FlightFilter, error) {
	var (
		filter   domain.FlightFilter
		problems []string
	)

	if trips := query.Get("trips"); trips != "" {
		dep, arr, ok := strings.Cut(trips, "-")
		switch {
		case !ok || dep == "" || arr == "":
			problems = append(problems, "trips must look like DEP-ARR")
		case dep == arr:
			problems = append(problems, "Departure and arrival airports cannot be the same.")
		default:
			filter.DepartureAirport, filter.ArrivalAirport = dep, arr
		}
	}

	if price := query.Get("price"); price != "" {
		minStr, maxStr, _ := strings.Cut(price, "-")
		minPrice, err1 := strconv.ParseInt(minStr, 10, 64)
		var (
			maxPrice int64
			err2     error
		)
		if maxStr != "" {
			maxPrice, err2 = strconv.ParseInt(maxStr, 10, 64)
		}
		switch {
		case err1 != nil || err2 != nil || minPrice < 0 || maxPrice < 0:
			problems = append(problems, "price must look like min-max")
		case maxPrice > 0 && minPrice > maxPrice:
			problems = append(problems, "minimum price cannot exceed maximum price")
		default:
			filter.MinPrice, filter.MaxPrice = minPrice, maxPrice
		}
	}

	if travellers := query.Get("travellers"); travellers != "" {
		n, err := strconv.Atoi(travellers)
		if err != nil || n <= 0 {
			problems = append(problems, "travellers must be a positive number")
		} else {
			filter.Travellers = n
		}
	}

	if tripDate := query.Get("tripDate"); tripDate != "" {
		day, err := time.Parse(time.DateOnly, tripDate)
		if err != nil {
			problems = append(problems, "tripDate must look like YYYY-MM-DD")
		} else {
			filter.TripDate = day
		}
	}

	if sort := query.Get("sort"); sort != "" {
		for _, part := range strings.Split(sort, ",") {
			field, dir, _ := strings.Cut(strings.TrimSpace(part), "_")
			if _, ok := repository.SortColumn(field); !ok {
				problems = append(problems, "cannot sort by "+field)
				continue
			}
			switch strings.ToUpper(dir) {
			case "", "ASC":
				filter.Sort = append(filter.Sort, domain.SortField{Column: field})
			case "DESC":
				filter.Sort = append(filter.Sort, domain.SortField{Column: field, Desc: true})
			default:
				problems = append(problems, "sort direction must be ASC or DESC")
			}
		}
	}

	if len(problems) > 0 {
		return domain.FlightFilter{}, domain.Validation(problems...)
	}
	return filter, nil
}

var _ FlightUseCase = (*FlightService)(nil)
