package domain

import "time"

type Flight struct {
	ID               int64     `json:"id"`
	FlightNumber     string    `json:"flightNumber"`
	DepartureAirport string    `json:"departureAirportId"`
	ArrivalAirport   string    `json:"arrivalAirportId"`
	DepartureTime    time.Time `json:"departureTime"`
	ArrivalTime      time.Time `json:"arrivalTime"`
	Price            int64     `json:"price"`
	TotalSeats       int       `json:"totalSeats"`
	AvailableSeats   int       `json:"availableSeats"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type SortField struct {
	Column string
	Desc   bool
}

// FlightFilter narrows a flight search. Zero values mean "no constraint".
type FlightFilter struct {
	DepartureAirport string
	ArrivalAirport   string
	MinPrice         int64
	MaxPrice         int64
	Travellers       int
	TripDate         time.Time
	Sort             []SortField
}

func (f FlightFilter) IsZero() bool {
	return f.DepartureAirport == "" && f.ArrivalAirport == "" &&
		f.MinPrice == 0 && f.MaxPrice == 0 && f.Travellers == 0 &&
		f.TripDate.IsZero() && len(f.Sort) == 0
}
