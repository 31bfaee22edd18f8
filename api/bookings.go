package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	FlightID  int64 `json:"flightId" binding:"required,gt=0"`
	NoOfSeats int   `json:"noOfSeats" binding:"required,gt=0"`
	UserID    int64 `json:"userId" binding:"required,gt=0"`
}

type paymentRequest struct {
	BookingID int64 `json:"bookingId" binding:"required,gt=0"`
	UserID    int64 `json:"userId" binding:"required,gt=0"`
	TotalCost int64 `json:"totalCost" binding:"required,gt=0"`
}

type listBookingsQuery struct {
	UserID int64 `form:"userId" binding:"required,gt=0"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.POST("/payments", h.pay)
	router.POST("/:id/cancel", h.cancel)
	router.GET("", h.list)
	router.GET("/searchFlights", h.searchFlights)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	if !authorizeUser(c, req.UserID) {
		return
	}

	created, err := h.service.CreateBooking(c.Request.Context(), booking.CreateBookingInput{
		FlightID:  req.FlightID,
		NoOfSeats: req.NoOfSeats,
		UserID:    req.UserID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Successfully created a booking", created)
}

func (h *BookingHandler) pay(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	if !authorizeUser(c, req.UserID) {
		return
	}

	paid, err := h.service.MakePayment(c.Request.Context(), booking.PaymentInput{
		BookingID: req.BookingID,
		UserID:    req.UserID,
		TotalCost: req.TotalCost,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment successful, booking confirmed", paid)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, domain.Validation("booking id must be a positive number"))
		return
	}

	cancelled, err := h.service.CancelBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Booking cancelled", cancelled)
}

func (h *BookingHandler) list(c *gin.Context) {
	var q listBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindError(err))
		return
	}
	if !authorizeUser(c, q.UserID) {
		return
	}

	bookings, err := h.service.ListUserBookings(c.Request.Context(), q.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Successfully fetched the bookings", bookings)
}

func (h *BookingHandler) searchFlights(c *gin.Context) {
	flights, err := h.service.SearchFlights(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Successfully fetched the flights", flights)
}
