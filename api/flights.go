package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/service/flights"
	"github.com/gin-gonic/gin"
)

type FlightHandler struct {
	service flights.FlightUseCase
}

type updateSeatsRequest struct {
	Seats int `json:"seats" binding:"required,gt=0"`
	// Dec defaults to true: a missing flag takes seats out of the pool.
	Dec *bool `json:"dec"`
}

func NewFlightHandler(service flights.FlightUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

func (h *FlightHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.PATCH("/:id/seats", h.updateSeats)
}

func (h *FlightHandler) list(c *gin.Context) {
	filter, err := flights.ParseFilter(c.Request.URL.Query())
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Successfully fetched all the flights", result)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := flightID(c)
	if !ok {
		return
	}
	flight, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Successfully fetched the flight", flight)
}

func (h *FlightHandler) updateSeats(c *gin.Context) {
	id, ok := flightID(c)
	if !ok {
		return
	}
	var req updateSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	decrease := req.Dec == nil || *req.Dec

	flight, err := h.service.UpdateSeats(c.Request.Context(), id, req.Seats, decrease)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "Successfully updated the seats", flight)
}

func flightID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, domain.Validation("flight id must be a positive number"))
		return 0, false
	}
	return id, true
}
