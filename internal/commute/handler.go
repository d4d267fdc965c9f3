package commute

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/internal/safety"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/middleware"
	"github.com/richxcame/safecommute/pkg/security"
	"github.com/richxcame/safecommute/pkg/validation"
)

// Handler handles HTTP requests for trip planning, trips and SOS
type Handler struct {
	service *Service
}

// NewHandler creates a new commute handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

const maxMessageLength = 500

type planTripRequest struct {
	From string `json:"from" validate:"notblank"`
	To   string `json:"to" validate:"notblank"`
}

type positionRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Address   string   `json:"address"`
}

type messageRequest struct {
	Message string `json:"message" validate:"max=500"`
}

type contactMessageRequest struct {
	Message string `json:"message" validate:"notblank,max=500"`
}

// PlanTrip handles planning a trip between two addresses
func (h *Handler) PlanTrip(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req planTripRequest
	if !bindAndValidate(c, &req) {
		return
	}

	from := security.SanitizeLine(req.From)
	to := security.SanitizeLine(req.To)
	plan, err := h.service.PlanTrip(c.Request.Context(), sess, from, to)
	if common.HandleServiceError(c, err, "failed to plan trip") {
		return
	}
	common.SuccessResponse(c, plan)
}

// StartTrip handles starting the last planned trip
func (h *Handler) StartTrip(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	trip, err := h.service.StartTrip(c.Request.Context(), sess)
	if common.HandleServiceError(c, err, "failed to start trip") {
		return
	}
	common.CreatedResponse(c, trip)
}

// GetCurrentTrip handles fetching the active trip
func (h *Handler) GetCurrentTrip(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp, err := h.service.CurrentTrip(c.Request.Context(), sess)
	if common.HandleServiceError(c, err, "failed to get current trip") {
		return
	}
	common.SuccessResponse(c, resp)
}

// CompleteTrip handles completing the active trip
func (h *Handler) CompleteTrip(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx := logger.ContextWithTripID(c.Request.Context(), c.Param("id"))
	trip, err := h.service.CompleteTrip(ctx, sess, c.Param("id"))
	if common.HandleServiceError(c, err, "failed to complete trip") {
		return
	}
	common.SuccessResponse(c, trip)
}

// CancelTrip handles cancelling the active trip
func (h *Handler) CancelTrip(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx := logger.ContextWithTripID(c.Request.Context(), c.Param("id"))
	trip, err := h.service.CancelTrip(ctx, sess, c.Param("id"))
	if common.HandleServiceError(c, err, "failed to cancel trip") {
		return
	}
	common.SuccessResponse(c, trip)
}

// ReportPosition handles live telemetry for the active trip
func (h *Handler) ReportPosition(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req positionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	position := maps.Location{Latitude: *req.Latitude, Longitude: *req.Longitude, Address: req.Address}
	err := h.service.ReportPosition(c.Request.Context(), sess, c.Param("id"), position)
	if common.HandleServiceError(c, err, "failed to record position") {
		return
	}
	common.SuccessResponse(c, gin.H{"message": "position recorded"})
}

// SendSOS handles an emergency broadcast. The body is optional.
func (h *Handler) SendSOS(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if common.HandleServiceError(c, validation.ValidateStruct(&req), "invalid request") {
		return
	}

	ctx := safety.ContextWithClientIP(c.Request.Context(), c.ClientIP())
	alert, err := h.service.BroadcastSOS(ctx, sess, security.SanitizeText(req.Message, maxMessageLength))
	if common.HandleServiceError(c, err, "failed to send SOS") {
		return
	}
	common.SuccessResponse(c, alert)
}

// ListEmergencyContacts handles listing the user's emergency contacts
func (h *Handler) ListEmergencyContacts(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	contacts, err := h.service.EmergencyContacts(c.Request.Context(), sess)
	if common.HandleServiceError(c, err, "failed to list emergency contacts") {
		return
	}
	common.SuccessResponse(c, gin.H{"contacts": contacts})
}

// MessageEmergencyContact handles a direct message to one contact
func (h *Handler) MessageEmergencyContact(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		common.ErrorResponse(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req contactMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message := security.SanitizeText(req.Message, maxMessageLength)
	err := h.service.MessageContact(c.Request.Context(), sess, c.Param("id"), message)
	if common.HandleServiceError(c, err, "failed to message contact") {
		return
	}
	common.SuccessResponse(c, gin.H{"message": "message sent"})
}

func bindAndValidate(c *gin.Context, dst interface{}) bool {
	if !common.BindJSON(c, dst) {
		return false
	}
	return !common.HandleServiceError(c, validation.ValidateStruct(dst), "invalid request")
}

// RegisterRoutes registers commute routes. The limits apply to every route
// except SOS.
func (h *Handler) RegisterRoutes(r *gin.Engine, limits ...gin.HandlerFunc) {
	api := r.Group("/api/v1")
	api.Use(middleware.RequireSession())

	api.POST("/sos", h.SendSOS)

	tripsGroup := api.Group("/trips", limits...)
	{
		tripsGroup.POST("/plan", h.PlanTrip)
		tripsGroup.POST("/start", h.StartTrip)
		tripsGroup.GET("/current", h.GetCurrentTrip)
		tripsGroup.POST("/:id/complete", h.CompleteTrip)
		tripsGroup.POST("/:id/cancel", h.CancelTrip)
		tripsGroup.POST("/:id/position", h.ReportPosition)
	}

	emergency := api.Group("/emergency", limits...)
	{
		emergency.GET("/contacts", h.ListEmergencyContacts)
		emergency.POST("/contacts/:id/message", h.MessageEmergencyContact)
	}
}
