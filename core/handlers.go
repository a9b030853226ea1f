package core

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const IdentityKey = "identity"

type Handlers interface {
	PostDateCreate(gctx *gin.Context)
	PostWeekCreate(gctx *gin.Context)
	PostCheckCode(gctx *gin.Context)
	PostDateEdit(gctx *gin.Context)
	PostWeekEdit(gctx *gin.Context)
	GetEventDetails(gctx *gin.Context)

	PostAvailabilityAdd(gctx *gin.Context)
	PostCheckDisplayName(gctx *gin.Context)
	GetSelfAvailability(gctx *gin.Context)
	GetAllAvailability(gctx *gin.Context)
	PostRemoveSelfAvailability(gctx *gin.Context)
	PostRemoveAvailability(gctx *gin.Context)

	GetDashboard(gctx *gin.Context)
}

type handlers struct {
	scheduler Scheduler
}

func NewHandlers(scheduler Scheduler) Handlers {
	return &handlers{scheduler: scheduler}
}

// IdentityMiddleware copies the caller identity from header into the gin
// context. An empty header leaves the request anonymous.
func IdentityMiddleware(header string) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		if identity := gctx.GetHeader(header); identity != "" {
			gctx.Set(IdentityKey, identity)
		}

		gctx.Next()
	}
}

type eventInfoBody struct {
	Title     string   `json:"title"`
	Duration  *int     `json:"duration"`
	TimeZone  string   `json:"time_zone"`
	Timeslots []string `json:"timeslots"`
}

type createEventBody struct {
	eventInfoBody
	CustomCode string `json:"custom_code" binding:"max=255"`
}

type editEventBody struct {
	eventInfoBody
	EventCode string `json:"event_code" binding:"required,max=255"`
}

type eventCodeBody struct {
	EventCode string `json:"event_code" binding:"required,max=255"`
}

type customCodeBody struct {
	CustomCode string `json:"custom_code" binding:"required"`
}

type displayNameBody struct {
	EventCode   string `json:"event_code" binding:"required,max=255"`
	DisplayName string `json:"display_name" binding:"required"`
}

type availabilityBody struct {
	EventCode    string   `json:"event_code" binding:"required,max=255"`
	DisplayName  string   `json:"display_name"`
	TimeZone     string   `json:"time_zone"`
	Availability []string `json:"availability"`
}

type eventCodeQuery struct {
	EventCode string `form:"event_code" binding:"required,max=255"`
}

type messageResponse struct {
	Message []string `json:"message"`
}

type eventCodeResponse struct {
	EventCode string `json:"event_code"`
}

func (h *handlers) PostDateCreate(gctx *gin.Context) {
	h.createEvent(gctx, KindSpecific)
}

func (h *handlers) PostWeekCreate(gctx *gin.Context) {
	h.createEvent(gctx, KindGeneric)
}

func (h *handlers) createEvent(gctx *gin.Context, kind EventKind) {
	ctx := gctx.Request.Context()

	creator, ok := requireIdentity(gctx)
	if !ok {
		return
	}

	var body createEventBody

	err := gctx.ShouldBindJSON(&body)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	info, err := body.eventInfo(FieldTimeslots)
	if err != nil {
		abort(gctx, "event validation failed", err)
		return
	}

	code, err := h.scheduler.CreateEvent(ctx, CreateEventRequest{
		EventInfo:  info,
		Kind:       kind,
		CustomCode: body.CustomCode,
		Creator:    creator,
	})
	if err != nil {
		abort(gctx, "creating event failed", err)
		return
	}

	gctx.JSON(http.StatusCreated, eventCodeResponse{EventCode: code})
}

func (h *handlers) PostCheckCode(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var body customCodeBody

	err := gctx.ShouldBindJSON(&body)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	err = h.scheduler.CheckCode(ctx, body.CustomCode)
	if err != nil {
		abort(gctx, "code check failed", err)
		return
	}

	gctx.JSON(http.StatusOK, messageResponse{Message: []string{"Code is available."}})
}

func (h *handlers) PostDateEdit(gctx *gin.Context) {
	h.editEvent(gctx, KindSpecific)
}

func (h *handlers) PostWeekEdit(gctx *gin.Context) {
	h.editEvent(gctx, KindGeneric)
}

func (h *handlers) editEvent(gctx *gin.Context, kind EventKind) {
	ctx := gctx.Request.Context()

	editor, ok := requireIdentity(gctx)
	if !ok {
		return
	}

	var body editEventBody

	err := gctx.ShouldBindJSON(&body)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	info, err := body.eventInfo(FieldTimeslots)
	if err != nil {
		abort(gctx, "event validation failed", err)
		return
	}

	err = h.scheduler.EditEvent(ctx, EditEventRequest{
		EventInfo: info,
		Kind:      kind,
		Code:      body.EventCode,
		Editor:    editor,
	})
	if err != nil {
		abort(gctx, "editing event failed", err)
		return
	}

	gctx.JSON(http.StatusOK, messageResponse{Message: []string{"Event edited successfully."}})
}

func (h *handlers) GetEventDetails(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var query eventCodeQuery

	err := gctx.ShouldBindQuery(&query)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	details, err := h.scheduler.GetEventDetails(ctx, query.EventCode, identity(gctx))
	if err != nil {
		abort(gctx, "getting event details failed", err)
		return
	}

	gctx.JSON(http.StatusOK, details)
}

func (h *handlers) PostAvailabilityAdd(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	participant, ok := requireIdentity(gctx)
	if !ok {
		return
	}

	var body availabilityBody

	err := gctx.ShouldBindJSON(&body)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	slots, err := parseTimestamps(body.Availability, FieldAvailability)
	if err != nil {
		abort(gctx, "availability validation failed", err)
		return
	}

	created, err := h.scheduler.SubmitAvailability(ctx, AvailabilityRequest{
		Code:        body.EventCode,
		Identity:    participant,
		DisplayName: body.DisplayName,
		TimeZone:    body.TimeZone,
		Slots:       slots,
	})
	if err != nil {
		abort(gctx, "adding availability failed", err)
		return
	}

	if created {
		gctx.JSON(http.StatusCreated, messageResponse{Message: []string{"Availability added successfully."}})
		return
	}

	gctx.JSON(http.StatusOK, messageResponse{Message: []string{"Availability updated successfully."}})
}

func (h *handlers) PostCheckDisplayName(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var body displayNameBody

	err := gctx.ShouldBindJSON(&body)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	err = h.scheduler.CheckDisplayName(ctx, body.EventCode, identity(gctx), body.DisplayName)
	if err != nil {
		abort(gctx, "display name check failed", err)
		return
	}

	gctx.JSON(http.StatusOK, messageResponse{Message: []string{"Name is available."}})
}

func (h *handlers) GetSelfAvailability(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	participant, ok := requireIdentity(gctx)
	if !ok {
		return
	}

	var query eventCodeQuery

	err := gctx.ShouldBindQuery(&query)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	self, err := h.scheduler.GetSelfAvailability(ctx, query.EventCode, participant)
	if err != nil {
		abort(gctx, "getting availability failed", err)
		return
	}

	gctx.JSON(http.StatusOK, self)
}

func (h *handlers) GetAllAvailability(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var query eventCodeQuery

	err := gctx.ShouldBindQuery(&query)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	all, err := h.scheduler.GetAllAvailability(ctx, query.EventCode, identity(gctx))
	if err != nil {
		abort(gctx, "getting availability failed", err)
		return
	}

	gctx.JSON(http.StatusOK, all)
}

func (h *handlers) PostRemoveSelfAvailability(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	participant, ok := requireIdentity(gctx)
	if !ok {
		return
	}

	var body eventCodeBody

	err := gctx.ShouldBindJSON(&body)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	err = h.scheduler.RemoveSelfAvailability(ctx, body.EventCode, participant)
	if err != nil {
		abort(gctx, "removing availability failed", err)
		return
	}

	gctx.JSON(http.StatusOK, messageResponse{Message: []string{"Availability removed successfully."}})
}

func (h *handlers) PostRemoveAvailability(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	requester, ok := requireIdentity(gctx)
	if !ok {
		return
	}

	var body displayNameBody

	err := gctx.ShouldBindJSON(&body)
	if err != nil {
		abortBadBody(gctx, err)
		return
	}

	err = h.scheduler.RemoveAvailability(ctx, body.EventCode, requester, body.DisplayName)
	if err != nil {
		abort(gctx, "removing availability failed", err)
		return
	}

	gctx.JSON(http.StatusOK, messageResponse{Message: []string{"Availability removed successfully."}})
}

func (h *handlers) GetDashboard(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	dashboard, err := h.scheduler.GetDashboard(ctx, identity(gctx))
	if err != nil {
		abort(gctx, "getting dashboard failed", err)
		return
	}

	gctx.JSON(http.StatusOK, dashboard)
}

func (b eventInfoBody) eventInfo(field string) (EventInfo, error) {
	slots, err := parseTimestamps(b.Timeslots, field)
	if err != nil {
		return EventInfo{}, err
	}

	return EventInfo{
		Title:    b.Title,
		Duration: b.Duration,
		TimeZone: b.TimeZone,
		Slots:    slots,
	}, nil
}

func parseTimestamps(values []string, field string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(values))

	for _, value := range values {
		t, err := ParseTimestamp(value)
		if err != nil {
			verr := NewValidationError()
			verr.Add(field, "Datetime has wrong format.")

			return nil, verr
		}

		out = append(out, t)
	}

	return out, nil
}

func identity(gctx *gin.Context) string {
	return gctx.GetString(IdentityKey)
}

func requireIdentity(gctx *gin.Context) (string, bool) {
	value := identity(gctx)
	if value == "" {
		log.Ctx(gctx.Request.Context()).Info().Str("path", gctx.FullPath()).Msg("missing caller identity")
		gctx.AbortWithStatusJSON(http.StatusUnauthorized, NewError("authentication required"))

		return "", false
	}

	return value, true
}

func abortBadBody(gctx *gin.Context, err error) {
	log.Ctx(gctx.Request.Context()).Error().Err(err).Msg("failed to bind request")
	gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("failed to bind request", err))
}

// abort maps domain errors onto HTTP statuses. Anything unrecognised is a 500
// whose details stay in the log.
func abort(gctx *gin.Context, message string, err error) {
	ctx := gctx.Request.Context()

	var verr *ValidationError

	switch {
	case errors.As(err, &verr):
		log.Ctx(ctx).Info().Err(err).Msg(message)
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError(message, verr))

	case errors.Is(err, ErrNameTaken):
		verr := NewValidationError()
		verr.Add(FieldDisplayName, "Name is taken.")

		log.Ctx(ctx).Info().Err(err).Msg(message)
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError(message, verr))

	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrNotParticipant):
		log.Ctx(ctx).Info().Err(err).Msg(message)
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError(message, err))

	case errors.Is(err, ErrNotCreator):
		log.Ctx(ctx).Info().Err(err).Msg(message)
		gctx.AbortWithStatusJSON(http.StatusForbidden, NewError(message, err))

	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrParticipantNotFound):
		log.Ctx(ctx).Info().Err(err).Msg(message)
		gctx.AbortWithStatusJSON(http.StatusNotFound, NewError(message, err))

	default:
		log.Ctx(ctx).Error().Err(err).Msg(message)
		gctx.AbortWithStatusJSON(http.StatusInternalServerError, NewError(message))
	}
}
