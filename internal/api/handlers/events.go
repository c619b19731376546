package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
)

// EventService is the event lifecycle and registration API the handlers use.
type EventService interface {
	Create(ctx context.Context, creatorID string, input events.CreateInput) (*events.EventDetail, error)
	Get(ctx context.Context, id string) (*events.EventDetail, error)
	List(ctx context.Context, filters events.Filters) (events.ListResult, error)
	Update(ctx context.Context, actorID, id string, input events.UpdateInput) (*events.Event, error)
	Delete(ctx context.Context, actorID, id string) error
	Register(ctx context.Context, eventID, userID string) (*events.Attendee, error)
	Cancel(ctx context.Context, eventID, userID string) error
}

type EventsHandler struct {
	Service EventService
	Audit   *audit.Logger
	Env     string
}

func NewEventsHandler(service EventService, auditLogger *audit.Logger, env string) *EventsHandler {
	return &EventsHandler{Service: service, Audit: auditLogger, Env: env}
}

// eventView is the wire form of an event. Capacity is the number of open
// seats.
type eventView struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Date            time.Time `json:"date"`
	Location        string    `json:"location"`
	Capacity        int       `json:"capacity"`
	TotalCapacity   int       `json:"total_capacity"`
	RegisteredCount int       `json:"registered_count"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type attendeeView struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func toEventView(e *events.Event) eventView {
	return eventView{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		Date:            e.Date.UTC(),
		Location:        e.Location,
		Capacity:        e.Remaining(),
		TotalCapacity:   e.TotalCapacity,
		RegisteredCount: e.RegisteredCount,
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt.UTC(),
		UpdatedAt:       e.UpdatedAt.UTC(),
	}
}

func toAttendeeView(a events.Attendee) attendeeView {
	return attendeeView{
		ID:        a.ID,
		EventID:   a.EventID,
		UserID:    a.UserID,
		Username:  a.Username,
		CreatedAt: a.CreatedAt.UTC(),
	}
}

// toAttendeeViews never returns nil so empty lists encode as [].
func toAttendeeViews(list []events.Attendee) []attendeeView {
	views := make([]attendeeView, 0, len(list))
	for _, a := range list {
		views = append(views, toAttendeeView(a))
	}
	return views
}

type createEventResponse struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Event     eventView      `json:"event"`
	Attendees []attendeeView `json:"attendees"`
}

type listEventsResponse struct {
	Status string      `json:"status"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
	Total  int         `json:"total"`
	Events []eventView `json:"events"`
}

type eventDetailResponse struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Event     eventView      `json:"event"`
	Attendees []attendeeView `json:"attendees"`
}

type updateEventResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Event   eventView `json:"event"`
}

type registrationResponse struct {
	Status   string       `json:"status"`
	Message  string       `json:"message"`
	Attendee attendeeView `json:"attendee"`
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.UserID(r.Context())

	var input events.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	detail, err := h.Service.Create(r.Context(), actorID, input)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("create", "error").Inc()
		writeError(w, r, err, h.Env)
		return
	}
	metrics.EventsTotal.WithLabelValues("create", "ok").Inc()
	h.Audit.LogFromRequest(r, actorID, audit.ActionEventCreate, "event", detail.Event.ID, audit.StatusSuccess, map[string]string{
		"title":     detail.Event.Title,
		"attendees": strconv.Itoa(len(detail.Attendees)),
	})

	writeJSON(w, http.StatusCreated, createEventResponse{
		Status:    statusSuccess,
		Message:   "Event created successfully",
		Event:     toEventView(detail.Event),
		Attendees: toAttendeeViews(detail.Attendees),
	})
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters, err := events.ParseFilters(r.URL.Query())
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	result, err := h.Service.List(r.Context(), filters)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	items := make([]eventView, 0, len(result.Events))
	for i := range result.Events {
		items = append(items, toEventView(&result.Events[i]))
	}
	writeJSON(w, http.StatusOK, listEventsResponse{
		Status: statusSuccess,
		Page:   filters.Page,
		Limit:  filters.PageSize(),
		Total:  result.Total,
		Events: items,
	})
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := eventIDParam(r)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	detail, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	message := "Event details retrieved successfully."
	if len(detail.Attendees) == 0 {
		message = "Event found but no attendees registered yet."
	}
	writeJSON(w, http.StatusOK, eventDetailResponse{
		Status:    statusSuccess,
		Message:   message,
		Event:     toEventView(detail.Event),
		Attendees: toAttendeeViews(detail.Attendees),
	})
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.UserID(r.Context())
	id, err := eventIDParam(r)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	var input events.UpdateInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	event, err := h.Service.Update(r.Context(), actorID, id, input)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("update", "error").Inc()
		if errors.Is(err, events.ErrForbidden) {
			h.Audit.LogFromRequest(r, actorID, audit.ActionEventUpdate, "event", id, audit.StatusFailure, nil)
		}
		writeError(w, r, err, h.Env)
		return
	}
	metrics.EventsTotal.WithLabelValues("update", "ok").Inc()
	h.Audit.LogFromRequest(r, actorID, audit.ActionEventUpdate, "event", id, audit.StatusSuccess, nil)

	writeJSON(w, http.StatusOK, updateEventResponse{
		Status:  statusSuccess,
		Message: "Event updated successfully.",
		Event:   toEventView(event),
	})
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.UserID(r.Context())
	id, err := eventIDParam(r)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	if err := h.Service.Delete(r.Context(), actorID, id); err != nil {
		metrics.EventsTotal.WithLabelValues("delete", "error").Inc()
		if errors.Is(err, events.ErrForbidden) {
			h.Audit.LogFromRequest(r, actorID, audit.ActionEventDelete, "event", id, audit.StatusFailure, nil)
		}
		writeError(w, r, err, h.Env)
		return
	}
	metrics.EventsTotal.WithLabelValues("delete", "ok").Inc()
	h.Audit.LogFromRequest(r, actorID, audit.ActionEventDelete, "event", id, audit.StatusSuccess, nil)

	writeJSON(w, http.StatusOK, messageResponse{
		Status:  statusSuccess,
		Message: "Event and its attendees have been deleted successfully.",
	})
}

func (h *EventsHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, err := eventIDParam(r)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("register", registrationResult(err)).Inc()
		writeError(w, r, err, h.Env)
		return
	}

	attendee, err := h.Service.Register(r.Context(), id, userID)
	metrics.RegistrationsTotal.WithLabelValues("register", registrationResult(err)).Inc()
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	h.Audit.LogFromRequest(r, userID, audit.ActionEventRegister, "event", id, audit.StatusSuccess, nil)

	writeJSON(w, http.StatusCreated, registrationResponse{
		Status:   statusSuccess,
		Message:  "You have successfully registered for the event.",
		Attendee: toAttendeeView(*attendee),
	})
}

func (h *EventsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	id, err := eventIDParam(r)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("cancel", registrationResult(err)).Inc()
		writeError(w, r, err, h.Env)
		return
	}

	err = h.Service.Cancel(r.Context(), id, userID)
	metrics.RegistrationsTotal.WithLabelValues("cancel", registrationResult(err)).Inc()
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	h.Audit.LogFromRequest(r, userID, audit.ActionEventCancel, "event", id, audit.StatusSuccess, nil)

	writeJSON(w, http.StatusOK, messageResponse{
		Status:  statusSuccess,
		Message: "You have successfully canceled your registration for the event.",
	})
}

// registrationResult is the metrics label for a register or cancel outcome.
func registrationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, events.ErrNotFound):
		return "not_found"
	case errors.Is(err, events.ErrCapacityFull):
		return "full"
	case errors.Is(err, events.ErrAlreadyRegistered):
		return "duplicate"
	case errors.Is(err, events.ErrNotRegistered):
		return "not_registered"
	default:
		return "error"
	}
}
