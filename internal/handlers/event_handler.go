package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/notify"
)

// PublishEventRequest is the ingestion payload producer services post when a
// domain event occurs.
type PublishEventRequest struct {
	Type        string            `json:"type" validate:"required,oneof=like comment follow mention repost message system"`
	ActorID     *uint             `json:"actor_id,omitempty"`
	SubjectType string            `json:"subject_type,omitempty" validate:"omitempty,oneof=post comment user"`
	SubjectID   string            `json:"subject_id,omitempty" validate:"omitempty,max=64"`
	Recipients  []uint            `json:"recipients,omitempty" validate:"max=1000,dive,gt=0"`
	FollowersOf uint              `json:"followers_of,omitempty"`
	Vars        map[string]string `json:"vars,omitempty"`
	// Text, when set, is additionally scanned for @mentions.
	Text string `json:"text,omitempty"`
}

// EventHandler ingests domain events from producer services and hands them to
// the fan-out dispatcher.
type EventHandler struct {
	dispatcher *notify.Dispatcher
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(dispatcher *notify.Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: dispatcher}
}

// RegisterEventRoutes registers event ingestion routes
func (h *EventHandler) RegisterEventRoutes(g *echo.Group) {
	g.POST("/events", h.PublishEvent)
	g.POST("/events/retract", h.RetractEvent)
}

func (h *EventHandler) bind(c echo.Context) (*PublishEventRequest, notify.Event, error) {
	var req PublishEventRequest
	if err := c.Bind(&req); err != nil {
		return nil, notify.Event{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return nil, notify.Event{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ev := notify.Event{
		Type:        models.NotificationType(req.Type),
		ActorID:     req.ActorID,
		Subject:     models.SubjectRef{Type: req.SubjectType, ID: req.SubjectID},
		Recipients:  req.Recipients,
		FollowersOf: req.FollowersOf,
		Vars:        req.Vars,
	}
	return &req, ev, nil
}

// PublishEvent fans a domain event out to its recipients.
func (h *EventHandler) PublishEvent(c echo.Context) error {
	req, ev, err := h.bind(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.dispatcher.Handle(ctx, ev); err != nil {
		if errors.Is(err, notify.ErrInvalidEvent) {
			return echo.NewHTTPError(http.StatusBadRequest, "Event has no recipients or an unknown type")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if req.Text != "" && req.ActorID != nil {
		if err := h.dispatcher.HandleMentions(ctx, *req.ActorID, req.Text, ev.Subject, req.SubjectType); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusAccepted, echo.Map{"success": true, "data": echo.Map{"accepted": true}})
}

// RetractEvent removes the notification a prior event created, e.g. after an
// unlike or unfollow.
func (h *EventHandler) RetractEvent(c echo.Context) error {
	_, ev, err := h.bind(c)
	if err != nil {
		return err
	}

	if err := h.dispatcher.Retract(c.Request().Context(), ev); err != nil {
		if errors.Is(err, notify.ErrInvalidEvent) {
			return echo.NewHTTPError(http.StatusBadRequest, "Retraction requires an actor and recipients")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"retracted": true}})
}
