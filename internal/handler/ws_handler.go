package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/recurrence"
	"github.com/stemsi/classbook/internal/service"
	ws "github.com/stemsi/classbook/internal/websocket"
)

// pingInterval keeps idle availability streams alive behind proxies.
const pingInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams live availability of class occurrences.
type WSHandler struct {
	classService      *service.ClassService
	enrollmentService *service.EnrollmentService
	broker            ws.Broker
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	classService *service.ClassService,
	enrollmentService *service.EnrollmentService,
	broker ws.Broker,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		classService:      classService,
		enrollmentService: enrollmentService,
		broker:            broker,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// AvailabilityStream godoc
// WS /ws/v1/public/classes/:id/availability
// Clients send {"action":"watch","date":"YYYY-MM-DD"} and receive the
// current count, then a fresh count after every signup for that date.
func (h *WSHandler) AvailabilityStream(c *gin.Context) {
	classID, ok := paramID(c)
	if !ok {
		return
	}
	if _, err := h.classService.Get(c.Request.Context(), classID); err != nil {
		failService(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	wsLog := h.log.With().Str("class_id", classID.String()).Logger()

	updates, stop, err := h.broker.Subscribe(ctx, classID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Availability subscribe failed")
		ws.WriteError(conn, "live updates unavailable")
		return
	}
	defer stop()

	// Reads happen on their own goroutine; every write stays on this one.
	requests := make(chan ws.Request)
	go func() {
		defer cancel()
		for {
			var msg ws.Request
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			select {
			case requests <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	watched := make(map[string]struct{})
	wsLog.Debug().Msg("Availability stream opened")

	for {
		var err error
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Availability stream closed")
			return

		case msg := <-requests:
			err = h.handleRequest(ctx, conn, classID, watched, msg)

		case a, ok := <-updates:
			if !ok {
				return
			}
			if _, watching := watched[a.OccurrenceDate]; watching {
				err = ws.WriteTyped(conn, ws.AvailabilityResponse{Event: ws.EventAvailability, Availability: a})
			}

		case <-ping.C:
			err = ws.WritePing(conn)
		}

		if err != nil {
			wsLog.Debug().Err(err).Msg("Availability stream write failed")
			return
		}
	}
}

// handleRequest applies one client message. Only write failures are returned.
func (h *WSHandler) handleRequest(ctx context.Context, conn *websocket.Conn, classID uuid.UUID, watched map[string]struct{}, msg ws.Request) error {
	switch msg.Action {
	case ws.ActionPing:
		return ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})

	case ws.ActionWatch, ws.ActionUnwatch:
		date, err := recurrence.ParseDate(msg.Date)
		if err != nil {
			return ws.WriteError(conn, "date must be in YYYY-MM-DD format")
		}
		key := recurrence.FormatDate(date)

		if msg.Action == ws.ActionUnwatch {
			delete(watched, key)
			return nil
		}

		a, err := h.enrollmentService.Availability(ctx, classID, date)
		switch {
		case errors.Is(err, service.ErrInvalidOccurrence):
			return ws.WriteError(conn, "the class does not take place on this date")
		case err != nil:
			h.log.Warn().Err(err).Str("class_id", classID.String()).Msg("Availability lookup failed")
			return ws.WriteError(conn, "availability lookup failed")
		}
		watched[key] = struct{}{}
		return ws.WriteTyped(conn, ws.AvailabilityResponse{Event: ws.EventAvailability, Availability: *a})

	default:
		return ws.WriteError(conn, "unknown action: "+string(msg.Action))
	}
}
