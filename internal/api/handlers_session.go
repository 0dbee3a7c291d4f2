// handlers_session.go - Saved session handlers
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/storage"
)

const mimeMsgpack = "application/msgpack"

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store storage.Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store storage.Store, log zerolog.Logger) SessionHandler {
	return &SessionHandlerImpl{store: store, now: time.Now, log: logging.Component(log, "sessions")}
}

// HandleSave creates a record when the request has no id and overwrites the
// record otherwise. An id the store has never seen is kept, so a client
// whose record vanished continues under the same id.
func (h *SessionHandlerImpl) HandleSave(c echo.Context) error {
	var req models.SaveRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body")
	}

	id := ""
	if req.ID != nil {
		id = strings.TrimSpace(*req.ID)
	}
	if id == "" {
		id = uuid.New().String()
	} else {
		clean, err := storage.SanitizeID(id)
		if err != nil {
			return NewBadRequestError(err.Error())
		}
		id = clean
	}

	name := req.Name
	if name == "" {
		name = models.DefaultSessionName
	}
	rec := models.SessionRecord{
		ID:        id,
		Name:      name,
		Content:   req.Content,
		Timestamp: h.now().Format(models.TimestampLayout),
	}
	if err := h.store.Save(c.Request().Context(), rec); err != nil {
		return NewInternalError("Failed to save session", err)
	}

	h.log.Debug().Str("id", logging.ShortID(id)).Str("name", name).Int("bytes", len(req.Content)).Msg("session saved")
	return c.JSON(http.StatusOK, models.SaveResponse{Status: "success", ID: id})
}

// HandleHistory lists every saved session, newest first. Clients that
// accept msgpack get the compact encoding.
func (h *SessionHandlerImpl) HandleHistory(c echo.Context) error {
	recs, err := h.store.List(c.Request().Context())
	if err != nil {
		return NewInternalError("Failed to list sessions", err)
	}
	if recs == nil {
		recs = []models.SessionRecord{}
	}

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), mimeMsgpack) {
		data, err := msgpack.Marshal(recs)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, mimeMsgpack, data)
	}
	return c.JSON(http.StatusOK, recs)
}

// HandleDeleteSession removes one record.
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	err := h.store.Delete(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidID):
		return NewNotFoundError("Session not found")
	case err != nil:
		return NewInternalError("Failed to delete session", err)
	}
	return c.JSON(http.StatusOK, models.StatusResponse{Status: "success", Message: "Session deleted"})
}
