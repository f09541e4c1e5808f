package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"moara/internal/notify"
)

// EventHandler streams settlement and plan lifecycle notifications to the
// user over server-sent events.
type EventHandler struct {
	registry *notify.Registry
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(registry *notify.Registry) *EventHandler {
	return &EventHandler{registry: registry}
}

// Stream subscribes the caller to their notification feed. The connection
// stays open until the client disconnects.
func (h *EventHandler) Stream(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	events, remove := h.registry.Add(userID)
	defer remove()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Kind, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
