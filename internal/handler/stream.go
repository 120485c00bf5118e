package handler

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/service"
	ws "github.com/parsey/docpreview/internal/websocket"
	"github.com/parsey/docpreview/pkg/response"
)

type StreamHandler struct {
	analysis *service.AnalysisService
	hub      *ws.Hub
}

func NewStreamHandler(analysis *service.AnalysisService, hub *ws.Hub) *StreamHandler {
	return &StreamHandler{
		analysis: analysis,
		hub:      hub,
	}
}

// Run handles GET /ws/runs/:runId. The stream opens with the stored run
// status, read after the client is registered, then relays worker events.
func (h *StreamHandler) Run(c *websocket.Conn) {
	runID := c.Params("runId")

	if _, err := h.analysis.Status(context.Background(), runID); err != nil {
		msg, _ := json.Marshal(model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			RunID: runID,
			Error: model.RunError{Code: response.CodeNotFound, Message: err.Error()},
		})
		if werr := c.WriteMessage(websocket.TextMessage, msg); werr != nil {
			log.Printf("WebSocket write error: %v", werr)
		}
		c.Close()
		return
	}

	h.hub.HandleConnection(c, runID, func() []byte {
		return h.statusMessage(runID)
	})
}

func (h *StreamHandler) statusMessage(runID string) []byte {
	status, err := h.analysis.Status(context.Background(), runID)
	if err != nil {
		log.Printf("Failed to read status of run %s: %v", runID, err)
		return nil
	}
	msg, err := json.Marshal(model.WSStatusMessage{
		Type:   model.WSMessageTypeStatus,
		RunID:  runID,
		Status: status,
	})
	if err != nil {
		log.Printf("Failed to marshal run status: %v", err)
		return nil
	}
	return msg
}
