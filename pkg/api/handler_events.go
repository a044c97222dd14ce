package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eremenai/agentlytics/pkg/models"
	"github.com/eremenai/agentlytics/pkg/services"
)

// ingestEventsHandler handles POST /api/v1/events. The whole batch is
// validated before any insert: a single invalid event rejects the batch with
// 400 and nothing is persisted. Valid batches are persisted in one
// transaction; per-event driver errors are reported without failing siblings,
// and duplicate event IDs are silently accepted.
func (s *Server) ingestEventsHandler(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, IngestResponse{
			EventIDs: []string{},
			Errors: []services.IngestEventError{
				{Index: 0, Message: fmt.Sprintf("invalid request body: %v", err)},
			},
		})
		return
	}

	if len(req.Events) < services.MinBatchSize || len(req.Events) > services.MaxBatchSize {
		c.JSON(http.StatusBadRequest, IngestResponse{
			EventIDs: []string{},
			Errors: []services.IngestEventError{
				{Index: 0, Message: fmt.Sprintf("batch must contain between %d and %d events, got %d",
					services.MinBatchSize, services.MaxBatchSize, len(req.Events))},
			},
		})
		return
	}

	// Parse wire events; timestamp failures are per-event schema errors.
	events := make([]models.Event, len(req.Events))
	var parseErrors []services.IngestEventError
	for i, wire := range req.Events {
		ev, err := wire.ToModel()
		if err != nil {
			parseErrors = append(parseErrors, services.IngestEventError{
				Index:   i,
				EventID: wire.EventID,
				Message: err.Error(),
			})
			continue
		}
		events[i] = ev
	}

	if len(parseErrors) > 0 {
		c.JSON(http.StatusBadRequest, IngestResponse{
			EventIDs: []string{},
			Errors:   parseErrors,
		})
		return
	}

	// Validate the entire batch before any insert.
	if validationErrors := s.ingest.ValidateBatch(events); len(validationErrors) > 0 {
		c.JSON(http.StatusBadRequest, IngestResponse{
			EventIDs: []string{},
			Errors:   validationErrors,
		})
		return
	}

	result, err := s.ingest.IngestBatch(c.Request.Context(), events)
	if err != nil {
		slog.Error("Ingest transaction failed", "batch_size", len(events), "error", err)
		c.JSON(http.StatusInternalServerError, IngestResponse{
			EventIDs: []string{},
			Errors: []services.IngestEventError{
				{Index: 0, Message: "ingest transaction failed"},
			},
		})
		return
	}

	eventIDs := result.EventIDs
	if eventIDs == nil {
		eventIDs = []string{}
	}
	c.JSON(http.StatusOK, IngestResponse{
		Accepted: result.Accepted,
		EventIDs: eventIDs,
		Errors:   result.Errors,
	})
}
