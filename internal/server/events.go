package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sharmadiveshwins/spotgenius-connect/internal/domain"
	obscontext "github.com/sharmadiveshwins/spotgenius-connect/internal/observability/context"
)

// PostEvent ingests one normalized platform event. Malformed payloads come
// back as 400, events the dispatcher cannot place as 422; an accepted event
// returns 202 once its session and task writes have committed.
func (s *Server) PostEvent(c *gin.Context) {
	var event domain.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	ctx := obscontext.WithLotID(c.Request.Context(), event.ParkingLotID)
	if err := s.dispatcher.HandleEvent(ctx, event); err != nil {
		s.log.Warn("event rejected",
			zap.String("event_key", string(event.EventKey)),
			zap.Int64("parking_lot_id", event.ParkingLotID),
			zap.String("request_id", obscontext.RequestIDFromGin(c)),
			zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"event_key": event.EventKey,
	})
}

// Healthz reports liveness and verifies the database connection.
func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
