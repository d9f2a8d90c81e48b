// README: Emergency broadcast endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hemolink/internal/modules/request"
	"hemolink/internal/types"
)

type RequestHandler struct {
	requests *request.Service
}

func NewRequestHandler(svc *request.Service) *RequestHandler {
	return &RequestHandler{requests: svc}
}

type broadcastReq struct {
	BloodGroup string       `json:"blood_group"`
	RadiusKm   float64      `json:"radius_km"`
	Origin     *types.Point `json:"origin"`
}

// Broadcast dispatches an emergency fan-out for a pending request. The
// response reflects the durable record; delivery happens afterwards.
func (h *RequestHandler) Broadcast(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req broadcastReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	result, err := h.requests.Dispatch(c.Request.Context(), request.BroadcastCommand{
		RequestID:  id,
		BloodGroup: req.BloodGroup,
		Origin:     req.Origin,
		RadiusKm:   req.RadiusKm,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"broadcast_id":  result.BroadcastID,
		"request_id":    result.RequestID,
		"matched_count": result.MatchedCount,
		"notify_queued": result.NotifyQueued,
	})
}

// Status reports the dispatch bookkeeping for a request.
func (h *RequestHandler) Status(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	status, err := h.requests.Status(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request_id":     status.RequestID,
		"dispatched":     status.Dispatched,
		"dispatched_at":  status.DispatchedAt,
		"notified_count": status.NotifiedCount,
	})
}
