package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errGetState     = "failed to load state"
	errPublishPower = "failed to publish power state"

	maxBridgeBody = 1 << 16 // 64 KB
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// PowerRequest is the power bridge payload. PowerState is forwarded as is;
// the dispatcher acts on "ON" and "OFF" only.
type PowerRequest struct {
	PowerState string `json:"powerState,omitempty" example:"ON"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get television state
// @Tags         tv
// @Produce      json
// @Success      200  {object}  models.TVState
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/state [get]
func (h *Handler) getState(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "tv_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Power bridge
// @Description  Any path and method not matched by another route. The body is parsed in full before anything is written; a body that is not a JSON object with an optional string powerState gets an empty 400.
// @Tags         tv
// @Accept       json
// @Produce      json
// @Param        body  body      PowerRequest  true  "Desired power state"
// @Success      200   {object}  bus.Ack
// @Failure      400
// @Failure      502   {object}  map[string]string
// @Router       /{any} [post]
func (h *Handler) powerBridge(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBridgeBody))
	if err != nil {
		h.rejectBridgeBody(c, err)
		return
	}
	var req PowerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.rejectBridgeBody(c, err)
		return
	}

	ack, err := h.services.Power.PublishPower(c.Request.Context(), req.PowerState)
	if err != nil {
		h.logAndJSONError(c, http.StatusBadGateway, errPublishPower, "power_publish_failed", err, "power_state", req.PowerState)
		return
	}
	if h.log != nil {
		h.log.Infow("power_published", "power_state", req.PowerState, "receivers", ack.Receivers, "path", c.Request.URL.Path)
	}
	c.JSON(http.StatusOK, ack)
}

func (h *Handler) rejectBridgeBody(c *gin.Context, err error) {
	if h.log != nil {
		h.log.Infow("power_bridge_bad_body", "err", err, "method", c.Request.Method, "path", c.Request.URL.Path)
	}
	c.AbortWithStatus(http.StatusBadRequest)
}
