package handler

import (
	"context"
	"net/http"
	"time"

	"docchat-web/internal/client"

	"github.com/gin-gonic/gin"
)

// BackendPinger 后端健康检查
type BackendPinger interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	backend BackendPinger
}

func NewHealthHandler(backend BackendPinger) *HealthHandler {
	return &HealthHandler{backend: backend}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	backend := "ok"
	if err := h.backend.Health(ctx); err != nil {
		backend = client.Message(err)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"backend":   backend,
		"timestamp": time.Now().Unix(),
	})
}
