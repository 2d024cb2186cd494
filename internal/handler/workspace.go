package handler

import (
	"errors"
	"net/http"

	"docchat-web/internal/client"
	"docchat-web/internal/service"
	"docchat-web/internal/storage"
	"docchat-web/internal/upload"
	"docchat-web/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const workspaceKey = "workspace"

// WorkspaceFactory 为新浏览器创建工作区
type WorkspaceFactory func(id string) *service.Workspace

// WorkspaceMiddleware 通过 cookie 找到（或创建）当前浏览器的工作区并放入 gin.Context
func WorkspaceMiddleware(store storage.Storage, cookieName string, newWorkspace WorkspaceFactory) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cookieName)
		if err == nil && id != "" {
			if ws, err := store.GetWorkspace(id); err == nil {
				c.Set(workspaceKey, ws)
				c.Next()
				return
			}
		}

		id = uuid.NewString()
		ws := newWorkspace(id)
		if err := store.SaveWorkspace(ws); err != nil {
			logger.Errorf("保存工作区失败: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, id, 0, "/", "", false, true)

		c.Set(workspaceKey, ws)
		c.Next()
	}
}

func workspaceFrom(c *gin.Context) *service.Workspace {
	return c.MustGet(workspaceKey).(*service.Workspace)
}

// statusFor 将错误映射为 HTTP 状态码
func statusFor(err error) int {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, service.ErrEmptyQuestion),
		errors.Is(err, upload.ErrNoFile):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrChatNotFound),
		errors.Is(err, service.ErrSuggestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBusy),
		errors.Is(err, service.ErrNoSelection),
		errors.Is(err, service.ErrUploadInProgress):
		return http.StatusConflict
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &apiErr):
		if apiErr.Kind == client.KindNoResponse {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorJSON(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": client.Message(err)})
}
