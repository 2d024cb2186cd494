package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"docchat-web/internal/model"
	"docchat-web/internal/service"
	"docchat-web/internal/utils"
	"docchat-web/internal/view"
	"docchat-web/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	scrollThreshold float64
	heartbeat       time.Duration
}

func NewChatHandler(scrollThreshold float64) *ChatHandler {
	return &ChatHandler{
		scrollThreshold: scrollThreshold,
		heartbeat:       30 * time.Second,
	}
}

// ChatPage 聊天页。挂载时拉取会话列表，chat_id/new 查询参数携带上传流程的跳转状态
func (h *ChatHandler) ChatPage(c *gin.Context) {
	ws := workspaceFrom(c)

	var nav *model.Navigation
	if chatID, isNew := c.Query("chat_id"), c.Query("new") == "1"; chatID != "" || isNew {
		nav = &model.Navigation{ChatID: chatID, IsNewUpload: isNew}
	}

	// 失败时错误已写入工作区的错误提示，页面照常渲染
	_ = ws.LoadChats(c.Request.Context(), nav)

	c.HTML(http.StatusOK, "chat.html", gin.H{
		"Title":           "Chat",
		"State":           ws.Snapshot(),
		"ScrollThreshold": h.scrollThreshold,
	})
}

func (h *ChatHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, workspaceFrom(c).Snapshot())
}

func (h *ChatHandler) RefreshChats(c *gin.Context) {
	ws := workspaceFrom(c)
	if err := ws.LoadChats(c.Request.Context(), nil); err != nil {
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Snapshot())
}

// Events 以 SSE 推送状态快照与滚动指令
func (h *ChatHandler) Events(c *gin.Context) {
	ws := workspaceFrom(c)
	events, cancel := ws.Subscribe()
	defer cancel()

	sseWriter := utils.NewSSEWriter(c.Writer)

	snapshot := ws.Snapshot()
	if err := sseWriter.WriteJSON(service.EventState, service.Event{Type: service.EventState, Snapshot: &snapshot}); err != nil {
		return
	}

	heartbeatTicker := time.NewTicker(h.heartbeat)
	defer heartbeatTicker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sseWriter.WriteJSON(ev.Type, ev); err != nil {
				logger.Warnf("SSE 写入失败: %v", err)
				return
			}
		case <-heartbeatTicker.C:
			if err := sseWriter.Comment("heartbeat"); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *ChatHandler) SelectChat(c *gin.Context) {
	ws := workspaceFrom(c)
	if err := ws.Select(c.Param("chat_id")); err != nil {
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Snapshot())
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	ws := workspaceFrom(c)
	if err := ws.Delete(c.Request.Context(), c.Param("chat_id")); err != nil {
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Snapshot())
}

// Send 发送问题。请求一旦发出不可取消，浏览器断开也会把结果写回工作区
func (h *ChatHandler) Send(c *gin.Context) {
	var req model.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws := workspaceFrom(c)
	if err := ws.Send(context.WithoutCancel(c.Request.Context()), req.Question); err != nil {
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Snapshot())
}

func (h *ChatHandler) SendSuggestion(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid suggestion index"})
		return
	}

	ws := workspaceFrom(c)
	if err := ws.SendSuggestion(context.WithoutCancel(c.Request.Context()), index); err != nil {
		errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.Snapshot())
}

func (h *ChatHandler) UpdateInput(c *gin.Context) {
	var req model.InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	workspaceFrom(c).SetInput(req.Value)
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) UpdateViewport(c *gin.Context) {
	var req model.ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	show := workspaceFrom(c).UpdateViewport(view.Viewport{
		ScrollTop:    req.ScrollTop,
		ScrollHeight: req.ScrollHeight,
		ClientHeight: req.ClientHeight,
	})
	c.JSON(http.StatusOK, gin.H{"show_jump": show})
}

func (h *ChatHandler) ScrollToBottom(c *gin.Context) {
	workspaceFrom(c).JumpToBottom()
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) DismissError(c *gin.Context) {
	workspaceFrom(c).DismissError()
	c.Status(http.StatusNoContent)
}
