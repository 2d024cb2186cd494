package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"docchat-web/internal/client"
	"docchat-web/internal/model"
	"docchat-web/internal/service"
	"docchat-web/internal/upload"
	"docchat-web/pkg/logger"

	"github.com/gin-gonic/gin"
)

const multipartMemory = 32 << 20

type UploadHandler struct {
	uploadService *service.UploadService
}

func NewUploadHandler(uploadService *service.UploadService) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
	}
}

func (h *UploadHandler) UploadPage(c *gin.Context) {
	h.renderPage(c, http.StatusOK, workspaceFrom(c).Snapshot())
}

// Upload 接收拖放/选择的文件。成功后 303 跳转到聊天页，失败时回到空闲的上传页并显示错误
func (h *UploadHandler) Upload(c *gin.Context) {
	ws := workspaceFrom(c)
	validator := h.uploadService.Validator()

	// 留出表单字段的余量
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, validator.MaxSize()+1<<20)

	targets, closeAll, err := h.targets(c)
	defer closeAll()

	var nav *model.Navigation
	if err == nil {
		nav, err = h.uploadService.Upload(c.Request.Context(), ws, targets)
	} else {
		// 解析失败同样显示在上传页
		ws.ShowUploadError(err)
	}

	if err != nil {
		logger.Warnf("上传失败: %v", err)
		if wantsJSON(c) {
			errorJSON(c, err)
			return
		}
		snapshot := ws.Snapshot()
		if snapshot.UploadError == "" {
			snapshot.UploadError = client.Message(err)
		}
		h.renderPage(c, statusFor(err), snapshot)
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, nav)
		return
	}
	c.Redirect(http.StatusSeeOther, chatURL(nav))
}

func (h *UploadHandler) DismissError(c *gin.Context) {
	workspaceFrom(c).DismissUploadError()
	c.Status(http.StatusNoContent)
}

func (h *UploadHandler) targets(c *gin.Context) ([]upload.Target, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, closeAll, fmt.Errorf("%w: request exceeds %d bytes", upload.ErrTooLarge, maxErr.Limit)
		}
		return nil, closeAll, fmt.Errorf("%w: %v", upload.ErrNoFile, err)
	}

	headers := c.Request.MultipartForm.File["file"]
	targets := make([]upload.Target, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, &client.APIError{Kind: client.KindSetup, Message: client.MsgSetup, Err: err}
		}
		files = append(files, f)
		targets = append(targets, upload.Target{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}
	return targets, closeAll, nil
}

func (h *UploadHandler) renderPage(c *gin.Context, status int, snapshot service.Snapshot) {
	validator := h.uploadService.Validator()
	c.HTML(status, "upload.html", gin.H{
		"Title":       "Upload",
		"MaxFileSize": validator.MaxSize(),
		"AcceptAttr":  strings.Join(validator.Accepted(), ","),
		"Uploading":   snapshot.Uploading,
		"Error":       snapshot.UploadError,
	})
}

func chatURL(nav *model.Navigation) string {
	q := url.Values{}
	q.Set("chat_id", nav.ChatID)
	if nav.IsNewUpload {
		q.Set("new", "1")
	}
	return "/chat?" + q.Encode()
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}
