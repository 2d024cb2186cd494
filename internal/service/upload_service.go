package service

import (
	"context"
	"fmt"
	"io"

	"docchat-web/internal/model"
	"docchat-web/internal/upload"
	"docchat-web/pkg/logger"
)

// DocumentGateway 上传流程需要的后端操作
type DocumentGateway interface {
	UploadDocument(ctx context.Context, filename, contentType string, r io.Reader) (map[string]interface{}, error)
	CreateChat(ctx context.Context, title, documentName string) (*model.ChatSession, error)
}

type UploadService struct {
	gateway   DocumentGateway
	validator *upload.Validator
}

func NewUploadService(gateway DocumentGateway, validator *upload.Validator) *UploadService {
	return &UploadService{
		gateway:   gateway,
		validator: validator,
	}
}

func (s *UploadService) Validator() *upload.Validator {
	return s.validator
}

// ChatTitle 新会话标题
func ChatTitle(filename string) string {
	return fmt.Sprintf("Chat about %s", filename)
}

// Upload 上传文档并创建绑定该文档的会话，成功后返回跳转到聊天页的状态。
// 只使用第一个文件；校验失败时不发出任何请求；任一步失败都中止流程
func (s *UploadService) Upload(ctx context.Context, ws *Workspace, targets []upload.Target) (*model.Navigation, error) {
	if ws != nil {
		if !ws.BeginUpload() {
			return nil, ErrUploadInProgress
		}
	}

	nav, err := s.upload(ctx, targets)

	if ws != nil {
		ws.EndUpload(err)
	}
	return nav, err
}

func (s *UploadService) upload(ctx context.Context, targets []upload.Target) (*model.Navigation, error) {
	target, err := upload.First(targets)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(target); err != nil {
		logger.Warnf("拒绝上传 %s: %v", target.Name, err)
		return nil, err
	}

	contentType := upload.DeclaredType(target)
	if _, err := s.gateway.UploadDocument(ctx, target.Name, contentType, target.Content); err != nil {
		return nil, err
	}

	chat, err := s.gateway.CreateChat(ctx, ChatTitle(target.Name), target.Name)
	if err != nil {
		return nil, err
	}

	logger.Infof("文档 %s 上传完成，会话 %s 已创建", target.Name, chat.ID)

	return &model.Navigation{
		ChatID:      chat.ID,
		IsNewUpload: true,
	}, nil
}
