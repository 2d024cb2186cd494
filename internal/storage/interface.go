package storage

import (
	"docchat-web/internal/service"
)

// Storage 保存每个浏览器的工作区（视图状态），仅存在于进程内存
type Storage interface {
	GetWorkspace(id string) (*service.Workspace, error)
	SaveWorkspace(ws *service.Workspace) error
	DeleteWorkspace(id string) error
	Count() int

	Init() error
	Close() error
}
