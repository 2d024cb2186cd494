package model

import (
	"encoding/json"
	"time"
)

const (
	MessageTypeQuestion = "question"
	MessageTypeAnswer   = "answer"
)

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id,omitempty"`
	Content   string    `json:"content"`
	Type      string    `json:"type"` // question | answer
	CreatedAt time.Time `json:"created_at"`

	// 仅客户端使用，后端不会返回
	Pending bool `json:"pending,omitempty"`
	Failed  bool `json:"failed,omitempty"`
}

type ChatSession struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DocumentName string    `json:"document_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Messages     []Message `json:"messages"`
	IsActive     bool      `json:"is_active"`
}

// Clone 深拷贝会话，缓存中的会话之间不共享消息切片
func (s ChatSession) Clone() ChatSession {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// LastMessage 返回最新一条消息
func (s ChatSession) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

type QueryResponse struct {
	Answer string      `json:"answer"`
	Chat   ChatSession `json:"chat"`
}

type Document struct {
	Source string `json:"source"`
}

// ErrorResponse 后端错误体。detail 为字符串，或请求校验失败时的 [{"msg": ...}] 列表
type ErrorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message,omitempty"`
}

// Navigation 上传完成后跳转到聊天页携带的状态
type Navigation struct {
	ChatID      string `json:"chat_id"`
	IsNewUpload bool   `json:"is_new_upload"`
}
