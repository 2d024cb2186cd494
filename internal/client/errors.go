package client

import (
	"encoding/json"
	"errors"
	"strings"

	"docchat-web/internal/model"
)

// ErrorKind 区分失败原因，只在日志与测试中使用，界面只展示 Message
type ErrorKind int

const (
	KindServer     ErrorKind = iota + 1 // 后端返回非 2xx
	KindNoResponse                      // 请求已发出但没有收到响应
	KindSetup                           // 构造请求失败
)

const (
	MsgServerError = "Server error"
	MsgNoResponse  = "No response from server"
	MsgSetup       = "Error setting up request"
)

func (k ErrorKind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindNoResponse:
		return "no_response"
	case KindSetup:
		return "setup"
	default:
		return "unknown"
	}
}

// APIError 所有网关调用失败的统一错误
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Message 取出可展示的错误信息，非 APIError 时返回 err.Error()
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func setupError(err error) *APIError {
	return &APIError{Kind: KindSetup, Message: MsgSetup, Err: err}
}

func noResponseError(err error) *APIError {
	return &APIError{Kind: KindNoResponse, Message: MsgNoResponse, Err: err}
}

func serverError(status int, body []byte) *APIError {
	msg := detailFromBody(body)
	if msg == "" {
		msg = MsgServerError
	}
	return &APIError{Kind: KindServer, StatusCode: status, Message: msg}
}

// detailFromBody 解析 {"detail": ...}。detail 可能是字符串，也可能是校验错误列表 [{"msg": ...}]
func detailFromBody(body []byte) string {
	var payload model.ErrorResponse
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
