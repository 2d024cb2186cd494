package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"docchat-web/internal/view"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNoFile          = errors.New("no file provided")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Target 一次上传的单个文件，只在上传调用期间存在
type Target struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.ReadSeeker
}

// First 只取第一个文件，多余的文件被忽略
func First(targets []Target) (Target, error) {
	if len(targets) == 0 {
		return Target{}, ErrNoFile
	}
	return targets[0], nil
}

// Validator 在任何网络请求之前检查类型与大小
type Validator struct {
	accepted []string
	maxSize  int64
}

func NewValidator(accepted []string, maxSize int64) *Validator {
	normalized := make([]string, 0, len(accepted))
	for _, t := range accepted {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(t)))
	}
	return &Validator{accepted: normalized, maxSize: maxSize}
}

func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

func (v *Validator) Accepted() []string {
	return v.accepted
}

// Validate 依次检查文件名、大小、声明类型与内容类型（魔数）
func (v *Validator) Validate(t Target) error {
	if t.Name == "" || t.Content == nil {
		return ErrNoFile
	}

	if t.Size > v.maxSize {
		return fmt.Errorf("%w: %s exceeds the %s limit", ErrTooLarge, view.FileSize(t.Size), view.FileSize(v.maxSize))
	}

	declared := DeclaredType(t)
	if !v.accepts(declared) {
		return fmt.Errorf("%w: %s (accepted: %s)", ErrUnsupportedType, orUnknown(declared), strings.Join(v.accepted, ", "))
	}

	detected, err := mimetype.DetectReader(t.Content)
	if err != nil {
		return fmt.Errorf("detect content type: %w", err)
	}
	if _, err := t.Content.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload: %w", err)
	}

	if !v.matches(detected) {
		return fmt.Errorf("%w: content is %s", ErrUnsupportedType, detected.String())
	}

	return nil
}

func (v *Validator) accepts(mediaType string) bool {
	for _, a := range v.accepted {
		if a == mediaType {
			return true
		}
	}
	return false
}

func (v *Validator) matches(m *mimetype.MIME) bool {
	for _, a := range v.accepted {
		if m.Is(a) {
			return true
		}
	}
	return false
}

// DeclaredType 浏览器声明的类型，缺失或为 octet-stream 时按扩展名推断
func DeclaredType(t Target) string {
	if t.ContentType != "" {
		if mediaType, _, err := mime.ParseMediaType(t.ContentType); err == nil && mediaType != "application/octet-stream" {
			return strings.ToLower(mediaType)
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(t.Name))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
