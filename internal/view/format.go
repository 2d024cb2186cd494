package view

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

const PreviewLength = 40

// RelativeTime 形如 "3 minutes ago"
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Preview 截取消息预览，按 Unicode 字符截断
func Preview(content string, max int) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= max {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:max])) + "…"
}

// FileSize 形如 "50 MiB"
func FileSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// ClockTime 消息下方显示的时间
func ClockTime(t time.Time) string {
	return t.Local().Format("15:04:05")
}
