package view

// ErrorBanner 临时错误提示，与当前错误信息一一对应
type ErrorBanner struct {
	message string
}

func (b *ErrorBanner) Show(message string) {
	b.message = message
}

// Dismiss 关闭提示并清空错误
func (b *ErrorBanner) Dismiss() {
	b.message = ""
}

func (b *ErrorBanner) Visible() bool {
	return b.message != ""
}

func (b *ErrorBanner) Message() string {
	return b.message
}
