package view

import "time"

const (
	BehaviorAuto   = "auto"
	BehaviorSmooth = "smooth"
)

// Viewport 浏览器消息容器的滚动尺寸
type Viewport struct {
	ScrollTop    float64 `json:"scroll_top"`
	ScrollHeight float64 `json:"scroll_height"`
	ClientHeight float64 `json:"client_height"`
}

// DistanceFromBottom 视口底部距内容底部的像素
func (v Viewport) DistanceFromBottom() float64 {
	return v.ScrollHeight - v.ScrollTop - v.ClientHeight
}

// ScrollDirective 通知浏览器滚动到底部
type ScrollDirective struct {
	Behavior string        `json:"behavior"`
	Delay    time.Duration `json:"-"`
	DelayMs  int64         `json:"delay_ms"`
}

func NewScrollDirective(behavior string, delay time.Duration) ScrollDirective {
	return ScrollDirective{
		Behavior: behavior,
		Delay:    delay,
		DelayMs:  delay.Milliseconds(),
	}
}

// ScrollTracker 判断是否显示“回到底部”按钮
type ScrollTracker struct {
	threshold float64
	show      bool
}

func NewScrollTracker(threshold float64) *ScrollTracker {
	return &ScrollTracker{threshold: threshold}
}

// Update 根据最新视口计算按钮可见性，返回可见性是否发生变化
func (t *ScrollTracker) Update(v Viewport) bool {
	show := !t.NearBottom(v)
	changed := show != t.show
	t.show = show
	return changed
}

func (t *ScrollTracker) NearBottom(v Viewport) bool {
	return v.DistanceFromBottom() < t.threshold
}

func (t *ScrollTracker) ShowButton() bool {
	return t.show
}

// Reset 切换会话后视口回到底部
func (t *ScrollTracker) Reset() {
	t.show = false
}
