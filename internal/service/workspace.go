package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"docchat-web/internal/client"
	"docchat-web/internal/config"
	"docchat-web/internal/model"
	"docchat-web/internal/view"
	"docchat-web/pkg/logger"
)

var (
	ErrNoSelection        = errors.New(MsgSelectChatFirst)
	ErrEmptyQuestion      = errors.New("question is empty")
	ErrBusy               = errors.New("a request is already in flight for this chat")
	ErrChatNotFound       = errors.New("chat not found")
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrUploadInProgress   = errors.New("an upload is already in progress")
)

const MsgSelectChatFirst = "Please select a chat first"

const (
	EventState  = "state"
	EventScroll = "scroll"
)

// ChatGateway 会话列表与问答视图需要的后端操作
type ChatGateway interface {
	ListChats(ctx context.Context) ([]model.ChatSession, error)
	DeleteChat(ctx context.Context, chatID string) error
	QueryChat(ctx context.Context, chatID, question string, nResults int) (*model.QueryResponse, error)
}

type Options struct {
	QueryResults      int
	Suggestions       []string
	ScrollThreshold   float64
	SelectScrollDelay time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		QueryResults:      cfg.Backend.QueryResults,
		Suggestions:       cfg.Suggestions.DefaultQuestions,
		ScrollThreshold:   cfg.UI.ScrollThreshold,
		SelectScrollDelay: cfg.UI.SelectScroll,
	}
}

func DefaultOptions() Options {
	return Options{
		QueryResults:      config.DefaultQueryResults,
		Suggestions:       config.DefaultQuestions,
		ScrollThreshold:   config.DefaultScrollThreshold,
		SelectScrollDelay: config.DefaultSelectScroll,
	}
}

// Event 推送给订阅者（SSE）的状态变化
type Event struct {
	Type     string                `json:"type"`
	Snapshot *Snapshot             `json:"snapshot,omitempty"`
	Scroll   *view.ScrollDirective `json:"scroll,omitempty"`
}

type ChatListItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DocumentName string    `json:"document_name"`
	Preview      string    `json:"preview,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	Updated      string    `json:"updated"`
	Selected     bool      `json:"selected"`
}

type Suggestion struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Disabled bool   `json:"disabled"`
}

// Snapshot 某一时刻的只读视图状态
type Snapshot struct {
	Chats         []ChatListItem     `json:"chats"`
	Selected      *model.ChatSession `json:"selected"`
	Loading       bool               `json:"loading"`
	Input         string             `json:"input"`
	InputDisabled bool               `json:"input_disabled"`
	Error         string             `json:"error,omitempty"`
	ShowJump      bool               `json:"show_jump"`
	Suggestions   []Suggestion       `json:"suggestions"`
	Uploading     bool               `json:"uploading"`
	UploadError   string             `json:"upload_error,omitempty"`
}

// Workspace 一个浏览器会话的视图状态容器。
// 持有会话列表、当前选中会话、加载与错误状态，只通过自身方法修改。
// 锁从不跨网络调用持有。
type Workspace struct {
	mu      sync.Mutex
	id      string
	gateway ChatGateway
	opts    Options

	chats    []model.ChatSession
	selected *model.ChatSession
	inFlight map[string]bool
	input    string
	banner   view.ErrorBanner
	scroll   *view.ScrollTracker

	uploading    bool
	uploadBanner view.ErrorBanner

	subscribers map[int]chan Event
	nextSub     int
	closed      bool

	now func() time.Time
}

func NewWorkspace(id string, gateway ChatGateway, opts Options) *Workspace {
	if opts.QueryResults <= 0 {
		opts.QueryResults = client.DefaultQueryResults
	}
	return &Workspace{
		id:          id,
		gateway:     gateway,
		opts:        opts,
		chats:       []model.ChatSession{},
		inFlight:    make(map[string]bool),
		scroll:      view.NewScrollTracker(opts.ScrollThreshold),
		subscribers: make(map[int]chan Event),
		now:         time.Now,
	}
}

func (w *Workspace) ID() string {
	return w.id
}

// LoadChats 拉取全部会话。nav 来自上传流程：新上传时选中最近创建的会话，
// 带 chat_id 且存在于列表中时选中该会话
func (w *Workspace) LoadChats(ctx context.Context, nav *model.Navigation) error {
	chats, err := w.gateway.ListChats(ctx)
	if err != nil {
		w.fail("list chats", err)
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.chats = cloneChats(chats)

	if nav != nil {
		var target *model.ChatSession
		if nav.IsNewUpload && len(w.chats) > 0 {
			target = newestCreated(w.chats)
		}
		if nav.ChatID != "" {
			if found := findChat(w.chats, nav.ChatID); found != nil {
				target = found
			}
		}
		if target != nil {
			selected := target.Clone()
			w.selected = &selected
			w.scroll.Reset()
			w.publishScrollLocked(view.NewScrollDirective(view.BehaviorSmooth, 0))
		}
	}

	w.publishStateLocked()
	return nil
}

// Select 选中会话，并在渲染后（固定延迟）无动画滚动到底部
func (w *Workspace) Select(chatID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	found := findChat(w.chats, chatID)
	if found == nil {
		return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}

	// 重复选中当前会话时保留本地的待确认消息
	if w.selected == nil || w.selected.ID != chatID {
		selected := found.Clone()
		w.selected = &selected
	}
	w.scroll.Reset()

	w.publishStateLocked()
	w.publishScrollLocked(view.NewScrollDirective(view.BehaviorAuto, w.opts.SelectScrollDelay))
	return nil
}

// Delete 删除会话。删除的是当前选中会话时清空选择，随后整体重新拉取列表
func (w *Workspace) Delete(ctx context.Context, chatID string) error {
	if err := w.gateway.DeleteChat(ctx, chatID); err != nil {
		w.fail("delete chat", err)
		return err
	}

	w.mu.Lock()
	if w.selected != nil && w.selected.ID == chatID {
		w.selected = nil
		w.scroll.Reset()
	}
	w.publishStateLocked()
	w.mu.Unlock()

	return w.LoadChats(ctx, nil)
}

func (w *Workspace) SetInput(value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.input = value
}

// Send 发送问题：先乐观追加问题消息，再以后端返回的完整会话整体替换。
// 同一会话同时只允许一个请求
func (w *Workspace) Send(ctx context.Context, question string) error {
	w.mu.Lock()
	if w.selected == nil {
		w.banner.Show(MsgSelectChatFirst)
		w.publishStateLocked()
		w.mu.Unlock()
		return ErrNoSelection
	}
	if strings.TrimSpace(question) == "" {
		w.mu.Unlock()
		return ErrEmptyQuestion
	}
	chatID := w.selected.ID
	if w.inFlight[chatID] {
		w.mu.Unlock()
		return ErrBusy
	}

	w.input = ""
	w.banner.Dismiss()

	now := w.now()
	provisional := model.Message{
		ID:        strconv.FormatInt(now.UnixMilli(), 10),
		ChatID:    chatID,
		Content:   question,
		Type:      model.MessageTypeQuestion,
		CreatedAt: now,
		Pending:   true,
	}
	w.selected.Messages = append(w.selected.Messages, provisional)
	w.inFlight[chatID] = true
	w.publishStateLocked()
	w.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"workspace": w.id,
		"chat_id":   chatID,
	}).Debugf("查询会话: %s", question)

	resp, err := w.gateway.QueryChat(ctx, chatID, question, w.opts.QueryResults)

	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, chatID)

	if err != nil {
		if w.selected != nil && w.selected.ID == chatID {
			markFailed(w.selected.Messages, provisional.ID)
		}
		w.banner.Show(client.Message(err))
		logger.Errorf("查询会话 %s 失败: %v", chatID, err)
		w.publishStateLocked()
		w.publishScrollLocked(view.NewScrollDirective(view.BehaviorSmooth, 0))
		return err
	}

	w.reconcileLocked(chatID, resp.Chat)
	w.publishStateLocked()
	w.publishScrollLocked(view.NewScrollDirective(view.BehaviorSmooth, 0))
	return nil
}

// reconcileLocked 用后端返回的会话覆盖缓存：列表按 id 无条件替换，
// 选中会话只在 id 仍匹配时替换
func (w *Workspace) reconcileLocked(chatID string, chat model.ChatSession) {
	for i := range w.chats {
		if w.chats[i].ID == chat.ID {
			w.chats[i] = chat.Clone()
			break
		}
	}

	if w.selected != nil && w.selected.ID == chatID {
		authoritative := chat.Clone()
		w.selected = &authoritative
	}
}

// SendSuggestion 发送预置问题，与手动输入走同一流程
func (w *Workspace) SendSuggestion(ctx context.Context, index int) error {
	if index < 0 || index >= len(w.opts.Suggestions) {
		return fmt.Errorf("%w: %d", ErrSuggestionNotFound, index)
	}
	return w.Send(ctx, w.opts.Suggestions[index])
}

// UpdateViewport 浏览器上报滚动位置，距离底部超过阈值时显示“回到底部”按钮
func (w *Workspace) UpdateViewport(v view.Viewport) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.scroll.Update(v) {
		w.publishStateLocked()
	}
	return w.scroll.ShowButton()
}

func (w *Workspace) JumpToBottom() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.publishScrollLocked(view.NewScrollDirective(view.BehaviorSmooth, 0))
}

func (w *Workspace) DismissError() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.banner.Dismiss()
	w.publishStateLocked()
}

// BeginUpload 标记上传开始，已有上传进行中时返回 false
func (w *Workspace) BeginUpload() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.uploading {
		return false
	}
	w.uploading = true
	w.uploadBanner.Dismiss()
	w.publishStateLocked()
	return true
}

// EndUpload 上传结束，err 非空时显示在上传页
func (w *Workspace) EndUpload(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.uploading = false
	if err != nil {
		w.uploadBanner.Show(client.Message(err))
	}
	w.publishStateLocked()
}

// ShowUploadError 上传请求本身无法解析时显示错误，不影响进行中的上传
func (w *Workspace) ShowUploadError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.uploadBanner.Show(client.Message(err))
	w.publishStateLocked()
}

func (w *Workspace) DismissUploadError() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.uploadBanner.Dismiss()
	w.publishStateLocked()
}

func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workspace) snapshotLocked() Snapshot {
	now := w.now()

	items := make([]ChatListItem, 0, len(w.chats))
	for _, chat := range w.chats {
		item := ChatListItem{
			ID:           chat.ID,
			Title:        chat.Title,
			DocumentName: chat.DocumentName,
			UpdatedAt:    chat.UpdatedAt,
			Updated:      view.RelativeTime(chat.UpdatedAt, now),
			Selected:     w.selected != nil && w.selected.ID == chat.ID,
		}
		if last, ok := chat.LastMessage(); ok {
			item.Preview = view.Preview(last.Content, view.PreviewLength)
		}
		items = append(items, item)
	}

	var selected *model.ChatSession
	if w.selected != nil {
		s := w.selected.Clone()
		selected = &s
	}

	loading := w.selected != nil && w.inFlight[w.selected.ID]
	disabled := loading || w.selected == nil

	suggestions := make([]Suggestion, len(w.opts.Suggestions))
	for i, q := range w.opts.Suggestions {
		suggestions[i] = Suggestion{Index: i, Text: q, Disabled: disabled}
	}

	return Snapshot{
		Chats:         items,
		Selected:      selected,
		Loading:       loading,
		Input:         w.input,
		InputDisabled: disabled,
		Error:         w.banner.Message(),
		ShowJump:      w.scroll.ShowButton(),
		Suggestions:   suggestions,
		Uploading:     w.uploading,
		UploadError:   w.uploadBanner.Message(),
	}
}

// Subscribe 订阅状态变化，返回的取消函数需调用以释放
func (w *Workspace) Subscribe() (<-chan Event, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Event, 16)
	if w.closed {
		close(ch)
		return ch, func() {}
	}

	id := w.nextSub
	w.nextSub++
	w.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if sub, ok := w.subscribers[id]; ok {
				delete(w.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close 工作区过期时关闭全部订阅
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for id, ch := range w.subscribers {
		delete(w.subscribers, id)
		close(ch)
	}
}

func (w *Workspace) fail(op string, err error) {
	logger.WithFields(map[string]interface{}{
		"workspace": w.id,
		"op":        op,
	}).Errorf("操作失败: %v", err)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.banner.Show(client.Message(err))
	w.publishStateLocked()
}

func (w *Workspace) publishStateLocked() {
	if len(w.subscribers) == 0 {
		return
	}
	snapshot := w.snapshotLocked()
	w.broadcastLocked(Event{Type: EventState, Snapshot: &snapshot})
}

func (w *Workspace) publishScrollLocked(d view.ScrollDirective) {
	w.broadcastLocked(Event{Type: EventScroll, Scroll: &d})
}

// broadcastLocked 不阻塞；订阅者缓冲满时丢弃最旧的事件
func (w *Workspace) broadcastLocked(ev Event) {
	for _, ch := range w.subscribers {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func cloneChats(chats []model.ChatSession) []model.ChatSession {
	out := make([]model.ChatSession, len(chats))
	for i, c := range chats {
		out[i] = c.Clone()
	}
	return out
}

func findChat(chats []model.ChatSession, chatID string) *model.ChatSession {
	for i := range chats {
		if chats[i].ID == chatID {
			return &chats[i]
		}
	}
	return nil
}

func newestCreated(chats []model.ChatSession) *model.ChatSession {
	newest := &chats[0]
	for i := range chats[1:] {
		if chats[i+1].CreatedAt.After(newest.CreatedAt) {
			newest = &chats[i+1]
		}
	}
	return newest
}

func markFailed(messages []model.Message, id string) {
	for i := range messages {
		if messages[i].ID == id && messages[i].Pending {
			messages[i].Pending = false
			messages[i].Failed = true
			return
		}
	}
}
