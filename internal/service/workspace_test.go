package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"docchat-web/internal/client"
	"docchat-web/internal/model"
	"docchat-web/internal/view"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatGateway struct {
	mu sync.Mutex

	chats     []model.ChatSession
	listErr   error
	deleteErr error
	queryErr  error

	listCalls   int
	deleted     []string
	queries     []model.QueryRequest
	queryChatID []string

	// 非空时 QueryChat 阻塞直到 release 关闭
	started chan struct{}
	release chan struct{}
}

func (f *fakeChatGateway) ListChats(ctx context.Context) ([]model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.ChatSession, len(f.chats))
	for i, c := range f.chats {
		out[i] = c.Clone()
	}
	return out, nil
}

func (f *fakeChatGateway) DeleteChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, chatID)
	kept := f.chats[:0]
	for _, c := range f.chats {
		if c.ID != chatID {
			kept = append(kept, c)
		}
	}
	f.chats = kept
	return nil
}

func (f *fakeChatGateway) QueryChat(ctx context.Context, chatID, question string, nResults int) (*model.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, model.QueryRequest{Question: question, NResults: nResults})
	f.queryChatID = append(f.queryChatID, chatID)
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	for i := range f.chats {
		if f.chats[i].ID != chatID {
			continue
		}
		base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
		n := len(f.chats[i].Messages)
		f.chats[i].Messages = append(f.chats[i].Messages,
			model.Message{ID: "srv-q-" + itoa(n), ChatID: chatID, Content: question, Type: model.MessageTypeQuestion, CreatedAt: base},
			model.Message{ID: "srv-a-" + itoa(n), ChatID: chatID, Content: "answer to " + question, Type: model.MessageTypeAnswer, CreatedAt: base.Add(time.Second)},
		)
		f.chats[i].UpdatedAt = base.Add(time.Second)
		return &model.QueryResponse{Answer: "answer to " + question, Chat: f.chats[i].Clone()}, nil
	}
	return nil, &client.APIError{Kind: client.KindServer, StatusCode: http.StatusNotFound, Message: "Chat session not found"}
}

func (f *fakeChatGateway) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func fixtureChats() []model.ChatSession {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	return []model.ChatSession{
		{
			ID: "b", Title: "Chat about b.pdf", DocumentName: "b.pdf",
			CreatedAt: t0.Add(2 * time.Hour), UpdatedAt: t0.Add(3 * time.Hour),
			Messages: []model.Message{
				{ID: "m1", ChatID: "b", Content: "What is this?", Type: model.MessageTypeQuestion, CreatedAt: t0},
				{ID: "m2", ChatID: "b", Content: "A report.", Type: model.MessageTypeAnswer, CreatedAt: t0.Add(time.Second)},
			},
		},
		{
			ID: "a", Title: "Chat about a.pdf", DocumentName: "a.pdf",
			CreatedAt: t0, UpdatedAt: t0.Add(time.Hour),
			Messages: []model.Message{},
		},
		{
			ID: "c", Title: "Chat about c.pdf", DocumentName: "c.pdf",
			CreatedAt: t0.Add(time.Hour), UpdatedAt: t0.Add(time.Hour),
			Messages: []model.Message{},
		},
	}
}

func newTestWorkspace(t *testing.T, gw *fakeChatGateway) *Workspace {
	t.Helper()
	ws := NewWorkspace("test", gw, DefaultOptions())
	ws.now = func() time.Time { return time.Date(2026, 10, 19, 11, 59, 0, 0, time.UTC) }
	require.NoError(t, ws.LoadChats(context.Background(), nil))
	return ws
}

func TestLoadChatsNavigation(t *testing.T) {
	tests := []struct {
		name         string
		nav          *model.Navigation
		wantSelected string
	}{
		{name: "no navigation selects nothing", nav: nil, wantSelected: ""},
		{name: "new upload selects most recently created", nav: &model.Navigation{IsNewUpload: true}, wantSelected: "b"},
		{name: "chat id wins when present", nav: &model.Navigation{ChatID: "c", IsNewUpload: true}, wantSelected: "c"},
		{name: "unknown chat id falls back to newest", nav: &model.Navigation{ChatID: "zzz", IsNewUpload: true}, wantSelected: "b"},
		{name: "chat id without upload flag", nav: &model.Navigation{ChatID: "a"}, wantSelected: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeChatGateway{chats: fixtureChats()}
			ws := NewWorkspace("test", gw, DefaultOptions())

			require.NoError(t, ws.LoadChats(context.Background(), tt.nav))

			snapshot := ws.Snapshot()
			assert.Len(t, snapshot.Chats, 3)
			if tt.wantSelected == "" {
				assert.Nil(t, snapshot.Selected)
				return
			}
			require.NotNil(t, snapshot.Selected)
			assert.Equal(t, tt.wantSelected, snapshot.Selected.ID)
		})
	}
}

func TestLoadChatsNewUploadWithEmptyList(t *testing.T) {
	ws := NewWorkspace("test", &fakeChatGateway{}, DefaultOptions())

	require.NoError(t, ws.LoadChats(context.Background(), &model.Navigation{IsNewUpload: true}))

	snapshot := ws.Snapshot()
	assert.Empty(t, snapshot.Chats)
	assert.Nil(t, snapshot.Selected)
}

func TestLoadChatsFailureSetsBanner(t *testing.T) {
	gw := &fakeChatGateway{listErr: &client.APIError{Kind: client.KindNoResponse, Message: client.MsgNoResponse}}
	ws := NewWorkspace("test", gw, DefaultOptions())

	err := ws.LoadChats(context.Background(), nil)

	require.Error(t, err)
	assert.Equal(t, client.MsgNoResponse, ws.Snapshot().Error)
}

func TestSelectUnknownChat(t *testing.T) {
	ws := newTestWorkspace(t, &fakeChatGateway{chats: fixtureChats()})

	err := ws.Select("missing")

	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.Nil(t, ws.Snapshot().Selected)
}

func TestSelectEmitsDelayedInstantScroll(t *testing.T) {
	ws := newTestWorkspace(t, &fakeChatGateway{chats: fixtureChats()})
	events, cancel := ws.Subscribe()
	defer cancel()

	require.NoError(t, ws.Select("a"))

	var scroll *view.ScrollDirective
	for scroll == nil {
		select {
		case ev := <-events:
			if ev.Type == EventScroll {
				scroll = ev.Scroll
			}
		case <-time.After(time.Second):
			t.Fatal("no scroll directive")
		}
	}
	assert.Equal(t, view.BehaviorAuto, scroll.Behavior)
	assert.Equal(t, 100*time.Millisecond, scroll.Delay)
}

func TestDeleteOtherChatKeepsSelection(t *testing.T) {
	gw := &fakeChatGateway{chats: fixtureChats()}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("b"))
	before := ws.Snapshot().Selected

	require.NoError(t, ws.Delete(context.Background(), "a"))

	snapshot := ws.Snapshot()
	require.NotNil(t, snapshot.Selected)
	assert.Equal(t, before, snapshot.Selected)
	assert.Len(t, snapshot.Chats, 2)
	for _, c := range snapshot.Chats {
		assert.NotEqual(t, "a", c.ID)
	}
	assert.Equal(t, 2, gw.listCalls, "delete refetches the full list")
}

func TestDeleteSelectedChatClearsSelection(t *testing.T) {
	gw := &fakeChatGateway{chats: fixtureChats()}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("b"))

	require.NoError(t, ws.Delete(context.Background(), "b"))

	snapshot := ws.Snapshot()
	assert.Nil(t, snapshot.Selected)
	assert.Len(t, snapshot.Chats, 2)
	assert.True(t, snapshot.InputDisabled)
	for _, s := range snapshot.Suggestions {
		assert.True(t, s.Disabled)
	}
}

func TestDeleteFailureKeepsState(t *testing.T) {
	gw := &fakeChatGateway{chats: fixtureChats(), deleteErr: &client.APIError{Kind: client.KindServer, Message: "Chat session not found"}}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("b"))

	err := ws.Delete(context.Background(), "b")

	require.Error(t, err)
	snapshot := ws.Snapshot()
	require.NotNil(t, snapshot.Selected)
	assert.Equal(t, "b", snapshot.Selected.ID)
	assert.Len(t, snapshot.Chats, 3)
	assert.Equal(t, "Chat session not found", snapshot.Error)
	assert.Equal(t, 1, gw.listCalls)
}

func TestSendRejectsBlankQuestion(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t "} {
		gw := &fakeChatGateway{chats: fixtureChats()}
		ws := newTestWorkspace(t, gw)
		require.NoError(t, ws.Select("b"))
		ws.SetInput(q)

		err := ws.Send(context.Background(), q)

		assert.ErrorIs(t, err, ErrEmptyQuestion)
		assert.Equal(t, 0, gw.queryCount())
		snapshot := ws.Snapshot()
		assert.Len(t, snapshot.Selected.Messages, 2)
		assert.Equal(t, q, snapshot.Input, "input is not cleared")
	}
}

func TestSendWithoutSelection(t *testing.T) {
	gw := &fakeChatGateway{chats: fixtureChats()}
	ws := newTestWorkspace(t, gw)

	err := ws.Send(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Equal(t, MsgSelectChatFirst, err.Error())
	assert.Equal(t, 0, gw.queryCount())
	assert.Equal(t, MsgSelectChatFirst, ws.Snapshot().Error)
}

func TestSendReconcilesWithServerMessages(t *testing.T) {
	gw := &fakeChatGateway{
		chats:   fixtureChats(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("b"))
	ws.SetInput("Summarize this")

	done := make(chan error, 1)
	go func() { done <- ws.Send(context.Background(), "Summarize this") }()
	<-gw.started

	pending := ws.Snapshot()
	assert.True(t, pending.Loading)
	assert.Empty(t, pending.Input)
	require.Len(t, pending.Selected.Messages, 3)
	provisional := pending.Selected.Messages[2]
	assert.True(t, provisional.Pending)
	assert.Equal(t, model.MessageTypeQuestion, provisional.Type)
	assert.Equal(t, "Summarize this", provisional.Content)
	assert.Equal(t, "1792411140000", provisional.ID)

	close(gw.release)
	require.NoError(t, <-done)

	snapshot := ws.Snapshot()
	assert.False(t, snapshot.Loading)
	require.Len(t, snapshot.Selected.Messages, 4)
	for _, m := range snapshot.Selected.Messages {
		assert.False(t, m.Pending)
		assert.False(t, m.Failed)
	}

	gw.mu.Lock()
	server := gw.chats[0].Clone()
	gw.mu.Unlock()
	assert.Equal(t, server.Messages, snapshot.Selected.Messages)

	assert.Equal(t, model.QueryRequest{Question: "Summarize this", NResults: 5}, gw.queries[0])
	assert.Equal(t, "answer to Summarize this", snapshot.Chats[0].Preview)
}

func TestSendScenarioTwoMessagesBecomeThree(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	chat := model.ChatSession{
		ID: "x", Title: "Chat about x.pdf", DocumentName: "x.pdf", CreatedAt: t0, UpdatedAt: t0,
		Messages: []model.Message{
			{ID: "1", Content: "q", Type: model.MessageTypeQuestion, CreatedAt: t0},
			{ID: "2", Content: "a", Type: model.MessageTypeAnswer, CreatedAt: t0},
		},
	}
	confirmed := chat.Clone()
	confirmed.Messages = append(confirmed.Messages, model.Message{ID: "3", Content: "Summarize this", Type: model.MessageTypeQuestion, CreatedAt: t0.Add(time.Minute)})

	gw := &scriptedGateway{chats: []model.ChatSession{chat}, reply: confirmed, started: make(chan struct{}, 1), release: make(chan struct{})}
	ws := NewWorkspace("test", gw, DefaultOptions())
	require.NoError(t, ws.LoadChats(context.Background(), nil))
	require.NoError(t, ws.Select("x"))

	done := make(chan error, 1)
	go func() { done <- ws.Send(context.Background(), "Summarize this") }()
	<-gw.started
	assert.Len(t, ws.Snapshot().Selected.Messages, 3)

	close(gw.release)
	require.NoError(t, <-done)

	msgs := ws.Snapshot().Selected.Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "3", msgs[2].ID)
	for _, m := range msgs {
		assert.False(t, m.Pending)
	}
}

type scriptedGateway struct {
	chats   []model.ChatSession
	reply   model.ChatSession
	started chan struct{}
	release chan struct{}
}

func (g *scriptedGateway) ListChats(ctx context.Context) ([]model.ChatSession, error) {
	return cloneChats(g.chats), nil
}

func (g *scriptedGateway) DeleteChat(ctx context.Context, chatID string) error {
	return nil
}

func (g *scriptedGateway) QueryChat(ctx context.Context, chatID, question string, nResults int) (*model.QueryResponse, error) {
	g.started <- struct{}{}
	<-g.release
	return &model.QueryResponse{Chat: g.reply.Clone()}, nil
}

func TestSendWhileInFlightMakesNoSecondCall(t *testing.T) {
	gw := &fakeChatGateway{
		chats:   fixtureChats(),
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("b"))

	done := make(chan error, 1)
	go func() { done <- ws.Send(context.Background(), "first") }()
	<-gw.started

	err := ws.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	err = ws.SendSuggestion(context.Background(), 0)
	assert.ErrorIs(t, err, ErrBusy)

	snapshot := ws.Snapshot()
	assert.Len(t, snapshot.Selected.Messages, 3, "rejected sends do not append")
	for _, s := range snapshot.Suggestions {
		assert.True(t, s.Disabled)
	}

	close(gw.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gw.queryCount())
}

func TestSendToDifferentChatsIsNotSerialized(t *testing.T) {
	gw := &fakeChatGateway{
		chats:   fixtureChats(),
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	ws := newTestWorkspace(t, gw)

	require.NoError(t, ws.Select("b"))
	doneB := make(chan error, 1)
	go func() { doneB <- ws.Send(context.Background(), "to b") }()
	<-gw.started

	require.NoError(t, ws.Select("a"))
	assert.False(t, ws.Snapshot().Loading)
	doneA := make(chan error, 1)
	go func() { doneA <- ws.Send(context.Background(), "to a") }()
	<-gw.started

	assert.Equal(t, 2, gw.queryCount())
	close(gw.release)
	require.NoError(t, <-doneB)
	require.NoError(t, <-doneA)
}

func TestSendFailureKeepsOptimisticMessage(t *testing.T) {
	gw := &fakeChatGateway{
		chats:    fixtureChats(),
		queryErr: &client.APIError{Kind: client.KindNoResponse, Message: client.MsgNoResponse, Err: errors.New("connection refused")},
	}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("b"))

	err := ws.Send(context.Background(), "Summarize this")

	require.Error(t, err)
	snapshot := ws.Snapshot()
	assert.Equal(t, "No response from server", snapshot.Error)
	assert.False(t, snapshot.Loading)
	require.Len(t, snapshot.Selected.Messages, 3)
	last := snapshot.Selected.Messages[2]
	assert.Equal(t, "Summarize this", last.Content)
	assert.False(t, last.Pending)
	assert.True(t, last.Failed)

	ws.DismissError()
	assert.Empty(t, ws.Snapshot().Error)
}

func TestReselectWhileInFlightKeepsPendingMessage(t *testing.T) {
	gw := &fakeChatGateway{
		chats:    fixtureChats(),
		queryErr: &client.APIError{Kind: client.KindNoResponse, Message: client.MsgNoResponse},
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("b"))

	done := make(chan error, 1)
	go func() { done <- ws.Send(context.Background(), "Summarize this") }()
	<-gw.started

	require.NoError(t, ws.Select("b"))
	snapshot := ws.Snapshot()
	require.Len(t, snapshot.Selected.Messages, 3)
	assert.True(t, snapshot.Selected.Messages[2].Pending)
	assert.True(t, snapshot.Loading)

	close(gw.release)
	require.Error(t, <-done)

	last := ws.Snapshot().Selected.Messages[2]
	assert.Equal(t, "Summarize this", last.Content)
	assert.True(t, last.Failed)
}

func TestStaleResponseAppliesToListOnly(t *testing.T) {
	gw := &fakeChatGateway{
		chats:   fixtureChats(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("b"))

	done := make(chan error, 1)
	go func() { done <- ws.Send(context.Background(), "late question") }()
	<-gw.started

	require.NoError(t, ws.Select("a"))
	close(gw.release)
	require.NoError(t, <-done)

	snapshot := ws.Snapshot()
	require.NotNil(t, snapshot.Selected)
	assert.Equal(t, "a", snapshot.Selected.ID)
	assert.Empty(t, snapshot.Selected.Messages)

	require.NoError(t, ws.Select("b"))
	reselected := ws.Snapshot().Selected
	require.Len(t, reselected.Messages, 4)
	assert.Equal(t, "answer to late question", reselected.Messages[3].Content)
}

func TestSendSuggestion(t *testing.T) {
	gw := &fakeChatGateway{chats: fixtureChats()}
	ws := newTestWorkspace(t, gw)
	require.NoError(t, ws.Select("a"))

	require.NoError(t, ws.SendSuggestion(context.Background(), 2))
	assert.Equal(t, "Can you summarize this?", gw.queries[0].Question)

	assert.ErrorIs(t, ws.SendSuggestion(context.Background(), 4), ErrSuggestionNotFound)
	assert.ErrorIs(t, ws.SendSuggestion(context.Background(), -1), ErrSuggestionNotFound)
}

func TestUpdateViewport(t *testing.T) {
	ws := newTestWorkspace(t, &fakeChatGateway{chats: fixtureChats()})

	assert.True(t, ws.UpdateViewport(view.Viewport{ScrollTop: 0, ScrollHeight: 1000, ClientHeight: 400}))
	assert.True(t, ws.Snapshot().ShowJump)

	assert.False(t, ws.UpdateViewport(view.Viewport{ScrollTop: 550, ScrollHeight: 1000, ClientHeight: 400}))
	assert.False(t, ws.Snapshot().ShowJump)
}

func TestUploadFlags(t *testing.T) {
	ws := newTestWorkspace(t, &fakeChatGateway{})

	require.True(t, ws.BeginUpload())
	assert.False(t, ws.BeginUpload())
	assert.True(t, ws.Snapshot().Uploading)

	ws.EndUpload(&client.APIError{Kind: client.KindServer, Message: "Only PDF files are supported"})
	snapshot := ws.Snapshot()
	assert.False(t, snapshot.Uploading)
	assert.Equal(t, "Only PDF files are supported", snapshot.UploadError)

	ws.DismissUploadError()
	assert.Empty(t, ws.Snapshot().UploadError)
}

func TestSubscribeReceivesStateAndClose(t *testing.T) {
	ws := newTestWorkspace(t, &fakeChatGateway{chats: fixtureChats()})
	events, cancel := ws.Subscribe()
	defer cancel()

	ws.DismissError()
	ev := <-events
	assert.Equal(t, EventState, ev.Type)
	require.NotNil(t, ev.Snapshot)
	assert.Len(t, ev.Snapshot.Chats, 3)

	ws.Close()
	_, ok := <-events
	assert.False(t, ok)

	late, lateCancel := ws.Subscribe()
	defer lateCancel()
	_, ok = <-late
	assert.False(t, ok)
}

func TestSnapshotListItems(t *testing.T) {
	ws := newTestWorkspace(t, &fakeChatGateway{chats: fixtureChats()})
	require.NoError(t, ws.Select("b"))

	snapshot := ws.Snapshot()
	require.Len(t, snapshot.Chats, 3)
	first := snapshot.Chats[0]
	assert.Equal(t, "b", first.ID)
	assert.True(t, first.Selected)
	assert.Equal(t, "A report.", first.Preview)
	assert.Contains(t, first.Updated, "ago")
	assert.False(t, snapshot.Chats[1].Selected)
	assert.Empty(t, snapshot.Chats[1].Preview)
	require.Len(t, snapshot.Suggestions, 4)
	assert.False(t, snapshot.Suggestions[0].Disabled)
}
