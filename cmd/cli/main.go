package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docchat-web/internal/client"
	"docchat-web/internal/config"
	"docchat-web/internal/model"
	"docchat-web/internal/service"
	"docchat-web/internal/upload"
	"docchat-web/internal/view"
	"docchat-web/pkg/logger"

	"github.com/fatih/color"
)

var (
	titleColor    = color.New(color.Bold)
	questionColor = color.New(color.FgCyan)
	failedColor   = color.New(color.FgRed)
	mutedColor    = color.New(color.FgHiBlack)
)

type repl struct {
	api       *client.Client
	ws        *service.Workspace
	uploads   *service.UploadService
	chatIndex []string
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// 终端交互时只输出错误日志
	if err := logger.Init("error", cfg.Log.Format, cfg.Log.File); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	api := client.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	r := &repl{
		api:     api,
		ws:      service.NewWorkspace("cli", api, service.OptionsFromConfig(cfg)),
		uploads: service.NewUploadService(api, upload.NewValidator(cfg.Upload.AcceptedTypes, cfg.Upload.MaxFileSize)),
	}

	ctx := context.Background()
	if err := r.ws.LoadChats(ctx, nil); err == nil {
		r.printChats()
	} else {
		r.printError()
	}
	r.printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if quit := r.handle(ctx, scanner.Text()); quit {
			return
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/help":
		r.printHelp()
	case "/list":
		if err := r.ws.LoadChats(ctx, nil); err != nil {
			r.printError()
			return false
		}
		r.printChats()
	case "/open":
		id, ok := r.resolve(arg)
		if !ok {
			failedColor.Println("unknown chat:", arg)
			return false
		}
		if err := r.ws.Select(id); err != nil {
			failedColor.Println(err)
			return false
		}
		r.printConversation()
	case "/rm":
		id, ok := r.resolve(arg)
		if !ok {
			failedColor.Println("unknown chat:", arg)
			return false
		}
		if err := r.ws.Delete(ctx, id); err != nil {
			r.printError()
			return false
		}
		r.printChats()
	case "/upload":
		r.upload(ctx, arg)
	case "/docs":
		docs, err := r.api.ListDocuments(ctx)
		if err != nil {
			failedColor.Println(client.Message(err))
			return false
		}
		for _, d := range docs {
			fmt.Println(" -", d.Source)
		}
	case "/s":
		index, err := strconv.Atoi(arg)
		if err != nil {
			r.printSuggestions()
			return false
		}
		r.send(ctx, func() error { return r.ws.SendSuggestion(ctx, index-1) })
	default:
		r.send(ctx, func() error { return r.ws.Send(ctx, line) })
	}
	return false
}

func (r *repl) send(ctx context.Context, fn func() error) {
	mutedColor.Println("Thinking...")
	if err := fn(); err != nil && !errors.Is(err, service.ErrEmptyQuestion) {
		r.printError()
	}
	r.printConversation()
}

func (r *repl) upload(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		failedColor.Println(err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		failedColor.Println(err)
		return
	}

	target := upload.Target{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:        info.Size(),
		Content:     f,
	}

	mutedColor.Println("Uploading file...")
	nav, err := r.uploads.Upload(ctx, r.ws, []upload.Target{target})
	if err != nil {
		failedColor.Println(r.ws.Snapshot().UploadError)
		return
	}
	if err := r.ws.LoadChats(ctx, nav); err != nil {
		r.printError()
		return
	}
	r.printChats()
	r.printConversation()
}

// resolve 接受列表序号（从 1 开始）或会话 id
func (r *repl) resolve(arg string) (string, bool) {
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(r.chatIndex) {
		return r.chatIndex[n-1], true
	}
	for _, id := range r.chatIndex {
		if id == arg {
			return id, true
		}
	}
	return "", false
}

func (r *repl) printChats() {
	snapshot := r.ws.Snapshot()
	r.chatIndex = r.chatIndex[:0]

	titleColor.Println("Chats")
	if len(snapshot.Chats) == 0 {
		mutedColor.Println("  No chats yet")
	}
	for i, chat := range snapshot.Chats {
		r.chatIndex = append(r.chatIndex, chat.ID)
		marker := " "
		if chat.Selected {
			marker = "*"
		}
		fmt.Printf("%s %d. %s ", marker, i+1, chat.Title)
		mutedColor.Printf("(%s, %s)\n", chat.DocumentName, chat.Updated)
		if chat.Preview != "" {
			mutedColor.Printf("     %s\n", chat.Preview)
		}
	}
}

func (r *repl) printConversation() {
	snapshot := r.ws.Snapshot()
	if snapshot.Selected == nil {
		mutedColor.Println("Select a chat with /open or upload a new document with /upload")
		return
	}

	titleColor.Println(snapshot.Selected.DocumentName)
	for _, m := range snapshot.Selected.Messages {
		printMessage(m)
	}
	if snapshot.Loading {
		mutedColor.Println("Thinking...")
	}
}

func printMessage(m model.Message) {
	stamp := mutedColor.Sprint(view.ClockTime(m.CreatedAt))
	switch {
	case m.Failed:
		fmt.Printf("%s %s\n", stamp, failedColor.Sprint("you (not answered): "+m.Content))
	case m.Type == model.MessageTypeQuestion:
		fmt.Printf("%s %s\n", stamp, questionColor.Sprint("you: "+m.Content))
	default:
		fmt.Printf("%s %s\n", stamp, m.Content)
	}
}

func (r *repl) printSuggestions() {
	for _, s := range r.ws.Snapshot().Suggestions {
		fmt.Printf("  /s %d  %s\n", s.Index+1, s.Text)
	}
}

func (r *repl) printError() {
	snapshot := r.ws.Snapshot()
	if snapshot.Error != "" {
		failedColor.Println(snapshot.Error)
		r.ws.DismissError()
	}
}

func (r *repl) printHelp() {
	mutedColor.Println(`commands:
  /list              refresh chats
  /open <n|id>       select a chat
  /rm <n|id>         delete a chat
  /upload <path>     upload a PDF and start a chat about it
  /docs              list ingested documents
  /s [n]             list or send a suggested question
  /quit              exit
anything else is sent as a question to the selected chat`)
}
