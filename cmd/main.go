package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docchat-web/internal/client"
	"docchat-web/internal/config"
	"docchat-web/internal/handler"
	"docchat-web/internal/service"
	"docchat-web/internal/storage"
	"docchat-web/internal/upload"
	"docchat-web/internal/web"
	"docchat-web/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 后端网关
	api := client.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	// 工作区存储
	store := storage.NewMemoryStorage(cfg.Session.TTL, cfg.Session.CleanupInterval)
	if err := store.Init(); err != nil {
		logger.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	opts := service.OptionsFromConfig(cfg)
	newWorkspace := func(id string) *service.Workspace {
		return service.NewWorkspace(id, api, opts)
	}

	validator := upload.NewValidator(cfg.Upload.AcceptedTypes, cfg.Upload.MaxFileSize)
	uploadService := service.NewUploadService(api, validator)

	router, err := setupRouter(cfg, routes{
		store:         store,
		newWorkspace:  newWorkspace,
		chatHandler:   handler.NewChatHandler(cfg.UI.ScrollThreshold),
		uploadHandler: handler.NewUploadHandler(uploadService),
		healthHandler: handler.NewHealthHandler(api),
	})
	if err != nil {
		logger.Fatalf("Failed to setup router: %v", err)
	}

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// 启动服务器
	go func() {
		logger.Infof("服务器启动在端口 %d，后端 %s", cfg.Server.Port, api.BaseURL())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")
	if err := server.Close(); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
	}
	logger.Info("服务器已关闭")
}

type routes struct {
	store         storage.Storage
	newWorkspace  handler.WorkspaceFactory
	chatHandler   *handler.ChatHandler
	uploadHandler *handler.UploadHandler
	healthHandler *handler.HealthHandler
}

func setupRouter(cfg *config.Config, r routes) (*gin.Engine, error) {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)
	router.StaticFS("/static", web.Static())

	// 健康检查
	router.GET("/health", r.healthHandler.Health)

	workspace := handler.WorkspaceMiddleware(r.store, cfg.Session.CookieName, r.newWorkspace)

	// 页面
	pages := router.Group("/", workspace)
	{
		pages.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/chat")
		})
		pages.GET("/upload", r.uploadHandler.UploadPage)
		pages.POST("/upload", r.uploadHandler.Upload)
		pages.GET("/chat", r.chatHandler.ChatPage)
	}

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}

	// 浏览器状态API
	ui := router.Group("/ui", cors.New(corsConfig), workspace)
	{
		ui.GET("/state", r.chatHandler.GetState)
		ui.GET("/events", r.chatHandler.Events)
		ui.POST("/chats/refresh", r.chatHandler.RefreshChats)
		ui.POST("/chats/:chat_id/select", r.chatHandler.SelectChat)
		ui.DELETE("/chats/:chat_id", r.chatHandler.DeleteChat)
		ui.POST("/send", r.chatHandler.Send)
		ui.POST("/suggestions/:index", r.chatHandler.SendSuggestion)
		ui.PUT("/input", r.chatHandler.UpdateInput)
		ui.POST("/viewport", r.chatHandler.UpdateViewport)
		ui.POST("/scroll-to-bottom", r.chatHandler.ScrollToBottom)
		ui.DELETE("/error", r.chatHandler.DismissError)
		ui.DELETE("/upload/error", r.uploadHandler.DismissError)
	}

	return router, nil
}
