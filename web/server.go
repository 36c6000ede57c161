package web

import (
	"context"
	"net/http"

	"diary-assistant/assistant"
	"diary-assistant/config"
	"diary-assistant/database"
	"diary-assistant/llmclient"
	"diary-assistant/web/handlers"
	"diary-assistant/web/middleware"
	"diary-assistant/web/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router    *gin.Engine
	assistant *assistant.Assistant
	llm       *llmclient.Client
	store     *database.HistoryStore
	logger    *zap.Logger
	config    *config.Config
}

func NewServer(assistant *assistant.Assistant, llm *llmclient.Client, store *database.HistoryStore, logger *zap.Logger, config *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		router:    router,
		assistant: assistant,
		llm:       llm,
		store:     store,
		logger:    logger,
		config:    config,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.Static("/static", "./web/static")
	s.router.GET("/", func(c *gin.Context) {
		c.File("./web/static/index.html")
	})

	pdfService := services.NewPDFService(s.logger, s.config.MaxKnowledgeChars)

	chatHandler := handlers.NewChatHandler(s.assistant, s.store, s.logger)
	entriesHandler := handlers.NewEntriesHandler(s.assistant, pdfService, s.logger)
	sessionsHandler := handlers.NewSessionsHandler(s.store, s.logger)
	modelsHandler := handlers.NewModelsHandler(s.llm, s.logger)

	api := s.router.Group("/api")
	api.Use(middleware.SessionMiddleware(s.store))

	api.POST("/chat", chatHandler.SendMessage)
	api.GET("/chat/stream", chatHandler.StreamResponse)

	api.POST("/diary", entriesHandler.AddDiaryEntry)
	api.POST("/knowledge", entriesHandler.AddKnowledge)
	api.POST("/knowledge/pdf", entriesHandler.UploadKnowledgePDF)
	api.GET("/summary", entriesHandler.DailySummary)

	api.GET("/sessions", sessionsHandler.List)
	api.POST("/sessions", sessionsHandler.Create)
	api.GET("/sessions/:sessionID/messages", sessionsHandler.Messages)
	api.PUT("/sessions/:sessionID", sessionsHandler.Rename)
	api.DELETE("/sessions/:sessionID/messages", sessionsHandler.ClearMessages)

	api.GET("/models", modelsHandler.List)
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	return srv.Shutdown(context.Background())
}
