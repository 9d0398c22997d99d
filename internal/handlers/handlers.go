package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatline/api/internal/config"
	"chatline/api/internal/middleware"
	"chatline/api/internal/realtime"
	"chatline/api/internal/repository"
	"chatline/api/internal/service"
)

type HandlerSet struct {
	log            zerolog.Logger
	cfg            *config.AppConfig
	authService    *service.AuthService
	sessionService *service.SessionService
	qrService      *service.QrService
	gateway        *realtime.Gateway
	db             *pgxpool.Pool
	cache          *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)
	qrRepo := repository.NewQrRepository(db)

	revoker := service.NewRevoker(tokenRepo, blacklistRepo, cache, cfg, log)
	sessions := service.NewSessionService(sessionRepo, revoker, log)
	auth := service.NewAuthService(userRepo, tokenRepo, sessions, revoker, cfg, log)
	qr := service.NewQrService(qrRepo, userRepo, sessions, auth, cfg, log)
	gateway := realtime.NewGateway(auth, sessions, cfg, log)

	return HandlerSet{
		log:            log,
		cfg:            cfg,
		authService:    auth,
		sessionService: sessions,
		qrService:      qr,
		gateway:        gateway,
		db:             db,
		cache:          cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.authService, h.sessionService))
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)

		devices := v1.Group("/devices")
		devices.Use(middleware.Auth(h.authService, h.sessionService))
		devices.GET("/sessions", h.ListSessions)
		devices.POST("/sessions/:sessionId/logout", h.LogoutSession)
		devices.POST("/sessions/logout-all-others", h.LogoutAllOthers)

		qr := v1.Group("/qr-login")
		qr.POST("/generate", h.QrGenerate)
		qr.GET("/status/:sessionToken", h.QrStatus)

		qrAuthed := v1.Group("/qr-login")
		qrAuthed.Use(middleware.Auth(h.authService, h.sessionService))
		qrAuthed.POST("/scan", h.QrScan)
		qrAuthed.POST("/confirm", h.QrConfirm)

		v1.GET("/realtime/ws", gin.WrapH(h.gateway))
	}
}
