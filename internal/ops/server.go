// Package ops exposes the operator HTTP surface: health, the system
// notification list and requester moderation toggles. It replaces the
// in-chat admin menus with something a dashboard can call.
package ops

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"support-relay-bot/internal/common/syncx"
	"support-relay-bot/internal/features/notification"
	"support-relay-bot/internal/features/ticket"
	"support-relay-bot/internal/features/user/models"
	"support-relay-bot/internal/features/user/repository"
	"support-relay-bot/internal/platform/telegram"
	"support-relay-bot/internal/texts"
)

type Config struct {
	Addr          string
	Token         string
	AllowedOrigin string
	// Staff group, needed for the silent-mode pin in the user's topic.
	GroupID int64
}

type Server struct {
	cfg     Config
	notifs  *notification.Manager
	users   repository.UserRepository
	tickets *ticket.Manager
	api     telegram.API
	texts   *texts.Bundle
	locks   *syncx.KeyedMutex
	log     zerolog.Logger

	httpServer *http.Server
}

func NewServer(cfg Config, notifs *notification.Manager, users repository.UserRepository, tickets *ticket.Manager, api telegram.API, bundle *texts.Bundle, locks *syncx.KeyedMutex, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		notifs:  notifs,
		users:   users,
		tickets: tickets,
		api:     api,
		texts:   bundle,
		locks:   locks,
		log:     log.With().Str("component", "ops").Logger(),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{s.cfg.AllowedOrigin},
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/health", s.health)

	api := r.Group("/api/v1", s.auth())
	api.GET("/notifications", s.listNotifications)
	api.POST("/notifications", s.addNotification)
	api.DELETE("/notifications", s.clearNotifications)
	api.DELETE("/notifications/:id", s.removeNotification)
	api.POST("/users/:id/ban", s.setBanned(true))
	api.POST("/users/:id/unban", s.setBanned(false))
	api.POST("/users/:id/silent", s.setSilent(true))
	api.POST("/users/:id/unsilent", s.setSilent(false))
	api.POST("/users/:id/open", s.transition(s.tickets.Open))
	api.POST("/users/:id/close", s.transition(s.tickets.Close))

	return r
}

func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("ops server stopped")
		}
	}()
	s.log.Info().Str("addr", s.cfg.Addr).Msg("ops server listening")
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Token == "" || c.GetHeader("Authorization") != "Bearer "+s.cfg.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listNotifications(c *gin.Context) {
	list, err := s.notifs.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

type addNotificationRequest struct {
	Message    string `json:"message" binding:"required"`
	Importance string `json:"importance"`
	ExpiryAt   string `json:"expiry_at"`
}

func (s *Server) addNotification(c *gin.Context) {
	var req addNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	importance := notification.Importance(req.Importance)
	if req.Importance == "" {
		importance = notification.ImportanceNormal
	}

	var expiryAt *time.Time
	if req.ExpiryAt != "" {
		t, err := models.ParseStoredTime(req.ExpiryAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiry_at"})
			return
		}
		expiryAt = &t
	}

	n, err := s.notifs.Add(c.Request.Context(), req.Message, importance, expiryAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (s *Server) removeNotification(c *gin.Context) {
	if err := s.notifs.Remove(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearNotifications(c *gin.Context) {
	if err := s.notifs.Clear(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setBanned(banned bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		unlock := s.locks.Lock(id)
		defer unlock()

		rec, err := s.users.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			s.fail(c, err)
			return
		}

		rec.IsBanned = banned
		if err := s.users.Put(c.Request.Context(), rec); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "is_banned": banned})
	}
}

// transition runs a ticket state change on behalf of an operator.
func (s *Server) transition(fn func(context.Context, *models.UserRecord) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		unlock := s.locks.Lock(id)
		defer unlock()

		ctx := c.Request.Context()
		rec, err := s.users.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			s.fail(c, err)
			return
		}

		if err := fn(ctx, rec); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "topic_status": rec.Status})
	}
}

// setSilent flips silent mode. Enabling pins a notice into the topic so
// staff sees why their messages stop going out; disabling removes it.
// The pin is best-effort, the mode flag is the source of truth.
func (s *Server) setSilent(silent bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		unlock := s.locks.Lock(id)
		defer unlock()

		ctx := c.Request.Context()
		rec, err := s.users.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			s.fail(c, err)
			return
		}

		if rec.SilentMode != silent {
			rec.SilentMode = silent
			if silent {
				s.pinSilentNotice(ctx, rec)
			} else {
				s.dropSilentNotice(ctx, rec)
			}
			if err := s.users.Put(ctx, rec); err != nil {
				s.fail(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "silent_mode": silent})
	}
}

func (s *Server) pinSilentNotice(ctx context.Context, rec *models.UserRecord) {
	threadID, ok := rec.Thread()
	if !ok {
		return
	}
	t := s.texts.For(rec.LanguageCode)
	msgID, err := s.api.SendMessage(ctx, telegram.SendRequest{
		ChatID:   s.cfg.GroupID,
		ThreadID: threadID,
		Text:     t.Get("silent_mode_enabled"),
	})
	if err != nil {
		s.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("send silent notice failed")
		return
	}
	if err := s.api.PinChatMessage(ctx, s.cfg.GroupID, msgID); err != nil {
		s.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("pin silent notice failed")
	}
	rec.SilentPinMessageID = &msgID
}

func (s *Server) dropSilentNotice(ctx context.Context, rec *models.UserRecord) {
	if rec.SilentPinMessageID == nil {
		return
	}
	if err := s.api.DeleteMessage(ctx, s.cfg.GroupID, *rec.SilentPinMessageID); err != nil {
		s.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("delete silent notice failed")
	}
	rec.SilentPinMessageID = nil
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error().Str("request_id", c.GetString("request_id")).Err(err).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
