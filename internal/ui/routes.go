package ui

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vkoval/allowctl/internal/auth"
	"github.com/vkoval/allowctl/internal/render"
	"github.com/vkoval/allowctl/internal/session"
	"github.com/vkoval/allowctl/internal/wallet"
)

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handlePage)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sess := s.router.Group("/session")
	sess.GET("/state", s.handleState)
	sess.POST("/connect", s.handleConnect)
	sess.POST("/join", auth.RequireToken(s.joinValidator()), s.handleJoin)
	sess.GET("/journal", auth.RequireToken(s.joinValidator()), s.handleJournal)
}

type pageData struct {
	View    render.View
	Variant string
	State   session.Snapshot
}

func (s *Server) handlePage(c *gin.Context) {
	snap := s.ctrl.Snapshot()
	view := render.Page(snap)
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(c.Writer, pageData{
		View:    view,
		Variant: string(view.Variant),
		State:   snap,
	}); err != nil {
		s.logger.Error().Err(err).Msg("page_render_failed")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"service": s.cfg.App,
		"version": Version,
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleConnect(c *gin.Context) {
	err := s.ctrl.Connect(c.Request.Context())
	s.respond(c, err)
}

func (s *Server) handleJoin(c *gin.Context) {
	err := s.ctrl.Join(c.Request.Context())
	s.respond(c, err)
}

func (s *Server) handleJournal(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"attempts": s.ctrl.Journal().List(),
	})
}

// respond maps controller errors to HTTP statuses and always carries
// the fresh snapshot so the page can re-render from it.
func (s *Server) respond(c *gin.Context, err error) {
	snap := s.ctrl.Snapshot()
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": snap})
		return
	}

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, wallet.ErrWrongNetwork):
		status = http.StatusConflict
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrAlreadyMember):
		status = http.StatusConflict
	case errors.Is(err, wallet.ErrNoSigner):
		status = http.StatusForbidden
	case errors.Is(err, session.ErrNotConnected):
		status = http.StatusPreconditionFailed
	}
	c.JSON(status, gin.H{"status": "error", "error": err.Error(), "state": snap})
}
