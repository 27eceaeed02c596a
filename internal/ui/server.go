// Package ui serves the single allowlist page and the session actions
// behind it.
package ui

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vkoval/allowctl/internal/auth"
	"github.com/vkoval/allowctl/internal/observability"
	"github.com/vkoval/allowctl/internal/session"
)

const Version = "0.1.0"

//go:embed page.html
var pageHTML string

// Config defines the HTTP surface of the UI server.
type Config struct {
	App         string
	ListenAddr  string
	CorsOrigins []string
	AuthToken   string
	TLSCert     string
	TLSKey      string
}

func DefaultConfig() Config {
	return Config{
		App:         "allowctl",
		ListenAddr:  ":9000",
		CorsOrigins: []string{"http://localhost:3000"},
	}
}

type Server struct {
	cfg       Config
	ctrl      *session.Controller
	logger    zerolog.Logger
	router    *gin.Engine
	tmpl      *template.Template
	startedAt time.Time
}

func New(cfg Config, ctrl *session.Controller, logger zerolog.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.App) == "" {
		cfg.App = DefaultConfig().App
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	if len(cfg.CorsOrigins) == 0 {
		cfg.CorsOrigins = DefaultConfig().CorsOrigins
	}

	tmpl, err := template.New("page").Parse(pageHTML)
	if err != nil {
		return nil, fmt.Errorf("ui: parse page template: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Middleware: keep it lean
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.App))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CorsOrigins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		logger:    logger,
		router:    r,
		tmpl:      tmpl,
		startedAt: time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until the listener fails. TLS is used when a cert/key
// pair is configured.
func (s *Server) Run() error {
	if s.cfg.TLSCert != "" {
		return s.router.RunTLS(s.cfg.ListenAddr, s.cfg.TLSCert, s.cfg.TLSKey)
	}
	return s.router.Run(s.cfg.ListenAddr)
}

func (s *Server) joinValidator() auth.Validator {
	if strings.TrimSpace(s.cfg.AuthToken) == "" {
		return nil
	}
	return auth.StaticToken{Token: s.cfg.AuthToken}
}
