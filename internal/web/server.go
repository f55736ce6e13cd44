// Package web serves the HTML pages: the sheet editor, topic and partner
// indexes, and the login form. The JSON API is mounted underneath.
package web

import (
	"context"
	"net/http"
	"time"

	"sheets/api/internal/app"
	"sheets/api/internal/toc"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// Pages is the slice of the app service the page handlers render from.
type Pages interface {
	SessionFromToken(ctx context.Context, token string) (app.Session, error)
	Refresh(ctx context.Context, refreshToken string) (app.Session, error)
	SignIn(ctx context.Context, email, password string) (app.Session, error)
	Logout(ctx context.Context, session app.Session, refreshToken string) error

	NewSheetPage(session app.Session) app.SheetPage
	SheetPage(ctx context.Context, session app.Session, sheetID int64) (app.SheetPage, error)
	TopicPage(ctx context.Context, session app.Session, slug string) (app.SheetPage, error)
	TopicsList(ctx context.Context) (app.ListPage, error)
	PartnerPage(ctx context.Context, session app.Session, partner string) (app.ListPage, error)
	HomePage(ctx context.Context, session app.Session) (app.ListPage, error)
}

type Options struct {
	// SSL turns on HSTS, SSL redirects and Secure cookies.
	SSL        bool
	RefreshTTL time.Duration
}

type Server struct {
	pages     Pages
	toc       *toc.Provider
	api       http.Handler
	opts      Options
	templates *templateSet
	Router    *gin.Engine
}

// NewServer builds the page router. Requests under /api/ are handed to api
// unchanged.
func NewServer(pages Pages, tocProvider *toc.Provider, api http.Handler, opts Options) *Server {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	secureConfig := secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}
	if opts.SSL {
		secureConfig.SSLRedirect = true
		secureConfig.STSSeconds = 31536000
		secureConfig.STSIncludeSubdomains = true
	}
	router.Use(secure.New(secureConfig))

	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}

	server := &Server{
		pages:     pages,
		toc:       tocProvider,
		api:       api,
		opts:      opts,
		templates: mustLoadTemplates(),
		Router:    router,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.Router.GET("/", s.homePage)
	s.Router.GET("/login", s.loginPage)
	s.Router.POST("/login", s.loginSubmit)
	s.Router.POST("/logout", s.logout)

	s.Router.GET("/sheets/new", s.newSheet)
	s.Router.GET("/sheets/:id", s.viewSheet)
	s.Router.GET("/topics", s.topicsList)
	s.Router.GET("/topics/:topic", s.topicView)
	s.Router.GET("/partners/:partner", s.partnerPage)

	if s.api != nil {
		s.Router.Any("/api/*path", gin.WrapH(s.api))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
