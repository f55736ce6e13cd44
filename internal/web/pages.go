package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sheets/api/internal/app"
	"sheets/api/internal/toc"

	"github.com/gin-gonic/gin"
)

type sheetPageData struct {
	baseData
	Page app.SheetPage
	TOC  []toc.Node
}

type listPageData struct {
	baseData
	Page app.ListPage
}

type loginPageData struct {
	baseData
	Error string
	Email string
	Next  string
}

func (s *Server) base(c *gin.Context, session app.Session, title string) baseData {
	data := baseData{Title: title, CurrentURL: c.Request.URL.RequestURI()}
	if session.Authenticated() {
		data.User = &viewerData{ID: session.UserID, Name: session.UserName}
	}
	return data
}

func (s *Server) tocNodes() []toc.Node {
	if s.toc == nil {
		return []toc.Node{}
	}
	return s.toc.TOC()
}

// pageError writes the lookup failure as plain text.
func pageError(c *gin.Context, err error) {
	status, text := app.PageErrorText(err)
	c.String(status, text)
}

func (s *Server) newSheet(c *gin.Context) {
	session := s.currentSession(c)
	page := s.pages.NewSheetPage(session)
	s.render(c, http.StatusOK, "sheets.html", sheetPageData{
		baseData: s.base(c, session, page.Title),
		Page:     page,
		TOC:      s.tocNodes(),
	})
}

func (s *Server) viewSheet(c *gin.Context) {
	sheetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || sheetID <= 0 {
		c.String(http.StatusNotFound, "Couldn't find sheet with id: %s", c.Param("id"))
		return
	}
	session := s.currentSession(c)
	page, err := s.pages.SheetPage(c.Request.Context(), session, sheetID)
	if err != nil {
		pageError(c, err)
		return
	}
	s.render(c, http.StatusOK, "sheets.html", sheetPageData{
		baseData: s.base(c, session, page.Title),
		Page:     page,
		TOC:      s.tocNodes(),
	})
}

func (s *Server) topicView(c *gin.Context) {
	session := s.currentSession(c)
	page, err := s.pages.TopicPage(c.Request.Context(), session, c.Param("topic"))
	if err != nil {
		pageError(c, err)
		return
	}
	s.render(c, http.StatusOK, "sheets.html", sheetPageData{
		baseData: s.base(c, session, page.Title),
		Page:     page,
		TOC:      s.tocNodes(),
	})
}

func (s *Server) topicsList(c *gin.Context) {
	session := s.currentSession(c)
	page, err := s.pages.TopicsList(c.Request.Context())
	if err != nil {
		pageError(c, err)
		return
	}
	s.render(c, http.StatusOK, "topics.html", listPageData{
		baseData: s.base(c, session, page.Title),
		Page:     page,
	})
}

func (s *Server) partnerPage(c *gin.Context) {
	session := s.currentSession(c)
	page, err := s.pages.PartnerPage(c.Request.Context(), session, c.Param("partner"))
	switch {
	case errors.Is(err, app.ErrLoginRequired):
		c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.Path))
		return
	case errors.Is(err, app.ErrNotMember):
		c.Redirect(http.StatusFound, "/")
		return
	case err != nil:
		pageError(c, err)
		return
	}
	s.render(c, http.StatusOK, "topics.html", listPageData{
		baseData: s.base(c, session, page.Title),
		Page:     page,
	})
}

func (s *Server) homePage(c *gin.Context) {
	session := s.currentSession(c)
	page, err := s.pages.HomePage(c.Request.Context(), session)
	if err != nil {
		pageError(c, err)
		return
	}
	s.render(c, http.StatusOK, "home.html", listPageData{
		baseData: s.base(c, session, page.Title),
		Page:     page,
	})
}

func (s *Server) loginPage(c *gin.Context) {
	session := s.currentSession(c)
	next := safeNext(c.Query("next"))
	if session.Authenticated() {
		c.Redirect(http.StatusSeeOther, next)
		return
	}
	s.render(c, http.StatusOK, "login.html", loginPageData{
		baseData: s.base(c, session, "Log in"),
		Next:     next,
	})
}

func (s *Server) loginSubmit(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	next := safeNext(c.PostForm("next"))

	if email == "" || password == "" {
		s.renderLoginError(c, http.StatusBadRequest, "Email and password are required", email, next)
		return
	}
	if _, err := s.login(c, email, password); err != nil {
		status, message := app.PageErrorText(err)
		s.renderLoginError(c, status, message, email, next)
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

func (s *Server) renderLoginError(c *gin.Context, status int, message, email, next string) {
	s.render(c, status, "login.html", loginPageData{
		baseData: s.base(c, app.Session{}, "Log in"),
		Error:    message,
		Email:    email,
		Next:     next,
	})
}

func (s *Server) logout(c *gin.Context) {
	var session app.Session
	if token, err := c.Cookie(app.AccessCookie); err == nil && token != "" {
		session, _ = s.pages.SessionFromToken(c.Request.Context(), token)
	}
	refresh, _ := c.Cookie(app.RefreshCookie)
	_ = s.pages.Logout(c.Request.Context(), session, refresh)
	s.clearSessionCookies(c)
	c.Redirect(http.StatusSeeOther, "/")
}

// safeNext only follows local paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
