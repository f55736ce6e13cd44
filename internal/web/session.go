package web

import (
	"log"
	"net/http"
	"time"

	"sheets/api/internal/app"

	"github.com/gin-gonic/gin"
)

// currentSession resolves the viewer from the access cookie. An expired
// access token is renewed from the refresh cookie when possible; anything
// else is an anonymous viewer.
func (s *Server) currentSession(c *gin.Context) app.Session {
	ctx := c.Request.Context()
	if token, err := c.Cookie(app.AccessCookie); err == nil && token != "" {
		if session, err := s.pages.SessionFromToken(ctx, token); err == nil {
			return session
		}
	}

	refresh, err := c.Cookie(app.RefreshCookie)
	if err != nil || refresh == "" {
		return app.Session{}
	}
	session, err := s.pages.Refresh(ctx, refresh)
	if err != nil {
		s.clearSessionCookies(c)
		return app.Session{}
	}
	s.setSessionCookies(c, session)
	return session
}

func (s *Server) setSessionCookies(c *gin.Context, session app.Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	accessAge := int(time.Until(session.ExpiresAt).Seconds())
	if accessAge < 1 {
		accessAge = 1
	}
	c.SetCookie(app.AccessCookie, session.Token, accessAge, "/", "", s.opts.SSL, true)
	c.SetCookie(app.RefreshCookie, session.RefreshToken, int(s.opts.RefreshTTL.Seconds()), "/", "", s.opts.SSL, true)
}

func (s *Server) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(app.AccessCookie, "", -1, "/", "", s.opts.SSL, true)
	c.SetCookie(app.RefreshCookie, "", -1, "/", "", s.opts.SSL, true)
}

func (s *Server) login(c *gin.Context, email, password string) (app.Session, error) {
	session, err := s.pages.SignIn(c.Request.Context(), email, password)
	if err != nil {
		return app.Session{}, err
	}
	s.setSessionCookies(c, session)
	log.Printf("web: user %d signed in", session.UserID)
	return session, nil
}
