package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/session"
)

const (
	VisitorCookie = "visitor_id"
	visitorTTL    = 365 * 24 * time.Hour
)

type ctxKey int

const (
	visitorKey ctxKey = iota
	jarKey
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		ev := log.Info()
		if ww.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("req_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}

// visitor tags every request with the visitor id that keys its client stores.
func (s *Server) visitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(VisitorCookie); err == nil {
			if _, perr := uuid.Parse(c.Value); perr == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     VisitorCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(visitorTTL.Seconds()),
				HttpOnly: true,
				Secure:   s.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), visitorKey, id)))
	})
}

func visitorFrom(r *http.Request) string {
	id, _ := r.Context().Value(visitorKey).(string)
	return id
}

func (s *Server) session(r *http.Request) *session.Session {
	return s.sessions.Get(r.Context(), visitorFrom(r))
}

// cookieJar reads request cookies and writes response cookies. Cookies set
// during the request shadow the incoming ones, so a handler sees its own writes.
type cookieJar struct {
	r   *http.Request
	w   http.ResponseWriter
	set map[string]*http.Cookie
}

func (j *cookieJar) Cookie(name string) (string, bool) {
	if c, ok := j.set[name]; ok {
		if c.MaxAge < 0 || c.Value == "" {
			return "", false
		}
		return c.Value, true
	}
	c, err := j.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

func (j *cookieJar) SetCookie(c *http.Cookie) {
	j.set[c.Name] = c
	http.SetCookie(j.w, c)
}

func withJar(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jar := &cookieJar{r: r, w: w, set: map[string]*http.Cookie{}}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), jarKey, jar)))
	})
}

func jarFrom(r *http.Request) *cookieJar {
	if j, ok := r.Context().Value(jarKey).(*cookieJar); ok {
		return j
	}
	return &cookieJar{r: r, set: map[string]*http.Cookie{}}
}
