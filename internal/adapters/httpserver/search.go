package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/domain"
	"github.com/phenrril/storefront/internal/search"
	"github.com/phenrril/storefront/internal/usecase"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsWriteWait  = 10 * time.Second
	wsMaxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsInbound is a message from the search box.
type wsInbound struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	Index int    `json:"index,omitempty"`
}

type wsOutbound struct {
	Type  string        `json:"type"`
	State *search.State `json:"state,omitempty"`
	Path  string        `json:"path,omitempty"`
	Error string        `json:"error,omitempty"`
}

// apiSearch returns the matches of ?q= as search options.
func (s *Server) apiSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	list, err := s.products.Search(r.Context(), q)
	if err != nil {
		log.Warn().Err(err).Str("query", q).Msg("api search")
		writeError(w, http.StatusBadGateway, "Search is unavailable right now.")
		return
	}
	opts := make([]search.Option, 0, len(list))
	for _, p := range list {
		slug := p.Slug
		if slug == "" {
			slug = domain.CreateUniqueSlug(p.Title, p.ID)
		}
		opts = append(opts, search.Option{Value: slug, Label: p.Title, Product: p})
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "minLength": usecase.MinSearchLength, "options": opts})
}

// wsSearch runs one search controller per connection. The browser sends
// input, enter, select and close messages and receives every state change
// plus navigation orders.
func (s *Server) wsSearch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws search upgrade")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	var wmu sync.Mutex
	send := func(m wsOutbound) {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(m); err != nil {
			log.Debug().Err(err).Str("type", m.Type).Msg("ws search write")
			cancel()
		}
	}

	ui := s.session(r).UI
	ctrl := search.New(ctx, s.products,
		func(path string) { send(wsOutbound{Type: "navigate", Path: path}) },
		func(st search.State) {
			ui.SetSearchQuery(st.Input)
			send(wsOutbound{Type: "state", State: &st})
		},
		s.searchCfg,
	)
	defer ctrl.Close()

	go func() {
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
				wmu.Unlock()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	st := ctrl.State()
	send(wsOutbound{Type: "state", State: &st})

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("ws search read")
			}
			return
		}
		switch in.Type {
		case "input":
			ctrl.Input(in.Value)
		case "enter":
			ctrl.Enter()
		case "select":
			if err := ctrl.Select(in.Index); err != nil {
				msg := "unknown option"
				if !errors.Is(err, domain.ErrNotFound) {
					msg = err.Error()
				}
				send(wsOutbound{Type: "error", Error: msg})
			}
		case "close":
			ctrl.Close()
		default:
			send(wsOutbound{Type: "error", Error: "unknown message type " + in.Type})
		}
	}
}
