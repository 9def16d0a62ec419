// Package search turns keystrokes into debounced catalog queries and
// exposes the resulting option list as a small state machine.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/domain"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultMinLen   = 3
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusTyping     Status = "typing"
	StatusDebouncing Status = "debouncing"
	StatusQuerying   Status = "querying"
	StatusResults    Status = "results"
	StatusSubmitted  Status = "submitted"
)

// Option is one entry of the suggestion list.
type Option struct {
	Value   string         `json:"value"`
	Label   string         `json:"label"`
	Product domain.Product `json:"product"`
}

// State is what a search box renders. Seq grows with every change so a
// consumer can drop states that arrive out of order.
type State struct {
	Seq     uint64   `json:"seq"`
	Input   string   `json:"input"`
	Status  Status   `json:"status"`
	Options []Option `json:"options"`
	Open    bool     `json:"open"`
	Loading bool     `json:"loading"`
	Error   string   `json:"error,omitempty"`
}

// Querier runs one search. ProductUC satisfies it.
type Querier interface {
	Search(ctx context.Context, q string) ([]domain.Product, error)
}

// Config tunes a Controller. Zero values take the defaults.
type Config struct {
	Debounce time.Duration
	MinLen   int
}

// Controller drives one search input. It is safe for concurrent use; the
// debounce timer and the queries run on their own goroutines.
type Controller struct {
	mu       sync.Mutex
	ctx      context.Context
	querier  Querier
	navigate func(path string)
	onChange func(State)
	debounce time.Duration
	minLen   int

	state  State
	timer  *time.Timer
	gen    uint64
	closed bool
}

// New builds a controller. navigate receives the route to open after a
// selection or an Enter; onChange receives every new state. Queries run
// with ctx and stop mattering once it is done.
func New(ctx context.Context, q Querier, navigate func(string), onChange func(State), cfg Config) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MinLen <= 0 {
		cfg.MinLen = DefaultMinLen
	}
	if navigate == nil {
		navigate = func(string) {}
	}
	if onChange == nil {
		onChange = func(State) {}
	}
	return &Controller{
		ctx:      ctx,
		querier:  q,
		navigate: navigate,
		onChange: onChange,
		debounce: cfg.Debounce,
		minLen:   cfg.MinLen,
		state:    State{Status: StatusIdle, Options: []Option{}},
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Input records a keystroke. Every call re-arms the debounce timer; values
// shorter than the minimum length clear the options and never query.
func (c *Controller) Input(v string) {
	c.mu.Lock()
	c.closed = false
	c.cancelLocked()
	c.state.Input = v
	c.state.Error = ""
	c.state.Loading = false
	switch n := queryLen(v); {
	case n == 0:
		c.state.Status = StatusIdle
		c.clearOptionsLocked()
	case n < c.minLen:
		c.state.Status = StatusTyping
		c.clearOptionsLocked()
	default:
		c.state.Status = StatusDebouncing
		gen := c.gen
		c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
	}
	st := c.publishLocked()
	c.mu.Unlock()
	c.onChange(st)
}

// Enter submits the raw query to the full results page. The input is kept
// and the options close. It reports whether navigation happened.
func (c *Controller) Enter() bool {
	c.mu.Lock()
	q := c.state.Input
	if len([]rune(q)) < c.minLen {
		c.mu.Unlock()
		return false
	}
	c.cancelLocked()
	c.state.Status = StatusSubmitted
	c.state.Loading = false
	c.clearOptionsLocked()
	st := c.publishLocked()
	c.mu.Unlock()

	c.onChange(st)
	c.navigate("/products?search=" + url.QueryEscape(q))
	return true
}

// Select opens the product of option i and resets the input.
func (c *Controller) Select(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.state.Options) {
		n := len(c.state.Options)
		c.mu.Unlock()
		return fmt.Errorf("select option %d of %d: %w", i, n, domain.ErrNotFound)
	}
	opt := c.state.Options[i]
	c.cancelLocked()
	c.state.Input = ""
	c.state.Status = StatusIdle
	c.state.Loading = false
	c.state.Error = ""
	c.clearOptionsLocked()
	st := c.publishLocked()
	c.mu.Unlock()

	c.onChange(st)
	c.navigate("/products/" + url.PathEscape(opt.Value))
	return nil
}

// Close drops all state at once. A query still in flight is not aborted;
// its answer is ignored when it lands.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelLocked()
	c.closed = true
	seq := c.state.Seq
	c.state = State{Seq: seq, Status: StatusIdle, Options: []Option{}}
	st := c.publishLocked()
	c.mu.Unlock()
	c.onChange(st)
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	q := strings.TrimSpace(c.state.Input)
	c.state.Status = StatusQuerying
	c.state.Loading = true
	st := c.publishLocked()
	c.mu.Unlock()
	c.onChange(st)

	products, err := c.querier.Search(c.ctx, q)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.state.Loading = false
	c.state.Status = StatusResults
	c.state.Open = true
	if err != nil {
		log.Warn().Err(err).Str("query", q).Msg("search query failed")
		c.state.Error = "Search is unavailable right now."
		c.state.Options = []Option{}
	} else {
		c.state.Error = ""
		c.state.Options = toOptions(products)
	}
	st = c.publishLocked()
	c.mu.Unlock()
	c.onChange(st)
}

// cancelLocked stops the pending timer and retires the current generation
// so any in-flight answer is discarded.
func (c *Controller) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) clearOptionsLocked() {
	c.state.Options = []Option{}
	c.state.Open = false
}

func (c *Controller) publishLocked() State {
	c.state.Seq++
	return c.copyLocked()
}

func (c *Controller) copyLocked() State {
	st := c.state
	st.Options = make([]Option, len(c.state.Options))
	copy(st.Options, c.state.Options)
	return st
}

func toOptions(products []domain.Product) []Option {
	out := make([]Option, 0, len(products))
	for _, p := range products {
		slug := p.Slug
		if slug == "" {
			slug = domain.CreateUniqueSlug(p.Title, p.ID)
		}
		out = append(out, Option{Value: slug, Label: p.Title, Product: p})
	}
	return out
}

func queryLen(v string) int { return len([]rune(strings.TrimSpace(v))) }
