package usecase

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/cartstore"
)

// SyncResult reports both halves of a synced cart mutation. Error is set
// when the cookie mirror rejected the change; the client store keeps the
// optimistic state either way.
type SyncResult struct {
	Cart   cartstore.Snapshot `json:"cart"`
	Server ActionResult       `json:"server"`
	Error  string             `json:"error,omitempty"`
}

func (r SyncResult) OK() bool { return r.Error == "" }

// CartSync applies a mutation to the visitor's cart store first, then
// mirrors it through the cookie actions.
type CartSync struct {
	Actions *CartActions
}

func (s *CartSync) AddItem(ctx context.Context, store *cartstore.Store, jar CookieJar, item cartstore.ItemInput, quantity int) SyncResult {
	if quantity < 1 {
		quantity = 1
	}
	store.AddItem(item, quantity)
	return s.finish(store, item.ID, "add", s.Actions.AddToCart(ctx, jar, item.ID, strconv.Itoa(quantity)))
}

func (s *CartSync) UpdateQuantity(ctx context.Context, store *cartstore.Store, jar CookieJar, id string, quantity int) SyncResult {
	store.UpdateQuantity(id, quantity)
	if quantity < 0 {
		quantity = 0
	}
	return s.finish(store, id, "update", s.Actions.UpdateCartItem(ctx, jar, id, strconv.Itoa(quantity)))
}

func (s *CartSync) RemoveItem(ctx context.Context, store *cartstore.Store, jar CookieJar, id string) SyncResult {
	store.RemoveItem(id)
	return s.finish(store, id, "remove", s.Actions.RemoveFromCart(ctx, jar, id))
}

func (s *CartSync) Clear(ctx context.Context, store *cartstore.Store, jar CookieJar) SyncResult {
	store.Clear()
	return s.finish(store, "", "clear", s.Actions.ClearCart(ctx, jar))
}

func (s *CartSync) finish(store *cartstore.Store, id, op string, res ActionResult) SyncResult {
	out := SyncResult{Cart: store.Snapshot(), Server: res}
	if !res.Success {
		out.Error = res.Error
		log.Warn().Str("op", op).Str("product_id", id).Str("error", res.Error).Msg("cart mirror rejected mutation")
	}
	return out
}
