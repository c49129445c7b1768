// Package cartstore holds the process-wide cart state. Every mutation goes
// through the server; the store only records what the server returns.
package cartstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
	"github.com/and161185/blindbox/internal/repository"
	"github.com/and161185/blindbox/internal/service"
)

// State is what observers see. Cart is nil until the first successful fetch
// and again after ClearCart.
type State struct {
	Cart      *model.Cart
	IsLoading bool
	Err       string
}

// Store is an injected state container for the cart.
type Store struct {
	api   service.CartService
	snaps repository.SnapshotRepository
	log   *zap.Logger
	now   func() time.Time

	mu       sync.Mutex
	state    State
	inflight int
	subs     map[int]func(State)
	nextSub  int

	persistMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for transitions and persistence failures.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New constructs a Store in the initial state. snaps may be nil to disable persistence.
func New(api service.CartService, snaps repository.SnapshotRepository, opts ...Option) *Store {
	s := &Store{
		api:   api,
		snaps: snaps,
		log:   zap.NewNop(),
		now:   time.Now,
		subs:  map[int]func(State){},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Subscribe registers fn for every transition. The returned func unsubscribes
// and is safe to call more than once.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// FetchCartItems loads the cart from the server.
func (s *Store) FetchCartItems(ctx context.Context) error {
	s.begin(ctx)
	c, err := s.api.Get(ctx)
	if err != nil {
		return s.fail(ctx, "fetch", err)
	}
	s.succeed(ctx, "fetch", c)
	return nil
}

// AddToCart adds quantity of productID and stores the server's cart.
func (s *Store) AddToCart(ctx context.Context, productID string, quantity int) error {
	s.begin(ctx)
	c, err := s.api.Add(ctx, productID, quantity)
	if err != nil {
		return s.fail(ctx, "add", err)
	}
	s.succeed(ctx, "add", c)
	return nil
}

// UpdateQuantity sets the quantity of productID. An empty server payload is a
// failure and leaves the cart as it was.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	s.begin(ctx)
	c, err := s.api.Update(ctx, productID, quantity)
	if err == nil && c == nil {
		err = fmt.Errorf("%w: update of %s returned no cart", errs.ErrContractViolation, productID)
	}
	if err != nil {
		return s.fail(ctx, "update", err)
	}
	s.succeed(ctx, "update", c)
	return nil
}

// RemoveFromCart removes the line for productID.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) error {
	s.begin(ctx)
	c, err := s.api.Remove(ctx, productID)
	if err != nil {
		return s.fail(ctx, "remove", err)
	}
	s.succeed(ctx, "remove", c)
	return nil
}

// ClearCart empties the cart on the server. On success Cart becomes nil
// whatever the server returned.
func (s *Store) ClearCart(ctx context.Context) error {
	s.begin(ctx)
	if _, err := s.api.ClearAll(ctx); err != nil {
		return s.fail(ctx, "clear", err)
	}
	s.succeed(ctx, "clear", nil)
	return nil
}

// Restore loads the last persisted cart for offline resume. A missing
// snapshot leaves the state untouched.
func (s *Store) Restore(ctx context.Context) error {
	if s.snaps == nil {
		return nil
	}
	snap, err := s.snaps.LoadCart(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cart snapshot: %w", err)
	}
	if snap.Version != model.CartSnapshotVersion {
		s.log.Warn("ignoring cart snapshot", zap.Int("version", snap.Version))
		return nil
	}
	s.mu.Lock()
	s.state.Cart = snap.Cart.Clone()
	st := s.copyLocked()
	s.mu.Unlock()
	s.notify(st)
	return nil
}

// Reset returns to the initial state and deletes the persisted snapshot.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.state = State{IsLoading: s.inflight > 0}
	st := s.copyLocked()
	s.mu.Unlock()
	s.notify(st)
	if s.snaps == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.snaps.DeleteCart(ctx); err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}

func (s *Store) begin(ctx context.Context) {
	s.mu.Lock()
	s.inflight++
	s.state.IsLoading = true
	s.state.Err = ""
	st := s.copyLocked()
	s.mu.Unlock()
	s.publish(ctx, st)
}

func (s *Store) succeed(ctx context.Context, op string, c *model.Cart) {
	s.mu.Lock()
	s.inflight--
	s.state.IsLoading = s.inflight > 0
	s.state.Cart = c.Clone()
	st := s.copyLocked()
	s.mu.Unlock()
	s.log.Debug("cart updated", zap.String("op", op), zap.Int("items", c.ItemCount()))
	s.publish(ctx, st)
}

// fail records err's display message, keeps the cart, and returns err.
func (s *Store) fail(ctx context.Context, op string, err error) error {
	s.mu.Lock()
	s.inflight--
	s.state.IsLoading = s.inflight > 0
	s.state.Err = errs.Message(err)
	st := s.copyLocked()
	s.mu.Unlock()
	s.log.Info("cart operation failed", zap.String("op", op), zap.Error(err))
	s.publish(ctx, st)
	return err
}

func (s *Store) publish(ctx context.Context, st State) {
	s.persist(ctx)
	s.notify(st)
}

// persist writes the latest state, not the transition's, so concurrent
// operations cannot leave an older cart on disk.
func (s *Store) persist(ctx context.Context) {
	if s.snaps == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	c := s.state.Cart.Clone()
	s.mu.Unlock()

	snap := model.CartSnapshot{Version: model.CartSnapshotVersion, SavedAt: s.now().UTC(), Cart: c}
	if err := s.snaps.SaveCart(context.WithoutCancel(ctx), snap); err != nil {
		s.log.Warn("save cart snapshot", zap.Error(err))
	}
}

func (s *Store) notify(st State) {
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		cp := st
		cp.Cart = st.Cart.Clone()
		fn(cp)
	}
}

func (s *Store) copyLocked() State {
	st := s.state
	st.Cart = s.state.Cart.Clone()
	return st
}
