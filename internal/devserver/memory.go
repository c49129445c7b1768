package devserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/and161185/blindbox/internal/crypto"
	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
)

var (
	errBadCredentials = errors.New("invalid email or password")
	errNotInCart      = errors.New("item not in cart")
)

// stockError reports a quantity above the available stock.
type stockError struct{ left int }

func (e stockError) Error() string { return fmt.Sprintf("only %d left in stock", e.left) }

type account struct {
	user     model.User
	password crypto.PasswordHash
}

type cartLine struct {
	productID string
	qty       int
}

type refreshEntry struct {
	userID  uuid.UUID
	expires time.Time
}

// memory is the whole server state behind one mutex.
type memory struct {
	mu       sync.Mutex
	byEmail  map[string]*account
	byID     map[uuid.UUID]*account
	products []model.Product
	carts    map[uuid.UUID][]cartLine
	refresh  map[string]refreshEntry
}

func newMemory() *memory {
	return &memory{
		byEmail:  map[string]*account{},
		byID:     map[uuid.UUID]*account{},
		products: seedProducts(),
		carts:    map[uuid.UUID][]cartLine{},
		refresh:  map[string]refreshEntry{},
	}
}

func (m *memory) addAccount(email, password, name string) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	ph, err := crypto.HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}
	a := &account{
		user:     model.User{ID: id.String(), Email: strings.ToLower(email), Name: name, Role: "customer"},
		password: ph,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail[a.user.Email] = a
	m.byID[id] = a
	return id, nil
}

func (m *memory) authenticate(email, password string) (uuid.UUID, error) {
	m.mu.Lock()
	a, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	m.mu.Unlock()
	// hide whether the account exists
	if !ok || !a.password.Verify(password) {
		return uuid.Nil, errBadCredentials
	}
	return uuid.FromStringOrNil(a.user.ID), nil
}

func (m *memory) user(id uuid.UUID) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	return a.user, nil
}

func (m *memory) patchUser(id uuid.UUID, p model.ProfilePatch) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	if p.Name != nil {
		a.user.Name = *p.Name
	}
	if p.Phone != nil {
		a.user.Phone = *p.Phone
	}
	if p.Avatar != nil {
		a.user.Avatar = *p.Avatar
	}
	return a.user, nil
}

func (m *memory) putRefresh(tok string, id uuid.UUID, exp time.Time) {
	m.mu.Lock()
	m.refresh[tok] = refreshEntry{userID: id, expires: exp}
	m.mu.Unlock()
}

func (m *memory) lookupRefresh(tok string, now time.Time) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.refresh[tok]
	if !ok {
		return uuid.Nil, false
	}
	if !now.Before(e.expires) {
		delete(m.refresh, tok)
		return uuid.Nil, false
	}
	return e.userID, true
}

func (m *memory) dropRefresh(tok string) {
	m.mu.Lock()
	delete(m.refresh, tok)
	m.mu.Unlock()
}

func (m *memory) listProducts() []model.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Product(nil), m.products...)
}

func (m *memory) productLocked(id string) (model.Product, bool) {
	for _, p := range m.products {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}

func (m *memory) product(productSlug, id string) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.productLocked(id)
	if !ok || p.Slug != productSlug {
		return model.Product{}, errs.ErrNotFound
	}
	return p, nil
}

func (m *memory) cart(uid uuid.UUID) model.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renderLocked(uid)
}

// addToCart merges qty into an existing line.
func (m *memory) addToCart(uid uuid.UUID, productID string, qty int) (model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.productLocked(productID)
	if !ok {
		return model.Cart{}, errs.ErrNotFound
	}
	lines := m.carts[uid]
	for i := range lines {
		if lines[i].productID == productID {
			if lines[i].qty+qty > p.Stock {
				return model.Cart{}, stockError{left: p.Stock}
			}
			lines[i].qty += qty
			return m.renderLocked(uid), nil
		}
	}
	if qty > p.Stock {
		return model.Cart{}, stockError{left: p.Stock}
	}
	m.carts[uid] = append(lines, cartLine{productID: productID, qty: qty})
	return m.renderLocked(uid), nil
}

func (m *memory) setQuantity(uid uuid.UUID, productID string, qty int) (model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[uid]
	for i := range lines {
		if lines[i].productID != productID {
			continue
		}
		p, _ := m.productLocked(productID)
		if qty > p.Stock {
			return model.Cart{}, stockError{left: p.Stock}
		}
		lines[i].qty = qty
		return m.renderLocked(uid), nil
	}
	return model.Cart{}, errNotInCart
}

func (m *memory) removeFromCart(uid uuid.UUID, productID string) (model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[uid]
	for i := range lines {
		if lines[i].productID == productID {
			m.carts[uid] = append(lines[:i:i], lines[i+1:]...)
			return m.renderLocked(uid), nil
		}
	}
	return model.Cart{}, errNotInCart
}

func (m *memory) clearCart(uid uuid.UUID) {
	m.mu.Lock()
	delete(m.carts, uid)
	m.mu.Unlock()
}

// renderLocked prices every line; totals are computed only here.
func (m *memory) renderLocked(uid uuid.UUID) model.Cart {
	c := model.Cart{ID: uid.String(), Items: []model.CartItem{}, TotalPrice: decimal.Zero}
	for _, l := range m.carts[uid] {
		p, ok := m.productLocked(l.productID)
		if !ok {
			continue
		}
		line := p.Price.Mul(decimal.NewFromInt(int64(l.qty)))
		c.Items = append(c.Items, model.CartItem{Product: p, CartQuantity: l.qty, TotalPrice: line})
		c.TotalPrice = c.TotalPrice.Add(line)
	}
	return c
}
