// Package model defines domain entities shared by the client, store and repositories.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tokens is the persisted credential pair. Both tokens are stored and cleared together.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"` // access token expiry (for diagnostics)
}

// Empty reports whether no credential is stored.
func (t Tokens) Empty() bool { return t.AccessToken == "" && t.RefreshToken == "" }

// HasRefresh reports whether a refresh token is available.
func (t Tokens) HasRefresh() bool { return t.RefreshToken != "" }

// Product is a blind box as served by the catalog.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug,omitempty"`
	Brand       string          `json:"brand"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Stock       int             `json:"stock"`
	Description string          `json:"description,omitempty"`
}

// CartItem is a cart line. TotalPrice is computed by the server.
type CartItem struct {
	Product      Product         `json:"product"`
	CartQuantity int             `json:"cartQuantity"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
}

// Cart is the server-authoritative cart. Item order is server-assigned.
type Cart struct {
	ID         string          `json:"id,omitempty"`
	Items      []CartItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// ItemCount returns the sum of line quantities.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.CartQuantity
	}
	return n
}

// DisplayTotal sums server-computed line totals for display only.
func (c *Cart) DisplayTotal() decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}

// Clone returns a deep copy so observers never share item slices with the store.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Items != nil {
		cp.Items = make([]CartItem, len(c.Items))
		copy(cp.Items, c.Items)
	}
	return &cp
}

// CartSnapshotVersion is the current on-disk snapshot format.
const CartSnapshotVersion = 1

// CartSnapshot is the persisted form of the cart for offline resume.
type CartSnapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	Cart    *Cart     `json:"cart"`
}

// User is the account profile returned by /accounts/me.
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
}

// ProfilePatch carries only the fields being changed.
type ProfilePatch struct {
	Name   *string `json:"name,omitempty"   validate:"omitempty,min=1,max=100"`
	Phone  *string `json:"phone,omitempty"  validate:"omitempty,max=32"`
	Avatar *string `json:"avatar,omitempty" validate:"omitempty,url"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool { return p.Name == nil && p.Phone == nil && p.Avatar == nil }

// Session is the result of the startup authentication check.
type Session struct {
	LoggedIn  bool      `json:"loggedIn"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Expired   bool      `json:"expired"`
}
