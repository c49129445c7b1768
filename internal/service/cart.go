package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/and161185/blindbox/internal/apiclient"
	"github.com/and161185/blindbox/internal/model"
)

// CartService maps the cart endpoints. A nil cart with a nil error means the
// server answered with an empty body; callers decide what that means.
type CartService interface {
	Get(ctx context.Context) (*model.Cart, error)
	Add(ctx context.Context, productID string, quantity int) (*model.Cart, error)
	Update(ctx context.Context, productID string, quantity int) (*model.Cart, error)
	Remove(ctx context.Context, productID string) (*model.Cart, error)
	ClearAll(ctx context.Context) (*model.Cart, error)
}

type CartServiceImpl struct {
	api Doer
}

// NewCartService constructs CartService.
func NewCartService(api Doer) *CartServiceImpl {
	return &CartServiceImpl{api: api}
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"  validate:"gte=1"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}

func (s *CartServiceImpl) Get(ctx context.Context) (*model.Cart, error) {
	return s.call(ctx, apiclient.NewRequest(http.MethodGet, "/cart", nil))
}

func (s *CartServiceImpl) Add(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	in := addItemRequest{ProductID: productID, Quantity: quantity}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	return s.call(ctx, apiclient.NewRequest(http.MethodPost, "/cart", in))
}

func (s *CartServiceImpl) Update(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	if err := validateVar("productId", productID, "required"); err != nil {
		return nil, err
	}
	in := setQuantityRequest{Quantity: quantity}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	return s.call(ctx, apiclient.NewRequest(http.MethodPut, itemPath(productID), in))
}

func (s *CartServiceImpl) Remove(ctx context.Context, productID string) (*model.Cart, error) {
	if err := validateVar("productId", productID, "required"); err != nil {
		return nil, err
	}
	return s.call(ctx, apiclient.NewRequest(http.MethodDelete, itemPath(productID), nil))
}

func (s *CartServiceImpl) ClearAll(ctx context.Context) (*model.Cart, error) {
	return s.call(ctx, apiclient.NewRequest(http.MethodPost, "/cart/clear-all", nil))
}

func (s *CartServiceImpl) call(ctx context.Context, req apiclient.Request) (*model.Cart, error) {
	var c *model.Cart
	if err := s.api.Do(ctx, req, &c); err != nil {
		return nil, err
	}
	return c, nil
}

func itemPath(productID string) string { return "/cart/" + url.PathEscape(productID) }
