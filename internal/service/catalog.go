package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gosimple/slug"

	"github.com/and161185/blindbox/internal/apiclient"
	"github.com/and161185/blindbox/internal/errs"
	"github.com/and161185/blindbox/internal/model"
)

const blindBoxesPath = "/products/blind-boxes"

// CatalogService reads the blind box catalog.
type CatalogService interface {
	ListBlindBoxes(ctx context.Context) ([]model.Product, error)
	GetBlindBox(ctx context.Context, slug, id string) (*model.Product, error)
	// GetBlindBoxFor loads details for a list entry, deriving the slug from its name when absent.
	GetBlindBoxFor(ctx context.Context, p model.Product) (*model.Product, error)
}

type CatalogServiceImpl struct {
	api Doer
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(api Doer) *CatalogServiceImpl {
	return &CatalogServiceImpl{api: api}
}

func (s *CatalogServiceImpl) ListBlindBoxes(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	if err := s.api.Do(ctx, apiclient.NewRequest(http.MethodGet, blindBoxesPath, nil), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Product{}
	}
	return out, nil
}

func (s *CatalogServiceImpl) GetBlindBox(ctx context.Context, productSlug, id string) (*model.Product, error) {
	if err := validateVar("slug", productSlug, "required"); err != nil {
		return nil, err
	}
	if err := validateVar("id", id, "required"); err != nil {
		return nil, err
	}
	req := apiclient.NewRequest(http.MethodGet, blindBoxesPath+"/"+url.PathEscape(productSlug), nil).
		WithQuery(url.Values{"id": {id}})
	var p *model.Product
	if err := s.api.Do(ctx, req, &p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: empty product %s", errs.ErrContractViolation, id)
	}
	return p, nil
}

func (s *CatalogServiceImpl) GetBlindBoxFor(ctx context.Context, p model.Product) (*model.Product, error) {
	ps := p.Slug
	if ps == "" {
		ps = slug.Make(p.Name)
	}
	return s.GetBlindBox(ctx, ps, p.ID)
}
