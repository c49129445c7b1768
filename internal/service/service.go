// Package service contains typed REST operations over the authenticated API client.
package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/blindbox/internal/apiclient"
	"github.com/and161185/blindbox/internal/errs"
)

// Doer executes one API request; *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

var _ Doer = (*apiclient.Client)(nil)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}

func validateVar(name string, v any, tag string) error {
	if err := validate.Var(v, tag); err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrValidation, name, err)
	}
	return nil
}
