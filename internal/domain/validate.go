package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrProductsRequired    = errors.New("products must be an array")
	ErrProductIDRequired   = errors.New("productId is required")
	ErrQuantityNotPositive = errors.New("quantity must be a positive number")
	ErrPriceNotPositive    = errors.New("price must be a positive integer")
	ErrNullField           = errors.New("must not be null")
)

// Validate checks the line items of an incoming order.
// The order service never calls it; input layers do.
func (o Order) Validate() error {
	if o.Products == nil {
		return ErrProductsRequired
	}
	return validateProducts(o.Products)
}

func (p OrderPatch) Validate() error {
	if p.Products == nil {
		return nil
	}
	if *p.Products == nil {
		return ErrProductsRequired
	}
	return validateProducts(*p.Products)
}

func validateProducts(items []ProductItem) error {
	var errs []error
	for i, it := range items {
		if it.ProductID == 0 {
			errs = append(errs, fmt.Errorf("products[%d]: %w", i, ErrProductIDRequired))
		}
		if it.Quantity <= 0 || math.IsNaN(it.Quantity) || math.IsInf(it.Quantity, 0) {
			errs = append(errs, fmt.Errorf("products[%d]: %w", i, ErrQuantityNotPositive))
		}
		if it.Price <= 0 {
			errs = append(errs, fmt.Errorf("products[%d]: %w", i, ErrPriceNotPositive))
		}
	}
	return errors.Join(errs...)
}

// RejectNullFields fails when a patch body sets a field to an explicit
// null. Such a field decodes to a nil pointer and would otherwise read as
// "not provided".
func RejectNullFields(body []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return err
	}

	var errs []error
	for name, raw := range fields {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrNullField))
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errors.Join(errs...)
}
