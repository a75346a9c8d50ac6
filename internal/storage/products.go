// Package storage holds the pieces shared by the relational order stores.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/TemirB/order-service/internal/domain"
)

// MarshalProducts encodes line items for the products column. A nil slice
// is stored as an empty array.
func MarshalProducts(items []domain.ProductItem) (string, error) {
	if items == nil {
		items = []domain.ProductItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal products: %w", err)
	}
	return string(b), nil
}

func UnmarshalProducts(raw []byte) ([]domain.ProductItem, error) {
	items := []domain.ProductItem{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal products: %w", err)
	}
	if items == nil {
		items = []domain.ProductItem{}
	}
	return items, nil
}

// Assignment is one "column = value" pair of an UPDATE statement.
type Assignment struct {
	Column string
	Value  any
}

// PatchAssignments lists the columns a patch touches, in a fixed order.
func PatchAssignments(patch domain.OrderPatch) ([]Assignment, error) {
	var out []Assignment
	if patch.Products != nil {
		products, err := MarshalProducts(*patch.Products)
		if err != nil {
			return nil, err
		}
		out = append(out, Assignment{Column: "products", Value: products})
	}
	if patch.TotalAmount != nil {
		out = append(out, Assignment{Column: "total_amount", Value: *patch.TotalAmount})
	}
	return out, nil
}
