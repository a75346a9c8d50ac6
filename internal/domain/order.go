package domain

// ProductItem is one line of an order. Price is in minor currency units.
type ProductItem struct {
	ProductID int64   `json:"productId"`
	Quantity  float64 `json:"quantity"`
	Price     int64   `json:"price"`
}

// Order is the persistent root entity. ID is assigned by the store on save
// and never changes afterwards.
//
// IdempotencyKey is never serialized. When set, saving twice with the same
// key stores one row and returns it both times.
type Order struct {
	ID             int64         `json:"id"`
	Products       []ProductItem `json:"products"`
	TotalAmount    int64         `json:"totalAmount"`
	IdempotencyKey string        `json:"-"`
}

// OrderPatch carries the fields of a partial update. A nil field is left
// untouched by the store.
type OrderPatch struct {
	Products    *[]ProductItem `json:"products,omitempty"`
	TotalAmount *int64         `json:"totalAmount,omitempty"`
}

func (p OrderPatch) IsEmpty() bool {
	return p.Products == nil && p.TotalAmount == nil
}

// Apply returns a copy of o with the patch fields replaced.
func (p OrderPatch) Apply(o Order) Order {
	if p.Products != nil {
		o.Products = append([]ProductItem(nil), (*p.Products)...)
	}
	if p.TotalAmount != nil {
		o.TotalAmount = *p.TotalAmount
	}
	return o
}
