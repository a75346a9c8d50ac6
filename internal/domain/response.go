package domain

// OrderResponse is returned by every successful read or write except delete.
// Data holds an Order or a []Order; Count is set for listings only.
type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const (
	MsgOrderCreated          = "Order created successfully"
	MsgOrdersRetrieved       = "Orders retrieved successfully"
	MsgOrdersRetrievedCached = "Orders retrieved from cache successfully"
	MsgOrderRetrieved        = "Order retrieved successfully"
	MsgOrderRetrievedCached  = "Order retrieved from cache successfully"
	MsgOrderUpdated          = "Order updated successfully"
	MsgOrderDeleted          = "Order deleted successfully"
)
