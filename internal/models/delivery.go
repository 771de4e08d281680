package models

// DeliveryStatus is the client-side projection of a visit group's state.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// GroupedDelivery is a customer visit aggregating one or more invoices that
// are signed off together. It is a read model sourced from the gateway; only
// the cache-update path after a successful acknowledgment mutates it locally.
type GroupedDelivery struct {
	VisitGroupID   string         `json:"customer_visit_group"`
	CustomerName   string         `json:"customer_name"`
	ShopAddress    string         `json:"shop_address,omitempty"`
	RouteNumber    int            `json:"route_number,omitempty"`
	RouteName      string         `json:"route_name,omitempty"`
	RouteDisplay   string         `json:"route_display,omitempty"`
	InvoiceCount   int            `json:"invoice_count"`
	TotalAmount    float64        `json:"total_amount"`
	Status         DeliveryStatus `json:"status"`
	FirstInvoiceID string         `json:"first_invoice_id,omitempty"`
	InvoiceNumbers []string       `json:"invoice_numbers"`
	SequenceOrder  int            `json:"sequence_order,omitempty"`
	Branch         string         `json:"branch,omitempty"`
}

// Matches reports whether id identifies this delivery by any of its three
// alternative keys: primary invoice id, visit-group id, or membership in the
// invoice-number list. Different screens arrive with different identifier
// types, so all three must be checked.
func (g *GroupedDelivery) Matches(id string) bool {
	if id == "" {
		return false
	}
	if g.FirstInvoiceID != "" && g.FirstInvoiceID == id {
		return true
	}
	if g.VisitGroupID == id {
		return true
	}
	for _, n := range g.InvoiceNumbers {
		if n == id {
			return true
		}
	}
	return false
}

// Acknowledged reports whether the group no longer accepts a signature.
func (g *GroupedDelivery) Acknowledged() bool {
	return g.Status == StatusDelivered
}

// Route describes a driver route as returned by the gateway.
type Route struct {
	RouteNumber  int    `json:"route_number"`
	RouteName    string `json:"route_name,omitempty"`
	RouteDisplay string `json:"route_display"`
	InvoiceCount int    `json:"invoice_count"`
	DriverName   string `json:"driver_name"`
	CreatedDate  string `json:"created_date"`
}

// Invoice is the detail record for a single invoice.
type Invoice struct {
	ID                 string  `json:"id"`
	InvoiceNumber      string  `json:"invoice_number"`
	CustomerName       string  `json:"customer_name"`
	CustomerAddress    string  `json:"customer_address"`
	CustomerPhone      string  `json:"customer_phone,omitempty"`
	TotalAmount        float64 `json:"total_amount"`
	DeliveryDate       string  `json:"delivery_date,omitempty"`
	Status             string  `json:"status"`
	Items              string  `json:"items,omitempty"`
	SignatureTimestamp string  `json:"signature_timestamp,omitempty"`
	DeliveryNotes      string  `json:"delivery_notes,omitempty"`
	DriverID           int     `json:"driver_id,omitempty"`
}
