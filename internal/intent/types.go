// Package intent turns raw message text into a typed intent through an
// ordered chain of deterministic pattern rules. It performs no I/O.
package intent

// Kind enumerates the intents the dialogue engine understands.
type Kind string

const (
	Greeting        Kind = "greeting"
	Help            Kind = "help"
	ListProducts    Kind = "list_products"
	CreateOrder     Kind = "create_order"
	TrackOrder      Kind = "track_order"
	GenerateQuote   Kind = "generate_quote"
	GenerateInvoice Kind = "generate_invoice"
	Acknowledge     Kind = "acknowledge"
	Goodbye         Kind = "goodbye"
	Unknown         Kind = "unknown"
)

// CreateOrderPayload carries order fields extracted from the message.
type CreateOrderPayload struct {
	Product  string
	Quantity int
}

// TrackOrderPayload carries the order id extracted from the message, if any.
type TrackOrderPayload struct {
	OrderID int
}

// Result is the classification outcome. Confidence is a fixed per-rule score
// in [0,1], not a learned value.
type Result struct {
	Kind        Kind
	Confidence  float64
	CreateOrder *CreateOrderPayload
	TrackOrder  *TrackOrderPayload
}
