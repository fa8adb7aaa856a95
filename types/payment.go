package types

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentGPay         PaymentMethod = "gpay"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentOnline       PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCreditCard, PaymentGPay, PaymentBankTransfer, PaymentOnline:
		return true
	}
	return false
}

type Payment struct {
	ID             int           `json:"id"`
	TicketID       string        `json:"ticket_id"`
	CustomerName   string        `json:"customer_name,omitempty"`
	TechnicianName string        `json:"technician_name,omitempty"`
	ServiceName    string        `json:"service_name,omitempty"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	Amount         float64       `json:"amount"`
	Status         string        `json:"status"`
	Notes          string        `json:"notes,omitempty"`
	CollectedAt    string        `json:"collected_at,omitempty"`
	SubmittedAt    string        `json:"submitted_at,omitempty"`
	CompletedAt    string        `json:"completed_at,omitempty"`
	ConfirmedAt    string        `json:"confirmed_at,omitempty"`
	CreatedAt      string        `json:"created_at,omitempty"`
}

type PaymentHistoryResponse struct {
	Envelope
	Payments []Payment `json:"payments"`
}

type PaymentDetailResponse struct {
	Envelope
	Payment *Payment `json:"payment"`
}

type CompleteWorkRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash credit_card gpay bank_transfer online"`
	Amount        float64       `json:"amount" validate:"gt=0"`
	Notes         string        `json:"notes,omitempty"`
}

type CompleteWorkResponse struct {
	Envelope
	Ticket  *TicketStatus `json:"ticket"`
	Payment *Payment      `json:"payment"`
}

type PaymentConfirmationRequest struct {
	TicketID      string        `json:"ticket_id" validate:"required"`
	CustomerID    int           `json:"customer_id" validate:"required,min=1"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash credit_card gpay bank_transfer online"`
	Amount        float64       `json:"amount" validate:"gt=0"`
}

type PaymentConfirmationResponse struct {
	Envelope
	Payment      *Payment `json:"payment"`
	TicketStatus string   `json:"ticket_status"`
}

type PaymentRequest struct {
	TicketID     string `json:"ticket_id" validate:"required"`
	TechnicianID int    `json:"technician_id" validate:"required,min=1"`
}

type PaymentRequestResponse struct {
	Envelope
	TicketStatus string `json:"ticket_status"`
	TicketID     string `json:"ticket_id"`
}
