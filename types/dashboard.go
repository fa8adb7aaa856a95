package types

type DashboardStats struct {
	TotalTickets int `json:"total_tickets"`
	Pending      int `json:"pending"`
	InProgress   int `json:"in_progress"`
	Completed    int `json:"completed"`
	Cancelled    int `json:"cancelled"`
}

type RecentTicket struct {
	TicketID     string `json:"ticket_id"`
	Status       string `json:"status"`
	StatusColor  string `json:"status_color"`
	CustomerName string `json:"customer_name"`
	ServiceType  string `json:"service_type"`
	Description  string `json:"description"`
	Address      string `json:"address"`
	CreatedAt    string `json:"created_at"`
}

type DashboardStatsResponse struct {
	Envelope
	Stats         *DashboardStats `json:"stats"`
	RecentTickets []RecentTicket  `json:"recent_tickets"`
}

// Dashboard is the cached dashboard payload.
type Dashboard struct {
	Stats  DashboardStats
	Recent []RecentTicket
}
