package types

type ScheduledTicket struct {
	TicketID      string `json:"ticket_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
	ScheduleNotes string `json:"schedule_notes,omitempty"`
	Status        string `json:"status"`
	StatusColor   string `json:"status_color,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	Address       string `json:"address"`
	ServiceType   string `json:"service_type"`
	Branch        string `json:"branch,omitempty"`
}

type EmployeeScheduleResponse struct {
	Envelope
	Tickets []ScheduledTicket `json:"tickets"`
}
