package types

type Ticket struct {
	ID                 int     `json:"id"`
	TicketID           string  `json:"ticket_id"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	ServiceType        string  `json:"service_type"`
	UnitType           string  `json:"unit_type,omitempty"`
	Address            string  `json:"address"`
	Contact            string  `json:"contact"`
	Status             string  `json:"status"`
	StatusDetail       string  `json:"status_detail,omitempty"`
	StatusColor        string  `json:"status_color,omitempty"`
	CustomerName       string  `json:"customer_name,omitempty"`
	AssignedStaff      string  `json:"assigned_staff,omitempty"`
	AssignedStaffPhone string  `json:"assigned_staff_phone,omitempty"`
	Branch             string  `json:"branch,omitempty"`
	ImagePath          string  `json:"image_path,omitempty"`
	CreatedAt          string  `json:"created_at,omitempty"`
	UpdatedAt          string  `json:"updated_at,omitempty"`
	ScheduledDate      string  `json:"scheduled_date,omitempty"`
	ScheduledTime      string  `json:"scheduled_time,omitempty"`
	ScheduleNotes      string  `json:"schedule_notes,omitempty"`
	Latitude           float64 `json:"latitude,omitempty"`
	Longitude          float64 `json:"longitude,omitempty"`
	Amount             float64 `json:"amount,omitempty"`
}

type TicketListResponse struct {
	Envelope
	Tickets []Ticket `json:"tickets"`
}

type TicketDetailResponse struct {
	Envelope
	Ticket *Ticket `json:"ticket"`
}

type CreateTicketRequest struct {
	Title         string  `json:"title,omitempty"`
	Description   string  `json:"description" validate:"required"`
	ServiceType   string  `json:"service_type" validate:"required"`
	UnitType      string  `json:"unit_type,omitempty"`
	Address       string  `json:"address" validate:"required"`
	Contact       string  `json:"contact" validate:"required"`
	PreferredDate string  `json:"preferred_date,omitempty"`
	Latitude      float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude     float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Amount        float64 `json:"amount,omitempty" validate:"min=0"`
}

type CreateTicketResponse struct {
	Envelope
	TicketID string  `json:"ticket_id"`
	Status   string  `json:"status"`
	Ticket   *Ticket `json:"ticket"`
}

type UpdateTicketStatusRequest struct {
	Status          string `json:"status" validate:"required"`
	StatusDetail    string `json:"status_detail,omitempty"`
	AssignedStaffID int    `json:"assigned_staff_id,omitempty" validate:"min=0"`
}

type UpdateTicketStatusResponse struct {
	Envelope
	Ticket *struct {
		ID              int    `json:"id"`
		TicketID        string `json:"ticket_id"`
		Status          string `json:"status"`
		AssignedStaffID int    `json:"assigned_staff_id"`
	} `json:"ticket"`
}

// TicketStatusResponse answers accept and reject.
type TicketStatusResponse struct {
	Envelope
	Ticket *TicketStatus `json:"ticket"`
}

type TicketStatus struct {
	TicketID      string `json:"ticket_id"`
	Status        string `json:"status"`
	StatusColor   string `json:"status_color"`
	AssignedStaff string `json:"assigned_staff"`
}

type SetScheduleRequest struct {
	ScheduledDate   string `json:"scheduled_date" validate:"required"`
	ScheduledTime   string `json:"scheduled_time" validate:"required"`
	ScheduleNotes   string `json:"schedule_notes,omitempty"`
	AssignedStaffID int    `json:"assigned_staff_id" validate:"required,min=1"`
}

type SetScheduleResponse struct {
	Envelope
	Ticket *struct {
		TicketID      string `json:"ticket_id"`
		ScheduledDate string `json:"scheduled_date"`
		ScheduledTime string `json:"scheduled_time"`
		ScheduleNotes string `json:"schedule_notes"`
		AssignedStaff string `json:"assigned_staff"`
	} `json:"ticket"`
}
