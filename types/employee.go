package types

// NoBranchAssigned is reported when the server names no branch.
const NoBranchAssigned = "No Branch Assigned"

type Employee struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	Branch       string `json:"branch"`
	TicketCount  int    `json:"ticket_count"`
	ProfilePhoto string `json:"profile_photo,omitempty"`
}

func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	default:
		return e.FirstName + " " + e.LastName
	}
}

type EmployeeResponse struct {
	Envelope
	Employees     []Employee `json:"employees"`
	Branch        string     `json:"branch"`
	EmployeeCount int        `json:"employee_count"`
}

// EmployeeRoster is the cached employee payload: the branch and its staff.
type EmployeeRoster struct {
	Branch    string
	Employees []Employee
}

func (r EmployeeRoster) BranchName() string {
	if r.Branch == "" {
		return NoBranchAssigned
	}
	return r.Branch
}
