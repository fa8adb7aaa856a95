package types

// Session is the persisted identity of the signed-in user.
type Session struct {
	Token  string `json:"token"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	UserID int    `json:"user_id"`
	Branch string `json:"branch"`
}

func (s Session) LoggedIn() bool {
	return s.Token != ""
}

type SessionStore interface {
	Save(session Session) error
	Load() (Session, error)
	Clear() error
	Close() error
}

type SessionStoreCreator func(config *SessionConfig) (SessionStore, error)

const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleEmployee   = "employee"
	RoleTechnician = "technician"
	RoleCustomer   = "customer"
)
