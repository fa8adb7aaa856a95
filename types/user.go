package types

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	ProfilePhoto string `json:"profile_photo,omitempty"`
	Location     string `json:"location,omitempty"`
	Branch       string `json:"branch,omitempty"`
}

// DisplayName prefers the server supplied name over first and last.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

type UserResponse struct {
	Envelope
	Data *User `json:"data"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthData struct {
	Token                string `json:"token"`
	User                 *User  `json:"user"`
	RequiresVerification bool   `json:"requires_verification,omitempty"`
}

type LoginResponse struct {
	Envelope
	Data *AuthData `json:"data"`
}

type RegisterRequest struct {
	Username             string `json:"username" validate:"required"`
	FirstName            string `json:"firstName" validate:"required"`
	LastName             string `json:"lastName" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Phone                string `json:"phone,omitempty"`
	Location             string `json:"location,omitempty"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	Role                 string `json:"role,omitempty"`
	Branch               string `json:"branch,omitempty"`
}

type RegisterResponse struct {
	Envelope
	Data   *AuthData           `json:"data"`
	Errors map[string][]string `json:"errors,omitempty"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Location  string `json:"location,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword         string `json:"current_password" validate:"required"`
	NewPassword             string `json:"new_password" validate:"required,min=8,nefield=CurrentPassword"`
	NewPasswordConfirmation string `json:"new_password_confirmation" validate:"required,eqfield=NewPassword"`
}

type ChangePasswordResponse struct {
	Envelope
	Errors map[string][]string `json:"errors,omitempty"`
}

type LogoutResponse struct {
	Envelope
}
