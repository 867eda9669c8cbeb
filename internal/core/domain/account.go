package domain

import "time"

// SignupForm is the team registration payload. Its content is owned by the
// signup workflow and stored as-is.
type SignupForm map[string]any

// Account mirrors the persisted representation of a registered team account.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Confirmed    bool
	Form         SignupForm
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountUpdate captures the mutable fields of an account. Nil fields are left untouched.
type AccountUpdate struct {
	PasswordHash *string
	Confirmed    *bool
	Form         SignupForm
}

// AccountView is the outward representation of an account. It never carries the password hash.
type AccountView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Confirmed bool       `json:"confirmed"`
	Form      SignupForm `json:"form"`
}

// View strips secrets from the account.
func (a Account) View() AccountView {
	form := a.Form
	if form == nil {
		form = EmptySignupForm()
	}
	return AccountView{
		ID:        a.ID,
		Email:     a.Email,
		Confirmed: a.Confirmed,
		Form:      form,
	}
}

// EmptySignupForm returns the form every new account starts with.
func EmptySignupForm() SignupForm {
	return SignupForm{
		"teamName":        "",
		"teamDescription": "",
		"memberInfo":      []any{},
	}
}

// PasswordContext carries account attributes a password must not resemble.
type PasswordContext struct {
	Email string
}
