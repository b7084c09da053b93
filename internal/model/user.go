package model

// UserDetail is the contact information the user directory exposes for a user.
type UserDetail struct {
    Email    string `json:"email"`
    FullName string `json:"full_name"`
    Phone    string `json:"phone"`
}
