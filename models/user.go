package models

// User is the subset of an account the messaging layer reads.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Author returns the display fields attached to messages written by u.
func (u *User) Author() Author {
	if u == nil {
		return Author{}
	}
	return Author{Name: u.Name, Image: u.Image, Role: u.Role}
}

// ErrorResponse is the JSON body of failed REST calls.
type ErrorResponse struct {
	Message string `json:"message"`
}
