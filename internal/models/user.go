package models

// User mirrors the auth-owned users table. The chat core only reads it.
type User struct {
	ID         int    `db:"id" json:"id"`
	Username   string `db:"username" json:"username"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name"`
	MiddleName string `db:"middle_name" json:"middle_name,omitempty"`
}
