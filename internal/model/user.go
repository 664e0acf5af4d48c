package model

import "time"

type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateUserParams struct {
	Username string
}

type UpdateUserParams struct {
	Username *string
	IsActive *bool
}
