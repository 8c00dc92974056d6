package models

import "time"

const DefaultStoreQuota = 5

// User owns zero or more stores. Email is unique case-insensitively.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"hashed_password"`
	StoreQuota   int       `json:"store_quota" db:"store_quota"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
