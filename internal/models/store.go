package models

import "time"

// Store status values. Transitions: Pending -> Ready | Error,
// Ready -> Deleting, Deleting -> (row removed). Error is terminal
// for the provision path; Deleting still accepts the delete task.
const (
	StatusPending  = "Pending"
	StatusReady    = "Ready"
	StatusError    = "Error"
	StatusDeleting = "Deleting"
)

// Store is one WooCommerce storefront: a Helm release in a dedicated
// namespace. ID doubles as the namespace/release suffix (store-<id>).
type Store struct {
	ID              string     `json:"id" db:"id"`
	UserID          string     `json:"user_id" db:"user_id"`
	Name            string     `json:"name" db:"name"`
	Domain          string     `json:"domain" db:"domain"`
	Namespace       string     `json:"namespace" db:"namespace"`
	Status          string     `json:"status" db:"status"`
	HelmReleaseName string     `json:"helm_release_name" db:"helm_release_name"`
	AdminUsername   *string    `json:"admin_username,omitempty" db:"admin_username"`
	AdminPassword   *string    `json:"-" db:"admin_password"`
	ErrorMessage    *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	ReadyAt         *time.Time `json:"ready_at,omitempty" db:"ready_at"`
}

// CanonicalNamespace returns the namespace/release name derived from the store id.
func CanonicalNamespace(storeID string) string {
	return "store-" + storeID
}
