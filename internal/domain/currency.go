package domain

import "time"

// Currency is a tradable asset with a unique symbol.
type Currency struct {
	ID        int32     `json:"id"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
}
