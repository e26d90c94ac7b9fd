package models

import "time"

// Wallet is the cashless balance a festival-goer pays from.
type Wallet struct {
	ID         string    `json:"id"`
	FestivalID string    `json:"festival_id"`
	Balance    int64     `json:"balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}
