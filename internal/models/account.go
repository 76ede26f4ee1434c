package models

import "time"

// Account is a bank account whose balance is updated from parsed statements.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BankName  string    `json:"bankName"`
	Balance   Money     `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}
