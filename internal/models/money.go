package models

import (
	"fmt"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money is an amount in one of the supported currencies. It is a value type:
// every operation returns a new Money.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// NewMoney builds a Money, rejecting currencies outside the supported set.
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, fmt.Errorf("unsupported currency %q", currency)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// NewMoneyFromString parses amount as a plain decimal string.
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string '%s': %w", amount, err)
	}
	return NewMoney(dec, currency)
}

// ZeroMoney returns zero in currency.
func ZeroMoney(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// MinorUnits returns the amount in minor units, rounded half away from zero.
func (m Money) MinorUnits() int64 {
	return m.Amount.Shift(int32(m.Currency.Fraction())).Round(0).IntPart()
}

// Add returns m + other. Mixing currencies is an error: conversion is not supported.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s and %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Equal compares amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// String formats m with the currency's symbol and separators, e.g. "₹97,650.00".
func (m Money) String() string {
	if !m.Currency.Valid() {
		return m.Amount.StringFixed(2)
	}
	return gomoney.New(m.MinorUnits(), string(m.Currency)).Display()
}
