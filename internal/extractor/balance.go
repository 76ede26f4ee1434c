package extractor

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// balanceChain tracks the running balance. After a mismatch both the
// stated and the computed balance stay acceptable anchors for the next
// row, so one perturbed value and a real jump each warn exactly once.
type balanceChain struct {
	epsilon decimal.Decimal
	anchors []decimal.Decimal
}

func (c *balanceChain) seed(balance decimal.Decimal) {
	c.anchors = []decimal.Decimal{balance}
}

func (c *balanceChain) current() (decimal.Decimal, bool) {
	if len(c.anchors) == 0 {
		return decimal.Zero, false
	}
	return c.anchors[0], true
}

// previous is the balance before the next row, if known.
func (c *balanceChain) previous() (decimal.Decimal, bool) {
	return c.current()
}

// advance applies signed to the running balance when the row states none.
// A chain without a seed starts from zero.
func (c *balanceChain) advance(signed decimal.Decimal) decimal.Decimal {
	prev, _ := c.current()
	next := prev.Add(signed)
	c.seed(next)
	return next
}

// check validates stated against every anchor and returns a warning
// message on mismatch.
func (c *balanceChain) check(signed, stated decimal.Decimal) string {
	if len(c.anchors) == 0 {
		c.seed(stated)
		return ""
	}
	for _, anchor := range c.anchors {
		if anchor.Add(signed).Sub(stated).Abs().LessThanOrEqual(c.epsilon) {
			c.seed(stated)
			return ""
		}
	}

	expected := c.anchors[0].Add(signed)
	c.anchors = []decimal.Decimal{stated, expected}
	return fmt.Sprintf("balance mismatch: expected %s, statement shows %s",
		expected.StringFixed(2), stated.StringFixed(2))
}
