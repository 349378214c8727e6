package model

import "time"

// Exchange is either a top-level market (ParentID == 0) or a board directly
// under one, e.g. SZSE → "A". Deeper nesting is not modelled.
type Exchange struct {
	ID       int64
	Symbol   string
	Name     string
	ParentID int64
}

// IsTopLevel reports whether the exchange has no parent.
func (e Exchange) IsTopLevel() bool { return e.ParentID == 0 }

// Product is a tradable instrument in the catalog.
type Product struct {
	ID         int64
	Symbol     string
	Name       string
	Suffix     string // provider symbol suffix, e.g. ".SZ"
	ExchangeID int64
	BoardID    int64
}

// ProviderSymbol is the symbol as the price provider expects it.
func (p Product) ProviderSymbol() string {
	return p.Symbol + p.Suffix
}

// ProductRef is a product together with the date of its latest stored bar
// in one granularity. LastDate is zero when no bars exist.
type ProductRef struct {
	Product
	LastDate time.Time
}

// HasBars reports whether any bar is stored for the product.
func (r ProductRef) HasBars() bool { return !r.LastDate.IsZero() }

// StartDate is the date history should be fetched from.
func (r ProductRef) StartDate() time.Time {
	if r.LastDate.IsZero() {
		return FirstTradeDate
	}
	return r.LastDate
}
