package domain

import "github.com/shopspring/decimal"

// Listing is the catalog view of an item offered for sale. The catalog itself
// lives outside this service; escrow only needs the seller, the price and
// whether the item can still be bought.
type Listing struct {
	ID              string          `json:"id"`
	Title           string          `json:"title,omitempty"`
	SellerAccountID int64           `json:"seller_account_id"`
	Price           decimal.Decimal `json:"price"`
	Available       bool            `json:"available"`
}
