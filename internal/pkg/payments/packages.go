package payments

import "fmt"

// TokenPackage is one purchasable bundle of fax tokens.
type TokenPackage struct {
	ID          string `json:"id"`
	Tokens      int    `json:"tokens"`
	AmountCents int64  `json:"amount_cents"`
	Popular     bool   `json:"popular,omitempty"`
	Savings     string `json:"savings,omitempty"`
}

// TokenPackages is the purchasable catalog. Prices are minor units (cents).
var TokenPackages = []TokenPackage{
	{ID: "starter", Tokens: 5, AmountCents: 300},
	{ID: "popular", Tokens: 20, AmountCents: 1000, Popular: true, Savings: "Save 17%"},
	{ID: "value", Tokens: 50, AmountCents: 2000, Savings: "Save 33%"},
	{ID: "bulk", Tokens: 100, AmountCents: 3500, Savings: "Save 42%"},
}

// FindPackage resolves a package id against the catalog.
func FindPackage(id string) (TokenPackage, error) {
	for _, p := range TokenPackages {
		if p.ID == id {
			return p, nil
		}
	}
	return TokenPackage{}, fmt.Errorf("%w: %q", ErrUnknownPackage, id)
}

// LineItemName renders the checkout line item label for a package.
func LineItemName(tokens int) string {
	if tokens == 1 {
		return "1 Fax Token"
	}
	return fmt.Sprintf("%d Fax Tokens", tokens)
}
