package feed

import (
	"kbs-backend/internal/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	priceFree  = "FREE"
	priceTrade = "TRADE"
)

// DisplayPrice renders the price label of a listing card.
func DisplayPrice(l domain.Listing) string {
	switch l.Type {
	case domain.ListingDonation:
		return priceFree
	case domain.ListingTrade:
		return priceTrade
	}
	p := message.NewPrinter(language.AmericanEnglish)
	return p.Sprintf("$%.2f", float64(l.Amount())/100)
}

// Card is a listing as the feed renders it.
type Card struct {
	domain.Listing
	DisplayPrice string `json:"display_price"`
}

// Cards decorates listings with their display price.
func Cards(ls []domain.Listing) []Card {
	out := make([]Card, len(ls))
	for i, l := range ls {
		out[i] = Card{Listing: l, DisplayPrice: DisplayPrice(l)}
	}
	return out
}
