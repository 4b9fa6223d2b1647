// Package views holds the JSON shapes shared by the gRPC services.
package views

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oggyb/swap-market/internal/domain"
)

type Listing struct {
	ID                    string              `json:"id"`
	Title                 string              `json:"title"`
	Description           string              `json:"description,omitempty"`
	Category              string              `json:"category"`
	Condition             string              `json:"condition"`
	Price                 *decimal.Decimal    `json:"price,omitempty"`
	Location              string              `json:"location,omitempty"`
	Coordinates           *domain.Coordinates `json:"coordinates,omitempty"`
	Images                []string            `json:"images,omitempty"`
	WantedItems           []string            `json:"wanted_items,omitempty"`
	OwnerUserID           string              `json:"owner_user_id"`
	Status                string              `json:"status"`
	Views                 int64               `json:"views"`
	Likes                 int64               `json:"likes"`
	CreatedAt             time.Time           `json:"created_at"`
	HasActiveConversation bool                `json:"has_active_conversation"`
	DistanceMiles         *float64            `json:"distance_miles,omitempty"`
}

func FromListing(l domain.Listing) Listing {
	return Listing{
		ID:                    l.ID,
		Title:                 l.Title,
		Description:           l.Description,
		Category:              l.Category,
		Condition:             l.Condition,
		Price:                 l.Price,
		Location:              l.Location,
		Coordinates:           l.Coordinates,
		Images:                l.Images,
		WantedItems:           l.WantedItems,
		OwnerUserID:           l.OwnerID,
		Status:                string(l.Status),
		Views:                 l.Views,
		Likes:                 l.Likes,
		CreatedAt:             l.CreatedAt,
		HasActiveConversation: l.HasActiveConversation(),
	}
}

type Conversation struct {
	ID          string    `json:"id"`
	ListingID   string    `json:"listing_id"`
	ItemTitle   string    `json:"item_title"`
	User1ID     string    `json:"user1_id"`
	User2ID     string    `json:"user2_id"`
	OwnerUserID string    `json:"owner_user_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func FromConversation(c domain.Conversation) Conversation {
	return Conversation{
		ID:          c.ID,
		ListingID:   c.ListingID,
		ItemTitle:   c.ItemTitle,
		User1ID:     c.User1ID,
		User2ID:     c.User2ID,
		OwnerUserID: c.OwnerID,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

type Entitlements struct {
	UserID              string `json:"user_id"`
	CoinBalance         int64  `json:"coin_balance"`
	MonthlyListingsUsed int    `json:"monthly_listings_used"`
	MonthlySwapsUsed    int    `json:"monthly_swaps_used"`
	Tier                string `json:"tier"`
}

func FromEntitlements(e domain.Entitlements) Entitlements {
	return Entitlements{
		UserID:              e.UserID,
		CoinBalance:         e.CoinBalance,
		MonthlyListingsUsed: e.MonthlyListingsUsed,
		MonthlySwapsUsed:    e.MonthlySwapsUsed,
		Tier:                string(e.Tier),
	}
}

type Rating struct {
	ID             string    `json:"id"`
	RatedUserID    string    `json:"rated_user_id"`
	RaterUserID    string    `json:"rater_user_id"`
	ConversationID string    `json:"conversation_id"`
	Score          int       `json:"score"`
	Comment        string    `json:"comment,omitempty"`
	ItemTitle      string    `json:"item_title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func FromRating(r domain.Rating) Rating {
	return Rating{
		ID:             r.ID,
		RatedUserID:    r.RatedUserID,
		RaterUserID:    r.RaterUserID,
		ConversationID: r.ConversationID,
		Score:          r.Score,
		Comment:        r.Comment,
		ItemTitle:      r.ItemTitle,
		CreatedAt:      r.CreatedAt,
	}
}
