package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account carries the quota-relevant state of a user.
// Debits only go through AccountRepository so the balance never goes negative.
type Account struct {
	UserID              string    `gorm:"primaryKey;size:64"`
	DisplayName         string    `gorm:"size:128"`
	Tier                string    `gorm:"size:16;not null;default:free"`
	CoinBalance         int64     `gorm:"not null;default:0"`
	MonthlyListingsUsed int       `gorm:"not null;default:0"`
	MonthlySwapsUsed    int       `gorm:"not null;default:0"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

// CoinTransaction is one ledger row. Amount is negative for debits.
type CoinTransaction struct {
	ID           string    `gorm:"primaryKey;size:36"`
	UserID       string    `gorm:"size:64;not null;index:idx_coin_tx_user_created,priority:1"`
	Kind         string    `gorm:"size:16;not null"`
	Action       string    `gorm:"size:16"`
	Amount       int64     `gorm:"not null"`
	BalanceAfter int64     `gorm:"not null"`
	Reason       string    `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index:idx_coin_tx_user_created,priority:2"`
}

// Listing table.
//
// Indexes:
//   - idx_listing_status_category(status, category): catalog refresh and category browsing.
//   - idx_listing_owner(owner_id): "my listings".
type Listing struct {
	ID          string              `gorm:"primaryKey;size:36"`
	OwnerID     string              `gorm:"size:64;not null;index:idx_listing_owner"`
	Title       string              `gorm:"size:255;not null"`
	Description string              `gorm:"type:text"`
	Category    string              `gorm:"size:64;index:idx_listing_status_category,priority:2"`
	Condition   string              `gorm:"size:32"`
	Price       decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	Location    string              `gorm:"size:255"`
	Latitude    *float64
	Longitude   *float64
	Images      []string  `gorm:"serializer:json;type:text"`
	WantedItems []string  `gorm:"serializer:json;type:text"`
	Status      string    `gorm:"size:16;not null;index:idx_listing_status_category,priority:1"`
	Views       int64     `gorm:"not null;default:0"`
	Likes       int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Conversation table.
//
// ActiveKey holds "<listing>:<user1>:<user2>" while the conversation is not rejected
// and NULL afterwards. The unique index therefore allows at most one non-rejected
// conversation per listing and user pair, while rejected rows pile up as history.
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ListingID string    `gorm:"size:36;not null;index:idx_conversation_listing_status,priority:1"`
	ItemTitle string    `gorm:"size:255"`
	User1ID   string    `gorm:"size:64;not null;index:idx_conversation_user1"`
	User2ID   string    `gorm:"size:64;not null;index:idx_conversation_user2"`
	OwnerID   string    `gorm:"size:64;not null"`
	Status    string    `gorm:"size:16;not null;index:idx_conversation_listing_status,priority:2"`
	ActiveKey *string   `gorm:"size:200;uniqueIndex:ux_conversation_active_key"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Rating table. One rating per rater per conversation.
type Rating struct {
	ID             string    `gorm:"primaryKey;size:36"`
	RatedUserID    string    `gorm:"size:64;not null;index:idx_rating_rated"`
	RaterUserID    string    `gorm:"size:64;not null;uniqueIndex:ux_rating_conversation_rater,priority:2"`
	ConversationID string    `gorm:"size:36;not null;uniqueIndex:ux_rating_conversation_rater,priority:1"`
	Score          int       `gorm:"not null"`
	Comment        string    `gorm:"type:text"`
	ItemTitle      string    `gorm:"size:255"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}
