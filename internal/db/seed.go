package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oggyb/swap-market/internal/domain"
)

type seedPlace struct {
	name     string
	lat, lon float64
}

var (
	seedCategories = []string{"Books", "Electronics", "Clothing", "Home", "Toys", "Sports"}
	seedConditions = []string{"new", "like new", "good", "fair"}
	seedPlaces     = []seedPlace{
		{"London", 51.5072, -0.1276},
		{"Camden, London", 51.5390, -0.1426},
		{"Brighton", 50.8225, -0.1372},
		{"Manchester", 53.4808, -2.2426},
	}
	seedWanted = []string{"vinyl records", "board games", "camping gear", "paperbacks", "plants"}
)

// SeedTestData resets the database and populates it with demo accounts, listings,
// conversations and ratings.
//
// Behavior:
//  1. Clears ratings, conversations, ledger, listings and accounts.
//  2. Creates 20 accounts: user1..user5 premium with 100 coins, the rest free with 20.
//  3. Creates 3 listings per account across categories, conditions and places;
//     every 7th listing has no location and every 5th is paused.
//  4. Opens ~30 conversations; every 4th is completed and rated, every 6th rejected.
//
// Seeding writes rows directly and does not touch coin balances.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := clearAll(db); err != nil {
		return err
	}
	log.Println("Cleared existing data")

	// --- Accounts ---
	for i := 1; i <= 20; i++ {
		acc := Account{
			UserID:      fmt.Sprintf("user%d", i),
			DisplayName: fmt.Sprintf("User %d", i),
			Tier:        string(domain.TierFree),
			CoinBalance: 20,
		}
		if i <= 5 {
			acc.Tier = string(domain.TierPremium)
			acc.CoinBalance = 100
		}
		if err := db.Create(&acc).Error; err != nil {
			return fmt.Errorf("failed to seed account: %w", err)
		}
	}
	log.Println("Seeded 20 accounts.")

	// --- Listings ---
	now := time.Now().UTC().Truncate(time.Millisecond)
	var listings []Listing
	n := 0
	for owner := 1; owner <= 20; owner++ {
		for j := 0; j < 3; j++ {
			n++
			category := seedCategories[r.Intn(len(seedCategories))]
			l := Listing{
				ID:          uuid.NewString(),
				OwnerID:     fmt.Sprintf("user%d", owner),
				Title:       fmt.Sprintf("%s item #%d", category, n),
				Description: "Seeded listing",
				Category:    category,
				Condition:   seedConditions[r.Intn(len(seedConditions))],
				Price:       decimal.NewNullDecimal(decimal.NewFromInt(int64(r.Intn(250)))),
				WantedItems: []string{seedWanted[r.Intn(len(seedWanted))]},
				Status:      string(domain.ListingActive),
				Views:       int64(r.Intn(300)),
				Likes:       int64(r.Intn(40)),
				CreatedAt:   now.Add(-time.Duration(n) * time.Hour),
			}
			if n%7 != 0 {
				p := seedPlaces[r.Intn(len(seedPlaces))]
				lat, lon := p.lat, p.lon
				l.Location, l.Latitude, l.Longitude = p.name, &lat, &lon
			}
			if n%5 == 0 {
				l.Status = string(domain.ListingPaused)
			}
			listings = append(listings, l)
		}
	}
	if err := db.Create(&listings).Error; err != nil {
		return fmt.Errorf("failed to seed listings: %w", err)
	}
	log.Printf("Seeded %d listings.", len(listings))

	// --- Conversations and ratings ---
	seen := make(map[string]bool)
	convs := 0
	for attempt := 0; convs < 30 && attempt < 300; attempt++ {
		l := listings[r.Intn(len(listings))]
		if l.Status != string(domain.ListingActive) {
			continue
		}
		interested := fmt.Sprintf("user%d", r.Intn(20)+1)
		if interested == l.OwnerID {
			continue
		}
		key := domain.ConversationKey(l.ID, interested, l.OwnerID)
		if seen[key] {
			continue
		}
		seen[key] = true
		convs++

		u1, u2 := domain.NormalizePair(interested, l.OwnerID)
		c := Conversation{
			ID:        uuid.NewString(),
			ListingID: l.ID,
			ItemTitle: l.Title,
			User1ID:   u1,
			User2ID:   u2,
			OwnerID:   l.OwnerID,
			Status:    string(domain.ConversationMatched),
			ActiveKey: &key,
		}
		switch {
		case convs%6 == 0:
			c.Status = string(domain.ConversationRejected)
			c.ActiveKey = nil
		case convs%4 == 0:
			c.Status = string(domain.ConversationCompleted)
		}
		if err := db.Create(&c).Error; err != nil {
			return fmt.Errorf("failed to seed conversation: %w", err)
		}

		if c.Status == string(domain.ConversationCompleted) {
			rating := Rating{
				ID:             uuid.NewString(),
				RatedUserID:    l.OwnerID,
				RaterUserID:    interested,
				ConversationID: c.ID,
				Score:          r.Intn(5) + 1,
				ItemTitle:      l.Title,
			}
			if err := db.Create(&rating).Error; err != nil {
				return fmt.Errorf("failed to seed rating: %w", err)
			}
		}
	}
	log.Printf("Seeded %d conversations.", convs)

	return nil
}

// SeedMinimalTestData inserts a small deterministic dataset:
//   - user1 (free, 10 coins), user2 (free, 10 coins), user3 (premium, 50 coins)
//   - listing "a": Books, 10.00, London, owned by user2
//   - listing "b": Books, 200.00, Manchester, owned by user3
//   - listing "c": Electronics, no price or location, owned by user3, paused
func SeedMinimalTestData(db *gorm.DB) error {
	if err := clearAll(db); err != nil {
		return err
	}

	accounts := []Account{
		{UserID: "user1", DisplayName: "user1", Tier: string(domain.TierFree), CoinBalance: 10},
		{UserID: "user2", DisplayName: "user2", Tier: string(domain.TierFree), CoinBalance: 10},
		{UserID: "user3", DisplayName: "user3", Tier: string(domain.TierPremium), CoinBalance: 50},
	}
	if err := db.Create(&accounts).Error; err != nil {
		return err
	}

	lat1, lon1 := 51.5072, -0.1276
	lat2, lon2 := 53.4808, -2.2426
	now := time.Now().UTC().Truncate(time.Millisecond)
	listings := []Listing{
		{ID: "a", OwnerID: "user2", Title: "Dune", Category: "Books", Condition: "good",
			Price: decimal.NewNullDecimal(decimal.NewFromInt(10)), Location: "London", Latitude: &lat1, Longitude: &lon1,
			Status: string(domain.ListingActive), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "b", OwnerID: "user3", Title: "Encyclopaedia set", Category: "Books", Condition: "fair",
			Price: decimal.NewNullDecimal(decimal.NewFromInt(200)), Location: "Manchester", Latitude: &lat2, Longitude: &lon2,
			Status: string(domain.ListingActive), CreatedAt: now.Add(-time.Hour)},
		{ID: "c", OwnerID: "user3", Title: "Headphones", Category: "Electronics", Condition: "new",
			Status: string(domain.ListingPaused), CreatedAt: now},
	}
	return db.Create(&listings).Error
}

func clearAll(db *gorm.DB) error {
	for _, table := range []string{"ratings", "conversations", "coin_transactions", "listings", "accounts"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
