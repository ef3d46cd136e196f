package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BaasFundingRoute maps an inbound provider deposit to the card member it
// funds. Reference may be empty, which marks the route as the default for
// its (provider, account) pair.
type BaasFundingRoute struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	ProviderName      string     `json:"provider_name" db:"provider_name"`
	ProviderAccountID string     `json:"provider_account_id" db:"provider_account_id"`
	Reference         string     `json:"reference" db:"reference"`
	WalletID          uuid.UUID  `json:"wallet_id" db:"wallet_id"`
	CardID            uuid.UUID  `json:"card_id" db:"card_id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsDefault returns true if the route catches deposits with no matching reference
func (r *BaasFundingRoute) IsDefault() bool {
	return r.Reference == ""
}

// Validate validates the funding route
func (r *BaasFundingRoute) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("route ID is required")
	}

	if r.ProviderName == "" {
		return fmt.Errorf("provider name is required")
	}

	if r.ProviderAccountID == "" {
		return fmt.Errorf("provider account ID is required")
	}

	if r.WalletID == uuid.Nil {
		return fmt.Errorf("wallet ID is required")
	}

	if r.CardID == uuid.Nil {
		return fmt.Errorf("card ID is required")
	}

	if r.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}

	return nil
}
