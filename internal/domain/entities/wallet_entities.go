package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SplitPolicy decides how a clearing is attributed across member equity
type SplitPolicy string

const (
	// SplitPolicyPayerOnly charges the full amount to the cardholder.
	SplitPolicyPayerOnly SplitPolicy = "PAYER_ONLY"

	// SplitPolicyEqualSplit divides the amount across all members;
	// the remainder of integer division goes to the earliest-joined
	// members, one minor unit each.
	SplitPolicyEqualSplit SplitPolicy = "EQUAL_SPLIT"
)

// Validate checks if the split policy is valid
func (p SplitPolicy) Validate() error {
	switch p {
	case SplitPolicyPayerOnly, SplitPolicyEqualSplit:
		return nil
	default:
		return fmt.Errorf("invalid split policy: %s", p)
	}
}

// WalletRole represents a member's role within a wallet
type WalletRole string

const (
	WalletRoleAdmin  WalletRole = "ADMIN"
	WalletRoleMember WalletRole = "MEMBER"
)

// Validate checks if the wallet role is valid
func (r WalletRole) Validate() error {
	switch r {
	case WalletRoleAdmin, WalletRoleMember:
		return nil
	default:
		return fmt.Errorf("invalid wallet role: %s", r)
	}
}

// Wallet is a group of members sharing one or more prepaid cards
type Wallet struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	AdminUserID uuid.UUID   `json:"admin_user_id" db:"admin_user_id"`
	SplitPolicy SplitPolicy `json:"split_policy" db:"split_policy"`
	Currency    string      `json:"currency" db:"currency"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// Validate validates the wallet
func (w *Wallet) Validate() error {
	if w.ID == uuid.Nil {
		return fmt.Errorf("wallet ID is required")
	}

	if w.Name == "" {
		return fmt.Errorf("wallet name is required")
	}

	if w.AdminUserID == uuid.Nil {
		return fmt.Errorf("admin user ID is required")
	}

	return w.SplitPolicy.Validate()
}

// SplitShare is one member's portion of a clearing amount
type SplitShare struct {
	UserID      uuid.UUID `json:"user_id"`
	AmountMinor int64     `json:"amount_minor"`
}

// WalletMember is one user's membership in a wallet
type WalletMember struct {
	WalletID uuid.UUID  `json:"wallet_id" db:"wallet_id"`
	UserID   uuid.UUID  `json:"user_id" db:"user_id"`
	Role     WalletRole `json:"role" db:"role"`
	JoinedAt time.Time  `json:"joined_at" db:"joined_at"`
}

// Validate validates the membership
func (m *WalletMember) Validate() error {
	if m.WalletID == uuid.Nil {
		return fmt.Errorf("wallet ID is required")
	}

	if m.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}

	return m.Role.Validate()
}
