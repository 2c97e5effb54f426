/*
dto.go - Request/response data structures for the HTTP API

All amounts are integer points (minor units). Timestamps are RFC3339.
*/
package api

// =============================================================================
// REQUESTS
// =============================================================================

// OrderCompletedRequest is the inbound completion event.
// Either bonus_amount (precomputed by the order subsystem) or order_total
// (converted at the account's tier earn rate) must be set.
type OrderCompletedRequest struct {
	AccountID   string `json:"account_id"`
	OrderID     string `json:"order_id"`
	BonusAmount int64  `json:"bonus_amount,omitempty"`
	OrderTotal  int64  `json:"order_total,omitempty"`
}

// AccrueRequest credits points outside the order flow (promos, support).
type AccrueRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// SpendRequest debits points at checkout.
type SpendRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// ExpireRequest triggers an expiration sweep for one account.
type ExpireRequest struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type BalanceResponse struct {
	AccountID     string `json:"account_id"`
	Balance       int64  `json:"balance"`
	Tier          string `json:"tier"`
	LifetimeBonus int64  `json:"lifetime_bonus"`
	LifetimeSpent int64  `json:"lifetime_spent"`
	ExpiringSoon  int64  `json:"expiring_soon"`
	UpdatedAt     string `json:"updated_at"`
}

type MutationResponse struct {
	AccountID  string `json:"account_id"`
	NewBalance int64  `json:"new_balance"`
}

type ExpireResponse struct {
	AccountID     string `json:"account_id"`
	ExpiredAmount int64  `json:"expired_amount"`
	NewBalance    int64  `json:"new_balance"`
}

type EntryDTO struct {
	EntryID   string `json:"entry_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	OrderID   string `json:"order_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

type ExpirationRunDTO struct {
	ID            string `json:"id"`
	AccountID     string `json:"account_id"`
	RetentionDays int    `json:"retention_days"`
	Expired       int64  `json:"expired"`
	BalanceAfter  int64  `json:"balance_after"`
	RanAt         string `json:"ran_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
