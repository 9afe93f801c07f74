package dto

// Money amounts travel as strings and are validated by the money tag, so
// they parse into exact decimals and never pass through a float.

// OpenBudgetCardRequest is the request body for opening a budget card.
type OpenBudgetCardRequest struct {
	MonthlyLimit *string `json:"monthly_limit,omitempty" binding:"omitempty,money"`
}

// TransferRequest is the request body for a wallet-to-wallet transfer.
type TransferRequest struct {
	FromAccountID int64  `json:"from_account_id" binding:"required,gt=0"`
	ToAccountID   int64  `json:"to_account_id" binding:"required,gt=0"`
	Amount        string `json:"amount" binding:"required,money"`
	OperationID   string `json:"operation_id" binding:"required,max=100,safe_id"`
	Description   string `json:"description,omitempty" binding:"max=255"`
}

// TopupRequest is the request body for funding a wallet from outside.
type TopupRequest struct {
	AccountID   int64  `json:"account_id" binding:"required,gt=0"`
	Amount      string `json:"amount" binding:"required,money"`
	OperationID string `json:"operation_id" binding:"required,max=100,safe_id"`
}

// WithdrawRequest is the request body for moving money out of the system.
type WithdrawRequest struct {
	AccountID   int64  `json:"account_id" binding:"required,gt=0"`
	Amount      string `json:"amount" binding:"required,money"`
	OperationID string `json:"operation_id" binding:"required,max=100,safe_id"`
}

// CreateOrderRequest is the request body for starting an escrow purchase.
type CreateOrderRequest struct {
	BuyerAccountID int64  `json:"buyer_account_id" binding:"required,gt=0"`
	ListingID      string `json:"listing_id" binding:"required,max=100,safe_id"`
}

// AllocateRequest is the request body for funding a budget card.
type AllocateRequest struct {
	WalletAccountID int64  `json:"wallet_account_id" binding:"required,gt=0"`
	CardAccountID   int64  `json:"card_account_id" binding:"required,gt=0"`
	Amount          string `json:"amount" binding:"required,money"`
	OperationID     string `json:"operation_id" binding:"required,max=100,safe_id"`
}

// SpendRequest is the request body for spending from a budget card.
type SpendRequest struct {
	CardAccountID int64  `json:"card_account_id" binding:"required,gt=0"`
	Amount        string `json:"amount" binding:"required,money"`
	OperationID   string `json:"operation_id" binding:"required,max=100,safe_id"`
	Description   string `json:"description,omitempty" binding:"max=255"`
}

// CreateSubscriptionRequest is the request body for a new subscription.
type CreateSubscriptionRequest struct {
	CardAccountID    int64  `json:"card_account_id" binding:"required,gt=0"`
	ServiceName      string `json:"service_name" binding:"required,min=1,max=100"`
	ServiceCategory  string `json:"service_category,omitempty" binding:"max=50"`
	Amount           string `json:"amount" binding:"required,money"`
	BillingCycle     string `json:"billing_cycle" binding:"required,billing_cycle"`
	FirstBillingDate string `json:"first_billing_date,omitempty"` // RFC3339; empty = now
}

// DisburseRequest is the request body for lending money.
type DisburseRequest struct {
	LenderAccountID   int64  `json:"lender_account_id" binding:"required,gt=0"`
	BorrowerAccountID int64  `json:"borrower_account_id" binding:"required,gt=0"`
	Amount            string `json:"amount" binding:"required,money"`
}

// RepayRequest is the request body for paying a loan down.
type RepayRequest struct {
	Amount      string `json:"amount" binding:"required,money"`
	OperationID string `json:"operation_id" binding:"required,max=100,safe_id"`
}

// TokenRequest is the request body for minting a development token.
type TokenRequest struct {
	OwnerID int64 `json:"owner_id" binding:"required,gt=0"`
}

// TokenResponse is the response body for a minted token.
type TokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// AccountResponse is the API view of an account.
type AccountResponse struct {
	ID           int64   `json:"id"`
	OwnerID      int64   `json:"owner_id"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	Balance      string  `json:"balance"`
	MonthlyLimit *string `json:"monthly_limit,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// EntryResponse is the API view of one ledger entry.
type EntryResponse struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	Delta       string `json:"delta"`
	Reason      string `json:"reason"`
	OperationID string `json:"operation_id"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// TransferResponse is the response body for any ledger operation.
type TransferResponse struct {
	OperationID string          `json:"operation_id"`
	Replayed    bool            `json:"replayed"`
	Entries     []EntryResponse `json:"entries"`
}

// OrderResponse is the API view of an escrow order.
type OrderResponse struct {
	ID              string  `json:"id"`
	ListingID       string  `json:"listing_id"`
	BuyerAccountID  int64   `json:"buyer_account_id"`
	SellerAccountID int64   `json:"seller_account_id"`
	EscrowAccountID int64   `json:"escrow_account_id"`
	Amount          string  `json:"amount"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	ResolvedAt      *string `json:"resolved_at,omitempty"`
}

// LoanResponse is the API view of a loan.
type LoanResponse struct {
	ID                string  `json:"id"`
	LenderAccountID   int64   `json:"lender_account_id"`
	BorrowerAccountID int64   `json:"borrower_account_id"`
	LoanAccountID     int64   `json:"loan_account_id"`
	Principal         string  `json:"principal"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at"`
	ClosedAt          *string `json:"closed_at,omitempty"`
}

// SubscriptionResponse is the API view of a subscription.
type SubscriptionResponse struct {
	ID              int64   `json:"id"`
	CardAccountID   int64   `json:"card_account_id"`
	ServiceName     string  `json:"service_name"`
	ServiceCategory string  `json:"service_category,omitempty"`
	Amount          string  `json:"amount"`
	BillingCycle    string  `json:"billing_cycle"`
	NextBillingDate *string `json:"next_billing_date,omitempty"`
	LastPaymentDate *string `json:"last_payment_date,omitempty"`
	Active          bool    `json:"active"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	AccountID int64  `json:"account_id"`
	Kind      string `json:"kind"`
	Balance   string `json:"balance"`
	AsOf      string `json:"as_of"`
}

// StatementResponse wraps a paginated ledger statement.
type StatementResponse struct {
	Items      []EntryResponse `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// StatsResponse is the response for account ledger statistics.
type StatsResponse struct {
	EntryCount   int64             `json:"entry_count"`
	TotalCredits string            `json:"total_credits"`
	TotalDebits  string            `json:"total_debits"`
	ByReason     map[string]string `json:"by_reason"`
}
