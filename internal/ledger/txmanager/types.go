package txmanager

import (
	"time"

	"ledgercore/internal/ledger/domain"
)

// CreditRequest is credit(holder, amount, reference, category?, source_system?,
// idempotency_key?, effective_date?) of spec §4.2.
type CreditRequest struct {
	Holder         string
	Amount         int64
	Reference      string
	Category       *string
	SourceSystem   *string
	IdempotencyKey *string
	EffectiveDate  *time.Time
	Metadata       map[string]any
}

// DebitRequest is debit(holder, amount, reference, category?,
// destination_system?, idempotency_key?, balancing?, force?) of spec §4.2.
type DebitRequest struct {
	Holder            string
	Amount            int64
	Reference         string
	Category          *string
	DestinationSystem *string
	IdempotencyKey    *string
	Balancing         bool
	Force             bool
	Metadata          map[string]any
}

// TransferRequest is transfer(src_holder, dst_holder, amount, reference,
// exchange_rate?, balancing?, force?) of spec §4.2.
type TransferRequest struct {
	SrcHolder      string
	DstHolder      string
	Amount         int64
	Reference      string
	ExchangeRate   *int64
	Balancing      bool
	Force          bool
	IdempotencyKey *string
	Metadata       map[string]any
}

// MultiTransferRequest is multi_transfer(src_holder, amount, destinations[],
// reference) of spec §4.2.
type MultiTransferRequest struct {
	SrcHolder      string
	Amount         int64
	Destinations   []domain.Destination
	Reference      string
	IdempotencyKey *string
	Metadata       map[string]any
}

// RefundRequest is refund(transfer_id, reason, amount?) of spec §4.2.
type RefundRequest struct {
	TransferID     string
	Reason         string
	Amount         *int64
	IdempotencyKey *string
}

// Result is what every Transaction Manager operation returns and what gets
// cached verbatim by the Idempotency Layer for replay.
type Result struct {
	Transfer        *domain.Transfer `json:"transfer"`
	RequestedAmount *int64           `json:"requestedAmount,omitempty"`
	CrossCurrency   bool             `json:"crossCurrency,omitempty"`
}
