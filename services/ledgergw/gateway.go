package ledgergw

import (
	"context"
	"errors"
	"fmt"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusConfirmed TransferStatus = "confirmed"
	TransferStatusFailed    TransferStatus = "failed"
)

type TransferRequest struct {
	FromWallet  string
	ToWallet    string
	AmountCents int64
	Reference   string
}

type TransferResult struct {
	TransferID string
	StatusRef  string
	Status     TransferStatus
}

// Gateway moves stablecoin value between wallets. Implementations must be safe
// for concurrent use.
type Gateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	GetStatus(ctx context.Context, transferID string) (TransferStatus, error)
}

// TransientError marks a failure that is worth retrying: timeouts, connection
// resets, and 5xx responses from the ledger. Validation failures are returned
// as plain errors and are never retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient ledger failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
