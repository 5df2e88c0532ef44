package ledger

import "errors"

var (
	ErrInvalidScheduleParameters = errors.New("invalid schedule parameters")
	ErrNonPositiveAmount         = errors.New("installment amount must be positive")
	ErrInvalidDueDate            = errors.New("invalid due date")
	ErrImmutableInstallment      = errors.New("installment is settled and cannot be modified")
	ErrConcurrentModification    = errors.New("ledger changed since it was read")
	ErrMalformedLedger           = errors.New("malformed ledger")
	ErrEmptyModification         = errors.New("modification leaves no open installments")
	ErrUnknownInstallment        = errors.New("installment does not belong to this ledger")
	ErrDuplicateReplacement      = errors.New("installment referenced more than once")
	ErrInstallmentSettled        = errors.New("installment is already settled")
	ErrInvalidTimestamp          = errors.New("timestamp is required")
	ErrInvalidChannel            = errors.New("dispatch channel is required")
)
