package enums

import "fmt"

// PaymentStatus tracks a gateway payment record. Values mirror the gateway's own vocabulary.
type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "PENDING"
	PaymentStatusValid       PaymentStatus = "VALID"
	PaymentStatusFailed      PaymentStatus = "FAILED"
	PaymentStatusCancelled   PaymentStatus = "CANCELLED"
	PaymentStatusUnattempted PaymentStatus = "UNATTEMPTED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusValid,
	PaymentStatusFailed,
	PaymentStatusCancelled,
	PaymentStatusUnattempted,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// IsTerminal reports whether no further callback may move the payment.
func (p PaymentStatus) IsTerminal() bool {
	return p != PaymentStatusPending
}
