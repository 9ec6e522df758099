package enums

import "fmt"

// OrderPaymentStatus is the payment flag carried on an order.
type OrderPaymentStatus string

const (
	OrderPaymentUnpaid OrderPaymentStatus = "unpaid"
	OrderPaymentPaid   OrderPaymentStatus = "paid"
	OrderPaymentFailed OrderPaymentStatus = "failed"
)

var validOrderPaymentStatuses = []OrderPaymentStatus{
	OrderPaymentUnpaid,
	OrderPaymentPaid,
	OrderPaymentFailed,
}

// String implements fmt.Stringer.
func (o OrderPaymentStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderPaymentStatus.
func (o OrderPaymentStatus) IsValid() bool {
	for _, candidate := range validOrderPaymentStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderPaymentStatus converts raw input into a OrderPaymentStatus.
func ParseOrderPaymentStatus(value string) (OrderPaymentStatus, error) {
	for _, candidate := range validOrderPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order payment status %q", value)
}
