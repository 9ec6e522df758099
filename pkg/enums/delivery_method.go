package enums

import "fmt"

// DeliveryMethod is the delivery option chosen for a whole cart.
type DeliveryMethod string

const (
	DeliveryMethodPickup     DeliveryMethod = "pickup"
	DeliveryMethodStandard   DeliveryMethod = "standard"
	DeliveryMethodSemiTruck  DeliveryMethod = "semi-truck"
	DeliveryMethodTruck      DeliveryMethod = "truck"
	DeliveryMethodNegotiated DeliveryMethod = "negotiated"
)

var validDeliveryMethods = []DeliveryMethod{
	DeliveryMethodPickup,
	DeliveryMethodStandard,
	DeliveryMethodSemiTruck,
	DeliveryMethodTruck,
	DeliveryMethodNegotiated,
}

// String implements fmt.Stringer.
func (d DeliveryMethod) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryMethod.
func (d DeliveryMethod) IsValid() bool {
	for _, candidate := range validDeliveryMethods {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeliveryMethod converts raw input into a DeliveryMethod.
func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	for _, candidate := range validDeliveryMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery method %q", value)
}
