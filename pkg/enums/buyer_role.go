package enums

import "fmt"

// BuyerRole identifies which kind of account owns a cart.
type BuyerRole string

const (
	BuyerRoleClient BuyerRole = "client"
	BuyerRoleVendor BuyerRole = "vendor"
)

var validBuyerRoles = []BuyerRole{
	BuyerRoleClient,
	BuyerRoleVendor,
}

// String implements fmt.Stringer.
func (b BuyerRole) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BuyerRole.
func (b BuyerRole) IsValid() bool {
	for _, candidate := range validBuyerRoles {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBuyerRole converts raw input into a BuyerRole.
func ParseBuyerRole(value string) (BuyerRole, error) {
	for _, candidate := range validBuyerRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid buyer role %q", value)
}

// OrderPrefix returns the order number prefix used for orders placed by this role.
func (b BuyerRole) OrderPrefix() string {
	if b == BuyerRoleVendor {
		return "VND"
	}
	return "ORD"
}
