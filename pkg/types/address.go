package types

import "strings"

// DeliveryAddress is the buyer address snapshot frozen onto carts and orders.
type DeliveryAddress struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	District     string `json:"district,omitempty"`
	State        string `json:"state,omitempty"`
	Zip          string `json:"zip,omitempty"`
	Label        string `json:"label,omitempty"`
}

// IsZero reports whether the snapshot is missing the fields needed to ship.
func (a *DeliveryAddress) IsZero() bool {
	if a == nil {
		return true
	}
	return strings.TrimSpace(a.AddressLine1) == "" && strings.TrimSpace(a.City) == ""
}

// StateOr returns the state, district, or fallback in that order.
func (a DeliveryAddress) StateOr(fallback string) string {
	if s := strings.TrimSpace(a.State); s != "" {
		return s
	}
	if d := strings.TrimSpace(a.District); d != "" {
		return d
	}
	return fallback
}

// ZipOr returns the postal code or fallback.
func (a DeliveryAddress) ZipOr(fallback string) string {
	if z := strings.TrimSpace(a.Zip); z != "" {
		return z
	}
	return fallback
}
