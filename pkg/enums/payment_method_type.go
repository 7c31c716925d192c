package enums

import "fmt"

// PaymentMethodType discriminates the payment method sub-document.
type PaymentMethodType string

const (
	PaymentMethodTypeCard          PaymentMethodType = "card"
	PaymentMethodTypeBank          PaymentMethodType = "bank"
	PaymentMethodTypeDigitalWallet PaymentMethodType = "digital_wallet"
	PaymentMethodTypeOther         PaymentMethodType = "other"
)

var validPaymentMethodTypes = []PaymentMethodType{
	PaymentMethodTypeCard,
	PaymentMethodTypeBank,
	PaymentMethodTypeDigitalWallet,
	PaymentMethodTypeOther,
}

// IsValid reports whether the value matches the canonical payment method type enum.
func (p PaymentMethodType) IsValid() bool {
	for _, candidate := range validPaymentMethodTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethodType converts the raw string to PaymentMethodType.
func ParsePaymentMethodType(value string) (PaymentMethodType, error) {
	for _, candidate := range validPaymentMethodTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method type %q", value)
}
