package logger

import (
	"go.uber.org/zap"

	"github.com/claimtech/dialler/pkg/phone"
)

// Phone creates a zap field that masks the caller's number
func Phone(key, number string) zap.Field {
	return zap.String(key, phone.Mask(number))
}

// PhoneIfPresent masks the number if not empty
func PhoneIfPresent(key, number string) zap.Field {
	if number == "" {
		return zap.String(key, "")
	}
	return Phone(key, number)
}
