package licensing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLicense is returned when no license matches the key.
	ErrInvalidLicense = errors.New("license not found")

	// ErrInactiveLicense is returned when the license status is not active.
	ErrInactiveLicense = errors.New("license is not active")

	// ErrExpiredLicense is returned when the license expiration has passed.
	ErrExpiredLicense = errors.New("license expired")

	// ErrPlanNotFound is returned when a plan lookup misses.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrCustomerNotFound is returned when a customer lookup misses.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrCustomerExists is returned when a customer email is already taken.
	ErrCustomerExists = errors.New("customer already exists")

	// ErrSeatsExhausted is returned when a seat-limited plan is sold out.
	ErrSeatsExhausted = errors.New("no seats remaining on plan")

	// ErrDuplicateKey is returned by stores when a license key collides.
	ErrDuplicateKey = errors.New("license key already exists")

	// ErrKeyGeneration is returned when no unique key could be generated.
	ErrKeyGeneration = errors.New("failed to generate unique license key")

	// ErrStatusConflict is returned when a license's status changed between
	// being read and being updated.
	ErrStatusConflict = errors.New("license status changed concurrently")

	// ErrUsageNotFound is returned when a usage record lookup misses.
	ErrUsageNotFound = errors.New("usage record not found")
)

// StatusError reports a license rejected because of its status.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("license is %s", e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrInactiveLicense
}
