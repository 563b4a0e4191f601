package locker

import "errors"

var (
	// ErrHardwareFault is returned when the card reader could not be
	// reinitialised on request.
	ErrHardwareFault = errors.New("card reader fault")
	// ErrLockerUnavailable is returned when no locker can be assigned.
	ErrLockerUnavailable = errors.New("no lockers available")
	// ErrDuplicateAssignment is returned when the card already holds a
	// locker. It matches ErrLockerUnavailable as well.
	ErrDuplicateAssignment error = duplicateAssignment{}
	// ErrInvalidWashType is returned for a wash type missing from the
	// catalog.
	ErrInvalidWashType = errors.New("invalid wash type")
	// ErrTransactionNotFound is returned on pickup for a card that holds no
	// locker.
	ErrTransactionNotFound = errors.New("card not associated with any locker")
	// ErrPersistence marks a failed state save. Operations that hit it still
	// succeed; it is reported through Health.
	ErrPersistence = errors.New("persisting locker state")
	// ErrRemoteSync marks a failed telemetry delivery. It is reported through
	// Health only.
	ErrRemoteSync = errors.New("remote sync failed")
)

type duplicateAssignment struct{}

func (duplicateAssignment) Error() string { return "card already assigned" }

func (duplicateAssignment) Is(target error) bool { return target == ErrLockerUnavailable }
