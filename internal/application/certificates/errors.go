package certificates

import "errors"

var (
	ErrNotFound                = errors.New("Certificate not found")
	ErrEnrollmentNotFound      = errors.New("Enrollment not found")
	ErrPreconditionFailed      = errors.New("Course not completed")
	ErrUnauthorized            = errors.New("Certificate does not belong to this user")
	ErrRenderEngineUnavailable = errors.New("Rendering engine unavailable")
	ErrRenderFailed            = errors.New("Certificate rendering failed")
	ErrStoreUnavailable        = errors.New("Certificate store unavailable")
	ErrDuplicateCertificate    = errors.New("Certificate already exists for this user and course")
)

// IsNotFound reports whether err is a certificate or enrollment lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrEnrollmentNotFound)
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRenderEngineUnavailable) ||
		errors.Is(err, ErrRenderFailed) ||
		errors.Is(err, ErrStoreUnavailable)
}
