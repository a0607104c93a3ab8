package certificates

import (
	"context"
	"time"

	"coursecert-backend/internal/domain"

	"github.com/google/uuid"
)

// EnrollmentInfo is the marketplace view of an enrollment.
type EnrollmentInfo struct {
	EnrollmentID uuid.UUID
	UserID       uuid.UUID
	CourseID     uuid.UUID
	Completed    bool
	CompletedAt  *time.Time
}

// CourseInfo carries the course title, instructor and presentation fields.
type CourseInfo struct {
	CourseID       uuid.UUID
	Title          string
	Slug           string
	ThumbnailURL   *string
	InstructorName *string
}

type UserInfo struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// LessonInfo is one lesson across all modules of a course.
type LessonInfo struct {
	Type            string
	DurationSeconds *int
}

// ScoredProgress is a progress record joined with its lesson type.
type ScoredProgress struct {
	LessonType string
	Score      *float64
}

// Notification is what the learner sees in their inbox (and e-mail).
type Notification struct {
	Type       string
	Title      string
	Message    string
	ActionText string
	Link       string
}

// Marketplace is the read side of the course platform this service depends on.
// Lookups return ErrEnrollmentNotFound / ErrNotFound when the row is absent.
type Marketplace interface {
	GetEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*EnrollmentInfo, error)
	FindEnrollment(ctx context.Context, userID, courseID uuid.UUID) (*EnrollmentInfo, error)
	GetCourseWithInstructor(ctx context.Context, courseID uuid.UUID) (*CourseInfo, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*UserInfo, error)
	ListLessonsForCourse(ctx context.Context, courseID uuid.UUID) ([]LessonInfo, error)
	ListScoredProgressForEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]ScoredProgress, error)
}

// Notifier delivers notifications. Callers in this package ignore its errors.
type Notifier interface {
	SendNotification(ctx context.Context, userID uuid.UUID, n Notification) error
}

// CodeField names a certificate column holding a public code.
type CodeField string

const (
	FieldCertificateNumber CodeField = "certificate_number"
	FieldVerificationCode  CodeField = "verification_code"
)

// Store persists certificate records. Any infrastructure failure is reported
// as ErrStoreUnavailable; misses as ErrNotFound.
type Store interface {
	FindByUserCourse(ctx context.Context, userID, courseID uuid.UUID) (*domain.Certificate, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Certificate, error)
	FindActiveByVerificationCode(ctx context.Context, code string) (*domain.Certificate, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Certificate, error)
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
	CodeExists(ctx context.Context, field CodeField, code string) (bool, error)
	Create(ctx context.Context, cert *domain.Certificate) error
	UpdateAssets(ctx context.Context, id uuid.UUID, pdfURL, imageURL string) error
	UpdateGrade(ctx context.Context, id uuid.UUID, grade float64) error
	UpdateDuration(ctx context.Context, id uuid.UUID, d Duration) error
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AssetRenderer turns certificate data into durable asset URLs.
type AssetRenderer interface {
	RenderAssets(ctx context.Context, data CertificateData) (*AssetURLs, error)
}
