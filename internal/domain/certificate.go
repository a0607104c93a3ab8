package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Certificate is the durable credential for one (user, course) pair.
// LearnerName, CourseTitle and PartnerName are frozen at issuance and never recomputed.
type Certificate struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_certificates_user_course" json:"user_id"`
	CourseID          uuid.UUID  `gorm:"column:course_id;type:uuid;not null;uniqueIndex:idx_certificates_user_course" json:"course_id"`
	CertificateNumber string     `gorm:"column:certificate_number;type:varchar(12);uniqueIndex;not null" json:"certificate_number"`
	VerificationCode  string     `gorm:"column:verification_code;type:varchar(16);uniqueIndex;not null" json:"verification_code"`
	LearnerName       string     `gorm:"column:learner_name;not null" json:"learner_name"`
	CourseTitle       string     `gorm:"column:course_title;not null" json:"course_title"`
	PartnerName       *string    `gorm:"column:partner_name" json:"partner_name"`
	DurationMinutes   *int       `gorm:"column:duration_minutes" json:"duration_minutes"`
	DurationHours     *float64   `gorm:"column:duration_hours;type:decimal(8,2)" json:"duration_hours"`
	Grade             *float64   `gorm:"column:grade;type:decimal(5,2)" json:"grade"`
	PdfURL            *string    `gorm:"column:pdf_url" json:"pdf_url"`
	ImageURL          *string    `gorm:"column:image_url" json:"image_url"`
	VerifiedIdentity  bool       `gorm:"column:verified_identity;not null;default:false" json:"verified_identity"`
	RevokedAt         *time.Time `gorm:"column:revoked_at" json:"revoked_at"`
	IssuedAt          time.Time  `gorm:"column:issued_at;not null" json:"issued_at"`
	CreatedAt         time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Certificate) TableName() string {
	return "Certificates"
}

// BeforeCreate: never insert zero UUID for primary key; generate random when not set.
func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Revoked reports whether the certificate has been revoked.
func (c *Certificate) Revoked() bool {
	return c.RevokedAt != nil
}
