package certificates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coursecert-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore is the Store backed by the Certificates table.
type GormStore struct {
	DB *gorm.DB
}

func (s *GormStore) FindByUserCourse(ctx context.Context, userID, courseID uuid.UUID) (*domain.Certificate, error) {
	return s.first(ctx, "user_id = ? AND course_id = ?", userID, courseID)
}

func (s *GormStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Certificate, error) {
	return s.first(ctx, "id = ?", id)
}

// FindActiveByVerificationCode never returns revoked certificates.
func (s *GormStore) FindActiveByVerificationCode(ctx context.Context, code string) (*domain.Certificate, error) {
	return s.first(ctx, "verification_code = ? AND revoked_at IS NULL", code)
}

func (s *GormStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Certificate, error) {
	var certs []domain.Certificate
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("issued_at DESC").Find(&certs).Error; err != nil {
		return nil, unavailable(err)
	}
	return certs, nil
}

// ListActiveIDs returns the ids of every non-revoked certificate, oldest first.
func (s *GormStore) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.DB.WithContext(ctx).Model(&domain.Certificate{}).Where("revoked_at IS NULL").Order("issued_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

func (s *GormStore) CodeExists(ctx context.Context, field CodeField, code string) (bool, error) {
	switch field {
	case FieldCertificateNumber, FieldVerificationCode:
	default:
		return false, fmt.Errorf("unknown code field %q", field)
	}
	var n int64
	if err := s.DB.WithContext(ctx).Model(&domain.Certificate{}).Where(string(field)+" = ?", code).Count(&n).Error; err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// Create inserts the record. Losing the (user_id, course_id) unique index returns ErrDuplicateCertificate.
func (s *GormStore) Create(ctx context.Context, cert *domain.Certificate) error {
	if err := s.DB.WithContext(ctx).Create(cert).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateCertificate, err)
		}
		return unavailable(err)
	}
	return nil
}

func (s *GormStore) UpdateAssets(ctx context.Context, id uuid.UUID, pdfURL, imageURL string) error {
	return s.update(ctx, id, map[string]interface{}{"pdf_url": pdfURL, "image_url": imageURL})
}

func (s *GormStore) UpdateGrade(ctx context.Context, id uuid.UUID, grade float64) error {
	return s.update(ctx, id, map[string]interface{}{"grade": grade})
}

func (s *GormStore) UpdateDuration(ctx context.Context, id uuid.UUID, d Duration) error {
	return s.update(ctx, id, map[string]interface{}{"duration_minutes": d.Minutes, "duration_hours": d.Hours})
}

// Revoke sets revoked_at once; revoking again keeps the original timestamp.
func (s *GormStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&domain.Certificate{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at)
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *GormStore) first(ctx context.Context, query string, args ...interface{}) (*domain.Certificate, error) {
	var cert domain.Certificate
	if err := s.DB.WithContext(ctx).Where(query, args...).First(&cert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &cert, nil
}

func (s *GormStore) update(ctx context.Context, id uuid.UUID, values map[string]interface{}) error {
	res := s.DB.WithContext(ctx).Model(&domain.Certificate{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// isUniqueViolation covers drivers with and without gorm error translation.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
