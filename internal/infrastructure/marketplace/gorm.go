package marketplace

import (
	"context"
	"errors"
	"fmt"

	"coursecert-backend/internal/application/certificates"
	"coursecert-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReader reads marketplace tables directly from the shared database.
type GormReader struct {
	DB *gorm.DB
}

func (r *GormReader) GetEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*certificates.EnrollmentInfo, error) {
	var e domain.Enrollment
	if err := r.DB.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).First(&e).Error; err != nil {
		return nil, lookupErr(err, certificates.ErrEnrollmentNotFound)
	}
	return toEnrollmentInfo(&e), nil
}

// FindEnrollment prefers a completed enrollment when a user has several for one course.
func (r *GormReader) FindEnrollment(ctx context.Context, userID, courseID uuid.UUID) (*certificates.EnrollmentInfo, error) {
	var e domain.Enrollment
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Order("completed DESC").
		Order(`"createdAt" DESC`).
		First(&e).Error
	if err != nil {
		return nil, lookupErr(err, certificates.ErrEnrollmentNotFound)
	}
	return toEnrollmentInfo(&e), nil
}

func (r *GormReader) GetCourseWithInstructor(ctx context.Context, courseID uuid.UUID) (*certificates.CourseInfo, error) {
	var c domain.Course
	if err := r.DB.WithContext(ctx).Preload("Instructor").Where("course_id = ?", courseID).First(&c).Error; err != nil {
		return nil, lookupErr(err, fmt.Errorf("course %s: %w", courseID, certificates.ErrNotFound))
	}
	info := &certificates.CourseInfo{
		CourseID:     c.CourseID,
		Title:        c.Title,
		Slug:         c.Slug,
		ThumbnailURL: c.ThumbnailURL,
	}
	if c.Instructor != nil && c.Instructor.Fullname != "" {
		name := c.Instructor.Fullname
		info.InstructorName = &name
	}
	return info, nil
}

func (r *GormReader) GetUser(ctx context.Context, userID uuid.UUID) (*certificates.UserInfo, error) {
	var u domain.User
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, lookupErr(err, fmt.Errorf("user %s: %w", userID, certificates.ErrNotFound))
	}
	return &certificates.UserInfo{UserID: u.UserID, Name: u.Fullname, Email: u.Email}, nil
}

type lessonRow struct {
	Type                 string `gorm:"column:type"`
	VideoDurationSeconds *int   `gorm:"column:video_duration_seconds"`
}

// ListLessonsForCourse returns every lesson of every module of the course.
func (r *GormReader) ListLessonsForCourse(ctx context.Context, courseID uuid.UUID) ([]certificates.LessonInfo, error) {
	var rows []lessonRow
	err := r.DB.WithContext(ctx).
		Table(`"Lessons" AS l`).
		Select("l.type, l.video_duration_seconds").
		Joins(`JOIN "Modules" AS m ON m.module_id = l.module_id`).
		Where("m.course_id = ?", courseID).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]certificates.LessonInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, certificates.LessonInfo{Type: row.Type, DurationSeconds: row.VideoDurationSeconds})
	}
	return out, nil
}

type progressRow struct {
	LessonType string   `gorm:"column:lesson_type"`
	Score      *float64 `gorm:"column:score"`
}

// ListScoredProgressForEnrollment returns progress rows with a score, joined with their lesson type.
func (r *GormReader) ListScoredProgressForEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]certificates.ScoredProgress, error) {
	var rows []progressRow
	err := r.DB.WithContext(ctx).
		Table(`"LessonProgress" AS p`).
		Select("l.type AS lesson_type, p.score").
		Joins(`JOIN "Lessons" AS l ON l.lesson_id = p.lesson_id`).
		Where("p.enrollment_id = ? AND p.score IS NOT NULL", enrollmentID).
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]certificates.ScoredProgress, 0, len(rows))
	for _, row := range rows {
		out = append(out, certificates.ScoredProgress{LessonType: row.LessonType, Score: row.Score})
	}
	return out, nil
}

func toEnrollmentInfo(e *domain.Enrollment) *certificates.EnrollmentInfo {
	return &certificates.EnrollmentInfo{
		EnrollmentID: e.EnrollmentID,
		UserID:       e.UserID,
		CourseID:     e.CourseID,
		Completed:    e.Completed,
		CompletedAt:  e.CompletedAt,
	}
}

func lookupErr(err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return unavailable(err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: marketplace: %v", certificates.ErrStoreUnavailable, err)
}
