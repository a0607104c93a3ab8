package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// The types below mirror marketplace-owned tables. This service reads them
// (and appends Notifications) but never migrates or mutates them in production.

// Lesson types recognised by the duration and grade calculations.
const (
	LessonTypeVideo      = "video"
	LessonTypeArticle    = "article"
	LessonTypeAssessment = "assessment"
)

type User struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Fullname  string    `gorm:"column:fullname;not null" json:"fullname"`
	Email     string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Role      string    `gorm:"column:role;not null;default:learner" json:"role"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (User) TableName() string {
	return "Users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}

type Course struct {
	CourseID     uuid.UUID  `gorm:"column:course_id;type:uuid;primaryKey" json:"course_id"`
	Title        string     `gorm:"column:title;not null" json:"title"`
	Slug         string     `gorm:"column:slug" json:"slug"`
	ThumbnailURL *string    `gorm:"column:thumbnail_url" json:"thumbnail_url"`
	InstructorID *uuid.UUID `gorm:"column:instructor_id;type:uuid" json:"instructor_id"`
	Instructor   *User      `gorm:"foreignKey:InstructorID;references:UserID" json:"instructor,omitempty"`
	CreatedAt    time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Course) TableName() string {
	return "Courses"
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.CourseID == uuid.Nil {
		c.CourseID = uuid.New()
	}
	return nil
}

type Module struct {
	ModuleID uuid.UUID `gorm:"column:module_id;type:uuid;primaryKey" json:"module_id"`
	CourseID uuid.UUID `gorm:"column:course_id;type:uuid;not null;index" json:"course_id"`
	Title    string    `gorm:"column:title;not null" json:"title"`
	Position int       `gorm:"column:position;not null;default:0" json:"position"`
}

func (Module) TableName() string {
	return "Modules"
}

func (m *Module) BeforeCreate(tx *gorm.DB) error {
	if m.ModuleID == uuid.Nil {
		m.ModuleID = uuid.New()
	}
	return nil
}

type Lesson struct {
	LessonID             uuid.UUID `gorm:"column:lesson_id;type:uuid;primaryKey" json:"lesson_id"`
	ModuleID             uuid.UUID `gorm:"column:module_id;type:uuid;not null;index" json:"module_id"`
	Title                string    `gorm:"column:title;not null" json:"title"`
	Type                 string    `gorm:"column:type;type:varchar(20);not null" json:"type"`
	VideoDurationSeconds *int      `gorm:"column:video_duration_seconds" json:"video_duration_seconds"`
	Position             int       `gorm:"column:position;not null;default:0" json:"position"`
}

func (Lesson) TableName() string {
	return "Lessons"
}

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	if l.LessonID == uuid.Nil {
		l.LessonID = uuid.New()
	}
	return nil
}

type Enrollment struct {
	EnrollmentID uuid.UUID  `gorm:"column:enrollment_id;type:uuid;primaryKey" json:"enrollment_id"`
	UserID       uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	CourseID     uuid.UUID  `gorm:"column:course_id;type:uuid;not null;index" json:"course_id"`
	Completed    bool       `gorm:"column:completed;not null;default:false" json:"completed"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt    time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Enrollment) TableName() string {
	return "Enrollments"
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.EnrollmentID == uuid.Nil {
		e.EnrollmentID = uuid.New()
	}
	return nil
}

type LessonProgress struct {
	ProgressID   uuid.UUID `gorm:"column:progress_id;type:uuid;primaryKey" json:"progress_id"`
	EnrollmentID uuid.UUID `gorm:"column:enrollment_id;type:uuid;not null;index" json:"enrollment_id"`
	LessonID     uuid.UUID `gorm:"column:lesson_id;type:uuid;not null" json:"lesson_id"`
	Completed    bool      `gorm:"column:completed;not null;default:false" json:"completed"`
	Score        *float64  `gorm:"column:score;type:decimal(5,2)" json:"score"`
	UpdatedAt    time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (LessonProgress) TableName() string {
	return "LessonProgress"
}

func (p *LessonProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ProgressID == uuid.Nil {
		p.ProgressID = uuid.New()
	}
	return nil
}

// Notification is an in-app notification row shown in the learner's inbox.
type Notification struct {
	NotificationID uuid.UUID      `gorm:"column:notification_id;type:uuid;primaryKey" json:"notification_id"`
	UserID         uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Type           string         `gorm:"column:type;type:varchar(40);not null" json:"type"`
	Title          string         `gorm:"column:title;not null" json:"title"`
	Message        string         `gorm:"column:message;not null" json:"message"`
	ActionText     *string        `gorm:"column:action_text" json:"action_text"`
	Link           *string        `gorm:"column:link" json:"link"`
	Data           datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`
	Read           bool           `gorm:"column:read;not null;default:false" json:"read"`
	CreatedAt      time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (Notification) TableName() string {
	return "Notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.NotificationID == uuid.Nil {
		n.NotificationID = uuid.New()
	}
	return nil
}
