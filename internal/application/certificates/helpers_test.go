package certificates

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coursecert-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection: every :memory: connection is a separate database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Certificate{}))
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

type fakeMarketplace struct {
	mu          sync.Mutex
	enrollments map[uuid.UUID]*EnrollmentInfo
	users       map[uuid.UUID]*UserInfo
	courses     map[uuid.UUID]*CourseInfo
	lessons     map[uuid.UUID][]LessonInfo
	progress    map[uuid.UUID][]ScoredProgress
	lessonsErr  error
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{
		enrollments: map[uuid.UUID]*EnrollmentInfo{},
		users:       map[uuid.UUID]*UserInfo{},
		courses:     map[uuid.UUID]*CourseInfo{},
		lessons:     map[uuid.UUID][]LessonInfo{},
		progress:    map[uuid.UUID][]ScoredProgress{},
	}
}

func (m *fakeMarketplace) GetEnrollment(_ context.Context, id uuid.UUID) (*EnrollmentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, ErrEnrollmentNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *fakeMarketplace) FindEnrollment(_ context.Context, userID, courseID uuid.UUID) (*EnrollmentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEnrollmentNotFound
}

func (m *fakeMarketplace) GetCourseWithInstructor(_ context.Context, id uuid.UUID) (*CourseInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *fakeMarketplace) GetUser(_ context.Context, id uuid.UUID) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *fakeMarketplace) ListLessonsForCourse(_ context.Context, id uuid.UUID) ([]LessonInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lessonsErr != nil {
		return nil, m.lessonsErr
	}
	return m.lessons[id], nil
}

func (m *fakeMarketplace) ListScoredProgressForEnrollment(_ context.Context, id uuid.UUID) ([]ScoredProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress[id], nil
}

// seedEnrollment registers a learner, a course and an enrollment.
func (m *fakeMarketplace) seedEnrollment(completed bool) *EnrollmentInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, courseID := uuid.New(), uuid.New()
	m.users[userID] = &UserInfo{UserID: userID, Name: "Ada Lovelace", Email: "ada@example.com"}
	m.courses[courseID] = &CourseInfo{CourseID: courseID, Title: "Analytical Engines", Slug: "analytical-engines", InstructorName: ptr("Charles Babbage")}
	e := &EnrollmentInfo{EnrollmentID: uuid.New(), UserID: userID, CourseID: courseID, Completed: completed}
	if completed {
		e.CompletedAt = ptr(time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC))
	}
	m.enrollments[e.EnrollmentID] = e
	return e
}

// fakeAssets is an AssetRenderer returning remote URLs, or err when set.
type fakeAssets struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
}

func (f *fakeAssets) RenderAssets(_ context.Context, data CertificateData) (*AssetURLs, error) {
	f.calls.Add(1)
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("https://cdn.example.com/certificates/certificate_%s", data.CertificateNumber)
	v := f.calls.Load()
	return &AssetURLs{
		PdfURL:   fmt.Sprintf("%s.pdf?v=%d", base, v),
		ImageURL: fmt.Sprintf("%s.png?v=%d", base, v),
	}, nil
}

func (f *fakeAssets) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type sentNotification struct {
	UserID uuid.UUID
	Msg    Notification
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) SendNotification(_ context.Context, userID uuid.UUID, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Msg: msg})
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []RegenerationJob
}

func (q *fakeQueue) Enqueue(_ context.Context, jobs ...RegenerationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, jobs...)
	return nil
}

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	store    *GormStore
	market   *fakeMarketplace
	assets   *fakeAssets
	notifier *fakeNotifier
	queue    *fakeQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	store := &GormStore{DB: db}
	market := newFakeMarketplace()
	env := &testEnv{
		db:       db,
		store:    store,
		market:   market,
		assets:   &fakeAssets{},
		notifier: &fakeNotifier{},
		queue:    &fakeQueue{},
	}
	env.svc = &Service{
		Store:         store,
		Marketplace:   market,
		Notifier:      env.notifier,
		Assets:        env.assets,
		Codes:         &CodeGenerator{Checker: store},
		Calculator:    &Calculator{Marketplace: market},
		Queue:         env.queue,
		VerifyBaseURL: "https://verify.example.com",
		IssueTimeout:  10 * time.Second,
	}
	return env
}

// notifications waits for background sends and returns how many reached the notifier.
func (e *testEnv) notifications() int {
	e.svc.WaitNotifications()
	return e.notifier.count()
}

func (e *testEnv) countCertificates(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&domain.Certificate{}).Count(&n).Error)
	return n
}

var errBoom = errors.New("boom")
