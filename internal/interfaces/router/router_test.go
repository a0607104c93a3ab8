package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	certsvc "coursecert-backend/internal/application/certificates"
	"coursecert-backend/internal/config"
	"coursecert-backend/internal/domain"
	"coursecert-backend/internal/infrastructure/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const internalKey = "marketplace-secret"

type stubEngine struct{ calls int }

func (e *stubEngine) Render(context.Context, string) (*certsvc.Rendered, error) {
	e.calls++
	return &certsvc.Rendered{PDF: []byte("%PDF-1.7 stub"), PNG: []byte("\x89PNG stub")}, nil
}

type testServer struct {
	app        *fiber.App
	svc        *certsvc.Service
	db         *gorm.DB
	mr         *miniredis.Miniredis
	engine     *stubEngine
	learner    domain.User
	course     domain.Course
	enrollment domain.Enrollment
}

func ptr[T any](v T) *T { return &v }

func setupServer(t *testing.T) *testServer {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&domain.User{}, &domain.Course{}, &domain.Module{}, &domain.Lesson{},
		&domain.Enrollment{}, &domain.LessonProgress{}, &domain.Notification{}, &domain.Certificate{},
	))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(internalKey), bcrypt.MinCost)
	require.NoError(t, err)
	dir := t.TempDir()
	cfg := &config.Config{
		InternalAPIKeyHash: string(hash),
		HealthAdminKey:     "health-key",
		Certificates: config.CertificateConfig{
			VerifyBaseURL:         "https://verify.example.com",
			PlatformName:          "Coursely",
			ScratchDir:            filepath.Join(dir, "scratch"),
			StorageFolder:         "certificates",
			NonVideoLessonMinutes: 5,
			IssueTimeout:          10 * time.Second,
			UploadTimeout:         10 * time.Second,
		},
		Storage: config.StorageConfig{
			Driver:         "local",
			LocalDir:       filepath.Join(dir, "public"),
			LocalURLPrefix: "/static/certificates",
		},
	}
	objects := &storage.LocalStore{Dir: cfg.Storage.LocalDir, URLPrefix: cfg.Storage.LocalURLPrefix}
	svc, queue := NewCertificateService(cfg, db, rdb, objects)
	engine := &stubEngine{}
	svc.Assets.(*certsvc.AssetPipeline).Engine = engine

	s := &testServer{
		app:    New(Deps{Config: cfg, DB: db, Rdb: rdb, Certificates: svc, Queue: queue}),
		svc:    svc,
		db:     db,
		mr:     mr,
		engine: engine,
	}
	s.seed(t)
	return s
}

func (s *testServer) seed(t *testing.T) {
	instructor := domain.User{Fullname: "Charles Babbage", Email: "charles@example.com", Role: "instructor"}
	require.NoError(t, s.db.Create(&instructor).Error)
	s.learner = domain.User{Fullname: "Ada Lovelace", Email: "ada@example.com"}
	require.NoError(t, s.db.Create(&s.learner).Error)
	s.course = domain.Course{Title: "Analytical Engines", Slug: "analytical-engines", InstructorID: &instructor.UserID}
	require.NoError(t, s.db.Create(&s.course).Error)

	m := domain.Module{CourseID: s.course.CourseID, Title: "Everything"}
	require.NoError(t, s.db.Create(&m).Error)
	video := domain.Lesson{ModuleID: m.ModuleID, Title: "Lecture", Type: domain.LessonTypeVideo, VideoDurationSeconds: ptr(1200)}
	quiz := domain.Lesson{ModuleID: m.ModuleID, Title: "Final", Type: domain.LessonTypeAssessment}
	require.NoError(t, s.db.Create(&video).Error)
	require.NoError(t, s.db.Create(&quiz).Error)

	s.enrollment = domain.Enrollment{
		UserID: s.learner.UserID, CourseID: s.course.CourseID,
		Completed: true, CompletedAt: ptr(time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)),
	}
	require.NoError(t, s.db.Create(&s.enrollment).Error)
	require.NoError(t, s.db.Create(&domain.LessonProgress{
		EnrollmentID: s.enrollment.EnrollmentID, LessonID: quiz.LessonID, Completed: true, Score: ptr(90.0),
	}).Error)
}

// login stores a marketplace-style session and returns its cookie.
func (s *testServer) login(t *testing.T, userID uuid.UUID, role string) string {
	sid := uuid.NewString()
	b, _ := json.Marshal(map[string]interface{}{"user": map[string]interface{}{"user_id": userID.String(), "role": role}})
	require.NoError(t, s.mr.Set("session:"+sid, string(b)))
	return "coursely.sid=s:" + sid + ".sig"
}

func (s *testServer) do(t *testing.T, method, path, cookie string, body string, header map[string]string) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, 10000)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *testServer) completionEvent(t *testing.T) string {
	b, err := json.Marshal(map[string]interface{}{
		"enrollmentId": s.enrollment.EnrollmentID,
		"userId":       s.learner.UserID,
		"courseId":     s.course.CourseID,
	})
	require.NoError(t, err)
	return string(b)
}

func TestCompletionEvent_IssuesOnce(t *testing.T) {
	s := setupServer(t)
	key := map[string]string{"X-Internal-Key": internalKey}

	status, _ := s.do(t, "POST", "/internal/events/enrollment-completed", "", s.completionEvent(t), nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := s.do(t, "POST", "/internal/events/enrollment-completed", "", s.completionEvent(t), key)
	require.Equal(t, http.StatusOK, status, body)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["assets_ready"])
	number := data["certificate_number"].(string)
	assert.Len(t, number, certsvc.CertificateNumberLen)

	var cert domain.Certificate
	require.NoError(t, s.db.First(&cert).Error)
	assert.Equal(t, "Ada Lovelace", cert.LearnerName)
	assert.Equal(t, "Analytical Engines", cert.CourseTitle)
	require.NotNil(t, cert.PartnerName)
	assert.Equal(t, "Charles Babbage", *cert.PartnerName)
	require.NotNil(t, cert.DurationMinutes)
	assert.Equal(t, 25, *cert.DurationMinutes, "20 video minutes plus one non-video lesson")
	require.NotNil(t, cert.DurationHours)
	assert.InDelta(t, 0.42, *cert.DurationHours, 0.001)
	require.NotNil(t, cert.Grade)
	assert.InDelta(t, 90.0, *cert.Grade, 0.001)
	require.NotNil(t, cert.PdfURL)
	assert.Equal(t, "/static/certificates/certificates/certificate_"+number+".pdf", *cert.PdfURL)

	status, body = s.do(t, "POST", "/internal/events/enrollment-completed", "", s.completionEvent(t), key)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, number, body["data"].(map[string]interface{})["certificate_number"])

	s.svc.WaitNotifications()
	var certs, notifications int64
	s.db.Model(&domain.Certificate{}).Count(&certs)
	s.db.Model(&domain.Notification{}).Count(&notifications)
	assert.Equal(t, int64(1), certs)
	assert.Equal(t, int64(1), notifications)
	assert.Equal(t, 1, s.engine.calls, "usable assets are not re-rendered")

	resp, err := s.app.Test(httptest.NewRequest("GET", *cert.PdfURL, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCompletionEvent_Mismatch(t *testing.T) {
	s := setupServer(t)
	b, _ := json.Marshal(map[string]interface{}{
		"enrollmentId": s.enrollment.EnrollmentID,
		"userId":       uuid.New(),
		"courseId":     s.course.CourseID,
	})
	status, _ := s.do(t, "POST", "/internal/events/enrollment-completed", "", string(b), map[string]string{"X-Internal-Key": internalKey})
	assert.Equal(t, http.StatusConflict, status)
}

func TestLearnerFlow(t *testing.T) {
	s := setupServer(t)
	cookie := s.login(t, s.learner.UserID, "learner")
	issuePath := "/api/v1/certificates/enrollments/" + s.enrollment.EnrollmentID.String()

	status, _ := s.do(t, "POST", issuePath, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, "POST", issuePath, s.login(t, uuid.New(), "learner"), "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := s.do(t, "POST", issuePath, cookie, "", nil)
	require.Equal(t, http.StatusOK, status, body)
	cert := body["data"].(map[string]interface{})
	certID := cert["id"].(string)
	verifyURL := cert["verification_url"].(string)
	require.True(t, strings.HasPrefix(verifyURL, "https://verify.example.com/"))
	code := strings.TrimPrefix(verifyURL, "https://verify.example.com/")

	status, body = s.do(t, "GET", "/api/v1/certificates/mine", cookie, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["metadata"].(map[string]interface{})["count"])
	mine := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "analytical-engines", mine["course"].(map[string]interface{})["slug"])

	status, _ = s.do(t, "GET", "/api/v1/certificates/"+certID, cookie, "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, "GET", "/api/v1/certificates/"+certID, s.login(t, uuid.New(), "learner"), "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, "GET", "/api/v1/certificates/verify/"+code, "", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ada Lovelace", body["data"].(map[string]interface{})["learner_name"])

	status, _ = s.do(t, "POST", "/api/v1/admin/certificates/"+certID+"/revoke", cookie, "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	admin := s.login(t, uuid.New(), "admin")
	status, _ = s.do(t, "POST", "/api/v1/admin/certificates/"+certID+"/revoke", admin, "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, "GET", "/api/v1/certificates/verify/"+code, "", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminRegenerateAll(t *testing.T) {
	s := setupServer(t)
	admin := s.login(t, uuid.New(), "superadmin")
	status, _ := s.do(t, "POST", "/internal/events/enrollment-completed", "", s.completionEvent(t), map[string]string{"X-Internal-Key": internalKey})
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, "POST", "/api/v1/admin/certificates/regenerate-all", admin, "", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["queued"])

	n, err := s.mr.List(certsvc.DefaultQueueKey)
	require.NoError(t, err)
	assert.Len(t, n, 1)

	status, body = s.do(t, "GET", "/health/json", "", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestNew_WithoutCertificates(t *testing.T) {
	app := New(Deps{Config: &config.Config{}})
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/certificates/mine", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
