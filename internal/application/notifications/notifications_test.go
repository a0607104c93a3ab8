package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"coursecert-backend/internal/application/certificates"
	"coursecert-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Notification{}))
	return db
}

var issued = certificates.Notification{
	Type:       "certificate_issued",
	Title:      "Your certificate is ready",
	Message:    `You completed "Analytical Engines".`,
	ActionText: "View certificate",
	Link:       "/certificates/abc",
}

func TestInboxNotifier_InsertsRow(t *testing.T) {
	db := setupTestDB(t)
	n := &InboxNotifier{DB: db}
	userID := uuid.New()

	require.NoError(t, n.SendNotification(context.Background(), userID, issued))

	var rows []domain.Notification
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, userID, row.UserID)
	assert.Equal(t, "certificate_issued", row.Type)
	assert.False(t, row.Read)
	require.NotNil(t, row.Link)
	assert.Equal(t, "/certificates/abc", *row.Link)
	require.NotNil(t, row.ActionText)

	var data map[string]string
	require.NoError(t, json.Unmarshal(row.Data, &data))
	assert.Equal(t, "/certificates/abc", data["link"])
	assert.Equal(t, "certificate_issued", data["type"])
}

func TestInboxNotifier_OptionalFieldsStayNull(t *testing.T) {
	db := setupTestDB(t)
	n := &InboxNotifier{DB: db}
	require.NoError(t, n.SendNotification(context.Background(), uuid.New(), certificates.Notification{Type: "x", Title: "t", Message: "m"}))

	var row domain.Notification
	require.NoError(t, db.First(&row).Error)
	assert.Nil(t, row.Link)
	assert.Nil(t, row.ActionText)
}

type stubUsers struct {
	user *certificates.UserInfo
	err  error
}

func (s stubUsers) GetUser(context.Context, uuid.UUID) (*certificates.UserInfo, error) {
	return s.user, s.err
}

func TestBrevoNotifier_Send(t *testing.T) {
	var got BrevoSendRequest
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	b := &BrevoNotifier{
		APIKey:       "brevo-key",
		MailFrom:     "noreply@coursely.io",
		PlatformName: "Coursely",
		AppBaseURL:   "https://app.coursely.io/",
		Users:        stubUsers{user: &certificates.UserInfo{Name: "Ada <Lovelace>", Email: "ada@example.com"}},
		Endpoint:     srv.URL,
	}
	require.NoError(t, b.SendNotification(context.Background(), uuid.New(), issued))

	assert.Equal(t, "brevo-key", apiKey)
	assert.Equal(t, "noreply@coursely.io", got.Sender.Email)
	require.Len(t, got.To, 1)
	assert.Equal(t, "ada@example.com", got.To[0].Email)
	assert.Equal(t, issued.Title, got.Subject)
	assert.Contains(t, got.HTMLContent, `href="https://app.coursely.io/certificates/abc"`)
	assert.Contains(t, got.HTMLContent, "Hi Ada &lt;Lovelace&gt;,")
	assert.Contains(t, got.HTMLContent, "&quot;Analytical Engines&quot;")
}

func TestBrevoNotifier_Disabled(t *testing.T) {
	b := &BrevoNotifier{Users: stubUsers{err: errors.New("must not be called")}}
	assert.NoError(t, b.SendNotification(context.Background(), uuid.New(), issued))

	b = &BrevoNotifier{APIKey: "k", Users: stubUsers{user: &certificates.UserInfo{Name: "No Mail"}}, Endpoint: "http://127.0.0.1:0"}
	assert.NoError(t, b.SendNotification(context.Background(), uuid.New(), issued))
}

func TestBrevoNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := &BrevoNotifier{APIKey: "bad", Users: stubUsers{user: &certificates.UserInfo{Email: "a@b.c"}}, Endpoint: srv.URL}
	err := b.SendNotification(context.Background(), uuid.New(), issued)
	assert.EqualError(t, err, "brevo send failed: status 401")
}

func TestBrevoNotifier_AbsoluteLinks(t *testing.T) {
	b := &BrevoNotifier{AppBaseURL: "https://app.coursely.io"}
	assert.Equal(t, "https://app.coursely.io/certificates/1", b.absolute("/certificates/1"))
	assert.Equal(t, "https://verify.example.com/x", b.absolute("https://verify.example.com/x"))
	assert.Equal(t, "", b.absolute(""))
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) SendNotification(context.Context, uuid.UUID, certificates.Notification) error {
	c.calls++
	return c.err
}

func TestMulti_DeliversToAll(t *testing.T) {
	boom := errors.New("smtp down")
	first := &countingNotifier{err: boom}
	second := &countingNotifier{}
	m := Multi{first, nil, second}

	err := m.SendNotification(context.Background(), uuid.New(), issued)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	assert.NoError(t, Multi{second}.SendNotification(context.Background(), uuid.New(), issued))
}

func TestEmailLayout(t *testing.T) {
	html := EmailLayout("Course & Co", "<p>body</p>")
	assert.Contains(t, html, "<title>Course &amp; Co</title>")
	assert.Contains(t, html, "<p>body</p>")
}
