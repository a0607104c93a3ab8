package events

import (
	"context"
	"encoding/json"

	certsvc "coursecert-backend/internal/application/certificates"
	certhandler "coursecert-backend/internal/interfaces/handlers/certificates"
	"coursecert-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Issuer handles enrollment-completion events.
type Issuer interface {
	IssueFromEvent(ctx context.Context, ev certsvc.CompletionEvent) (*certsvc.CertificateView, error)
}

type Handlers struct {
	Issuer Issuer
}

// POST /internal/events/enrollment-completed, called by the marketplace with X-Internal-Key
func (h *Handlers) EnrollmentCompleted(c *fiber.Ctx) error {
	var ev certsvc.CompletionEvent
	if err := json.Unmarshal(c.Body(), &ev); err != nil {
		return response.BadRequest(c, "Invalid request body", "")
	}
	switch {
	case ev.EnrollmentID == uuid.Nil:
		return response.BadRequest(c, "Missing required field: enrollmentId", "enrollmentId")
	case ev.UserID == uuid.Nil:
		return response.BadRequest(c, "Missing required field: userId", "userId")
	case ev.CourseID == uuid.Nil:
		return response.BadRequest(c, "Missing required field: courseId", "courseId")
	}
	cert, err := h.Issuer.IssueFromEvent(c.UserContext(), ev)
	if err != nil {
		return certhandler.Fail(c, err)
	}
	return response.Success(c, "Certificate issued", fiber.Map{
		"certificate_id":     cert.ID,
		"certificate_number": cert.CertificateNumber,
		"assets_ready":       cert.PdfURL != nil && cert.ImageURL != nil,
	}, nil)
}
