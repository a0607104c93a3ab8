package certificates

import (
	"context"
	"errors"

	certsvc "coursecert-backend/internal/application/certificates"
	"coursecert-backend/internal/middleware"
	"coursecert-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service is the part of the issuance orchestrator these handlers call.
type Service interface {
	ListMine(ctx context.Context, userID uuid.UUID) ([]certsvc.CertificateView, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*certsvc.CertificateView, error)
	Verify(ctx context.Context, code string) (*certsvc.VerificationView, error)
	RequestIssuance(ctx context.Context, enrollmentID, userID uuid.UUID) (*certsvc.CertificateView, error)
	RegenerateAssets(ctx context.Context, id uuid.UUID) (*certsvc.CertificateView, error)
	Revoke(ctx context.Context, id uuid.UUID) (*certsvc.CertificateView, error)
	EnqueueRegenerateAll(ctx context.Context) (int, error)
}

type Handlers struct {
	Service Service
}

// GET /api/v1/certificates/mine
func (h *Handlers) ListMine(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	certs, err := h.Service.ListMine(c.UserContext(), userID)
	if err != nil {
		return Fail(c, err)
	}
	return response.Success(c, "Certificates fetched successfully", certs, fiber.Map{"count": len(certs)})
}

// GET /api/v1/certificates/:id
func (h *Handlers) GetByID(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid certificate id format", "id")
	}
	cert, err := h.Service.GetByID(c.UserContext(), id, userID)
	if err != nil {
		return Fail(c, err)
	}
	return response.Success(c, "Certificate fetched successfully", cert, nil)
}

// GET /api/v1/certificates/verify/:code (public)
func (h *Handlers) Verify(c *fiber.Ctx) error {
	view, err := h.Service.Verify(c.UserContext(), c.Params("code"))
	if err != nil {
		return Fail(c, err)
	}
	return response.Success(c, "Certificate verified", view, nil)
}

// POST /api/v1/certificates/enrollments/:enrollment_id, learner asks for their certificate
func (h *Handlers) Issue(c *fiber.Ctx) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	enrollmentID, err := uuid.Parse(c.Params("enrollment_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid enrollment_id format", "enrollment_id")
	}
	cert, err := h.Service.RequestIssuance(c.UserContext(), enrollmentID, userID)
	if err != nil {
		return Fail(c, err)
	}
	return response.Success(c, "Certificate issued successfully", cert, fiber.Map{"assets_ready": cert.PdfURL != nil && cert.ImageURL != nil})
}

// POST /api/v1/admin/certificates/:id/regenerate
func (h *Handlers) Regenerate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid certificate id format", "id")
	}
	cert, err := h.Service.RegenerateAssets(c.UserContext(), id)
	if err != nil {
		return Fail(c, err)
	}
	return response.Success(c, "Certificate assets regenerated", cert, nil)
}

// POST /api/v1/admin/certificates/:id/revoke
func (h *Handlers) Revoke(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid certificate id format", "id")
	}
	cert, err := h.Service.Revoke(c.UserContext(), id)
	if err != nil {
		return Fail(c, err)
	}
	return response.Success(c, "Certificate revoked", cert, nil)
}

// POST /api/v1/admin/certificates/regenerate-all, 202 and the worker does the rendering
func (h *Handlers) RegenerateAll(c *fiber.Ctx) error {
	n, err := h.Service.EnqueueRegenerateAll(c.UserContext())
	if err != nil {
		return Fail(c, err)
	}
	return response.Accepted(c, "Certificate regeneration queued", fiber.Map{"queued": n}, nil)
}

// Fail maps service errors onto the standard error envelope.
func Fail(c *fiber.Ctx, err error) error {
	switch {
	case certsvc.IsNotFound(err):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.Is(err, certsvc.ErrPreconditionFailed):
		return response.Error(c, err.Error(), fiber.StatusPreconditionFailed, nil)
	case errors.Is(err, certsvc.ErrUnauthorized):
		return response.Error(c, err.Error(), fiber.StatusForbidden, nil)
	case errors.Is(err, certsvc.ErrEventMismatch):
		return response.Error(c, err.Error(), fiber.StatusConflict, nil)
	case certsvc.IsTransient(err):
		log.Warn().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("certificate request failed, dependency unavailable")
		return response.Error(c, "Service temporarily unavailable, please retry", fiber.StatusServiceUnavailable, nil)
	default:
		log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("certificate request failed")
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
}
