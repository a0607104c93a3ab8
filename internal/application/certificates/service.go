package certificates

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coursecert-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	NotificationTypeCertificateReady = "certificate_ready"
	fallbackFetchTimeout             = 5 * time.Second
	defaultNotifyTimeout             = 30 * time.Second
	maxCreateAttempts                = 3
)

// ErrEventMismatch is returned when a completion event disagrees with the stored enrollment.
var ErrEventMismatch = errors.New("Completion event does not match enrollment")

// JobQueue accepts background regeneration jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, jobs ...RegenerationJob) error
}

// CourseSummary is the presentation-oriented course data returned with a certificate.
type CourseSummary struct {
	CourseID       uuid.UUID `json:"course_id"`
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	ThumbnailURL   *string   `json:"thumbnail_url"`
	InstructorName *string   `json:"instructor_name"`
}

// CertificateView is a certificate joined with its course presentation fields.
type CertificateView struct {
	domain.Certificate
	VerificationURL string         `json:"verification_url"`
	Course          *CourseSummary `json:"course,omitempty"`
}

// VerificationView is the reduced public view returned by Verify.
type VerificationView struct {
	ID                uuid.UUID `json:"id"`
	CertificateNumber string    `json:"certificate_number"`
	LearnerName       string    `json:"learner_name"`
	CourseTitle       string    `json:"course_title"`
	PartnerName       *string   `json:"partner_name"`
	IssuedAt          time.Time `json:"issued_at"`
	DurationHours     *float64  `json:"duration_hours"`
	Grade             *float64  `json:"grade"`
	VerifiedIdentity  bool      `json:"verified_identity"`
	PdfURL            *string   `json:"pdf_url"`
	ImageURL          *string   `json:"image_url"`
}

// CompletionEvent is published by the marketplace when an enrollment completes.
type CompletionEvent struct {
	EnrollmentID uuid.UUID  `json:"enrollmentId"`
	UserID       uuid.UUID  `json:"userId"`
	CourseID     uuid.UUID  `json:"courseId"`
	CompletedAt  *time.Time `json:"completedAt"`
}

// Service is the issuance orchestrator. Per (user, course) a certificate moves
// NoCertificate -> Created -> AssetsReady, and back to Created (stale) when its
// assets stop passing AssetsUsable.
type Service struct {
	Store         Store
	Marketplace   Marketplace
	Notifier      Notifier
	Assets        AssetRenderer
	Codes         *CodeGenerator
	Calculator    *Calculator
	Queue         JobQueue
	LocalExists   LocalExistsFunc
	VerifyBaseURL string
	IssueTimeout  time.Duration
	NotifyTimeout time.Duration
	Now           func() time.Time

	notifications sync.WaitGroup
}

// IssueForEnrollment makes sure the completed enrollment has exactly one certificate
// with usable assets. Asset failures are contained: the record is still returned.
func (s *Service) IssueForEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*CertificateView, error) {
	cert, err := s.issue(ctx, enrollmentID, nil)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cert), nil
}

// RequestIssuance is IssueForEnrollment on behalf of a learner; the enrollment must be theirs.
func (s *Service) RequestIssuance(ctx context.Context, enrollmentID, userID uuid.UUID) (*CertificateView, error) {
	enr, err := s.Marketplace.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enr.UserID != userID {
		return nil, ErrUnauthorized
	}
	return s.IssueForEnrollment(ctx, enrollmentID)
}

// IssueFromEvent handles an enrollment-completion event.
func (s *Service) IssueFromEvent(ctx context.Context, ev CompletionEvent) (*CertificateView, error) {
	enr, err := s.Marketplace.GetEnrollment(ctx, ev.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enr.UserID != ev.UserID || enr.CourseID != ev.CourseID {
		return nil, ErrEventMismatch
	}
	cert, err := s.issue(ctx, ev.EnrollmentID, ev.CompletedAt)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cert), nil
}

// issue runs the state machine. completedAt is the caller's completion time, used for
// issuedAt only when the stored enrollment has none.
func (s *Service) issue(ctx context.Context, enrollmentID uuid.UUID, completedAt *time.Time) (*domain.Certificate, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	logger := log.With().Str("enrollment_id", enrollmentID.String()).Logger()

	enr, err := s.Marketplace.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !enr.Completed {
		return nil, ErrPreconditionFailed
	}

	cert, err := s.Store.FindByUserCourse(ctx, enr.UserID, enr.CourseID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if cert != nil && s.usable(cert) {
		return cert, nil
	}
	if cert == nil {
		cert, err = s.create(ctx, enr, completedAt)
		if err != nil {
			return nil, err
		}
		if s.usable(cert) {
			return cert, nil
		}
	} else {
		logger.Info().Str("certificate_id", cert.ID.String()).Msg("certificate assets stale, regenerating")
	}
	return s.attachAssets(ctx, cert), nil
}

// create persists a new record. Losing the store-level uniqueness race on (user, course)
// means another caller created it first; that record is re-fetched and used instead.
// A duplicate with no (user, course) match is a code collision, so codes are redrawn.
func (s *Service) create(ctx context.Context, enr *EnrollmentInfo, completedAt *time.Time) (*domain.Certificate, error) {
	user, err := s.Marketplace.GetUser(ctx, enr.UserID)
	if err != nil {
		return nil, err
	}
	course, err := s.Marketplace.GetCourseWithInstructor(ctx, enr.CourseID)
	if err != nil {
		return nil, err
	}

	issuedAt := s.now()
	switch {
	case enr.CompletedAt != nil:
		issuedAt = *enr.CompletedAt
	case completedAt != nil:
		issuedAt = *completedAt
	}
	logger := log.With().Str("enrollment_id", enr.EnrollmentID.String()).Logger()

	template := domain.Certificate{
		UserID:      enr.UserID,
		CourseID:    enr.CourseID,
		LearnerName: user.Name,
		CourseTitle: course.Title,
		PartnerName: course.InstructorName,
		IssuedAt:    issuedAt,
	}
	if d, err := s.Calculator.CourseDuration(ctx, enr.CourseID); err != nil {
		logger.Warn().Err(err).Msg("course duration unavailable")
	} else if d != nil {
		template.DurationMinutes = &d.Minutes
		template.DurationHours = &d.Hours
	}
	if g, err := s.Calculator.CourseGrade(ctx, enr.EnrollmentID); err != nil {
		logger.Warn().Err(err).Msg("course grade unavailable")
	} else {
		template.Grade = g
	}

	for attempt := 1; ; attempt++ {
		number, err := s.Codes.GenerateUnique(ctx, FieldCertificateNumber, CertificateNumberLen)
		if err != nil {
			return nil, err
		}
		code, err := s.Codes.GenerateUnique(ctx, FieldVerificationCode, VerificationCodeLen)
		if err != nil {
			return nil, err
		}
		cert := template
		cert.CertificateNumber = number
		cert.VerificationCode = code

		err = s.Store.Create(ctx, &cert)
		if err == nil {
			logger.Info().
				Str("certificate_id", cert.ID.String()).
				Str("certificate_number", cert.CertificateNumber).
				Msg("certificate created")
			s.notifyReady(ctx, &cert)
			return &cert, nil
		}
		if !errors.Is(err, ErrDuplicateCertificate) {
			return nil, err
		}

		existing, ferr := s.Store.FindByUserCourse(ctx, enr.UserID, enr.CourseID)
		if ferr == nil {
			logger.Info().Str("certificate_id", existing.ID.String()).Msg("certificate created concurrently, continuing with existing record")
			return existing, nil
		}
		if !errors.Is(ferr, ErrNotFound) {
			return nil, fmt.Errorf("re-fetch after duplicate: %w", ferr)
		}
		if attempt >= maxCreateAttempts {
			return nil, fmt.Errorf("%w: certificate codes collided %d times", ErrCodeSpaceExhausted, attempt)
		}
		logger.Warn().Int("attempt", attempt).Msg("certificate code collided on insert, drawing new codes")
	}
}

// attachAssets renders and stores assets. On failure the freshest stored record is
// returned as-is and a background heal is queued.
func (s *Service) attachAssets(ctx context.Context, cert *domain.Certificate) *domain.Certificate {
	logger := log.With().Str("certificate_id", cert.ID.String()).Str("certificate_number", cert.CertificateNumber).Logger()

	urls, err := s.Assets.RenderAssets(ctx, DataFromCertificate(cert))
	if err == nil {
		err = s.Store.UpdateAssets(ctx, cert.ID, urls.PdfURL, urls.ImageURL)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("certificate assets pending")
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackFetchTimeout)
		defer cancel()
		s.enqueueHeal(fctx, cert.ID)
		if fresh, ferr := s.Store.FindByID(fctx, cert.ID); ferr == nil {
			return fresh
		}
		return cert
	}
	cert.PdfURL = &urls.PdfURL
	cert.ImageURL = &urls.ImageURL
	logger.Info().Msg("certificate assets ready")
	return cert
}

// ListMine returns the user's certificates, healing stale assets and backfilling
// missing grade/duration along the way. Repair failures never fail the list.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]CertificateView, error) {
	certs, err := s.Store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]CertificateView, 0, len(certs))
	for i := range certs {
		cert := &certs[i]
		views = append(views, *s.view(ctx, s.heal(ctx, cert)))
	}
	return views, nil
}

func (s *Service) heal(ctx context.Context, cert *domain.Certificate) *domain.Certificate {
	if cert.Revoked() {
		return cert
	}
	logger := log.With().Str("certificate_id", cert.ID.String()).Logger()
	var enr *EnrollmentInfo
	enrollment := func() *EnrollmentInfo {
		if enr == nil {
			e, err := s.Marketplace.FindEnrollment(ctx, cert.UserID, cert.CourseID)
			if err != nil {
				logger.Warn().Err(err).Msg("enrollment lookup for certificate repair failed")
				return nil
			}
			enr = e
		}
		return enr
	}

	if !s.usable(cert) {
		if e := enrollment(); e != nil {
			healed, err := s.issue(ctx, e.EnrollmentID, nil)
			if err != nil {
				logger.Warn().Err(err).Msg("certificate repair failed")
			} else {
				cert = healed
			}
		}
	}

	if cert.Grade == nil {
		if e := enrollment(); e != nil {
			if g, err := s.Calculator.CourseGrade(ctx, e.EnrollmentID); err != nil {
				logger.Warn().Err(err).Msg("grade backfill failed")
			} else if g != nil {
				if err := s.Store.UpdateGrade(ctx, cert.ID, *g); err != nil {
					logger.Warn().Err(err).Msg("grade backfill not persisted")
				} else {
					cert.Grade = g
				}
			}
		}
	}

	if cert.DurationMinutes == nil {
		if d, err := s.Calculator.CourseDuration(ctx, cert.CourseID); err != nil {
			logger.Warn().Err(err).Msg("duration backfill failed")
		} else if d != nil {
			if err := s.Store.UpdateDuration(ctx, cert.ID, *d); err == nil {
				cert.DurationMinutes = &d.Minutes
				cert.DurationHours = &d.Hours
			}
		}
	}
	return cert
}

// GetByID returns the certificate only to its owner.
func (s *Service) GetByID(ctx context.Context, id, userID uuid.UUID) (*CertificateView, error) {
	cert, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.UserID != userID {
		return nil, ErrUnauthorized
	}
	return s.view(ctx, cert), nil
}

// Verify is the public lookup. Revoked certificates are reported as not found.
func (s *Service) Verify(ctx context.Context, code string) (*VerificationView, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	cert, err := s.Store.FindActiveByVerificationCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &VerificationView{
		ID:                cert.ID,
		CertificateNumber: cert.CertificateNumber,
		LearnerName:       cert.LearnerName,
		CourseTitle:       cert.CourseTitle,
		PartnerName:       cert.PartnerName,
		IssuedAt:          cert.IssuedAt,
		DurationHours:     cert.DurationHours,
		Grade:             cert.Grade,
		VerifiedIdentity:  cert.VerifiedIdentity,
		PdfURL:            cert.PdfURL,
		ImageURL:          cert.ImageURL,
	}, nil
}

// RegenerateAssets re-renders unconditionally and overwrites the asset URLs.
// Codes, grade and duration are left untouched. Failures are returned.
func (s *Service) RegenerateAssets(ctx context.Context, certificateID uuid.UUID) (*CertificateView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cert, err := s.Store.FindByID(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if err := s.renderAndStore(ctx, cert); err != nil {
		return nil, err
	}
	return s.view(ctx, cert), nil
}

// HealAssets regenerates only when the stored assets are no longer usable.
// Revoked certificates are left alone. It reports whether a render happened.
func (s *Service) HealAssets(ctx context.Context, certificateID uuid.UUID) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cert, err := s.Store.FindByID(ctx, certificateID)
	if err != nil {
		return false, err
	}
	if cert.Revoked() || s.usable(cert) {
		return false, nil
	}
	return true, s.renderAndStore(ctx, cert)
}

func (s *Service) renderAndStore(ctx context.Context, cert *domain.Certificate) error {
	urls, err := s.Assets.RenderAssets(ctx, DataFromCertificate(cert))
	if err != nil {
		return err
	}
	if err := s.Store.UpdateAssets(ctx, cert.ID, urls.PdfURL, urls.ImageURL); err != nil {
		return err
	}
	cert.PdfURL = &urls.PdfURL
	cert.ImageURL = &urls.ImageURL
	log.Info().Str("certificate_id", cert.ID.String()).Msg("certificate assets regenerated")
	return nil
}

// Revoke marks the certificate revoked; Verify stops returning it.
func (s *Service) Revoke(ctx context.Context, certificateID uuid.UUID) (*CertificateView, error) {
	if err := s.Store.Revoke(ctx, certificateID, s.now()); err != nil {
		return nil, err
	}
	cert, err := s.Store.FindByID(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("certificate_id", cert.ID.String()).Msg("certificate revoked")
	return s.view(ctx, cert), nil
}

// EnqueueRegenerateAll queues a forced re-render of every non-revoked certificate
// (e.g. after a template change).
func (s *Service) EnqueueRegenerateAll(ctx context.Context) (int, error) {
	if s.Queue == nil {
		return 0, fmt.Errorf("%w: regeneration queue not configured", ErrStoreUnavailable)
	}
	ids, err := s.Store.ListActiveIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	jobs := make([]RegenerationJob, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, RegenerationJob{CertificateID: id, Force: true})
	}
	if err := s.Queue.Enqueue(ctx, jobs...); err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (s *Service) enqueueHeal(ctx context.Context, id uuid.UUID) {
	if s.Queue == nil {
		return
	}
	if err := s.Queue.Enqueue(ctx, RegenerationJob{CertificateID: id}); err != nil {
		log.Warn().Err(err).Str("certificate_id", id.String()).Msg("could not queue certificate repair")
	}
}

// notifyReady delivers the "certificate ready" notification in the background, detached
// from the issuance deadline. Failures are logged only.
func (s *Service) notifyReady(ctx context.Context, cert *domain.Certificate) {
	if s.Notifier == nil {
		return
	}
	n := Notification{
		Type:       NotificationTypeCertificateReady,
		Title:      "Your certificate is ready",
		Message:    fmt.Sprintf("Congratulations on completing %s! Your certificate is now available.", cert.CourseTitle),
		ActionText: "View certificate",
		Link:       "/certificates/" + cert.ID.String(),
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	certID, userID := cert.ID, cert.UserID

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := s.Notifier.SendNotification(nctx, userID, n); err != nil {
			log.Warn().Err(err).Str("certificate_id", certID.String()).Msg("certificate notification failed")
		}
	}()
}

// WaitNotifications blocks until every in-flight notification has finished.
func (s *Service) WaitNotifications() {
	s.notifications.Wait()
}

func (s *Service) view(ctx context.Context, cert *domain.Certificate) *CertificateView {
	v := &CertificateView{Certificate: *cert, VerificationURL: s.VerifyBaseURL + "/" + cert.VerificationCode}
	course, err := s.Marketplace.GetCourseWithInstructor(ctx, cert.CourseID)
	if err != nil {
		log.Debug().Err(err).Str("course_id", cert.CourseID.String()).Msg("course summary unavailable")
		return v
	}
	v.Course = &CourseSummary{
		CourseID:       course.CourseID,
		Title:          course.Title,
		Slug:           course.Slug,
		ThumbnailURL:   course.ThumbnailURL,
		InstructorName: course.InstructorName,
	}
	return v
}

func (s *Service) usable(cert *domain.Certificate) bool {
	return CertificateAssetsUsable(cert, s.LocalExists)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.IssueTimeout > 0 {
		return context.WithTimeout(ctx, s.IssueTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
