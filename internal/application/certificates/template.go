package certificates

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"coursecert-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

//go:embed templates/certificate.html.tmpl
var templateFS embed.FS

var certificateTemplate = template.Must(template.ParseFS(templateFS, "templates/certificate.html.tmpl"))

const issueDateLayout = "January 2, 2006"

// CertificateData is everything the template and asset pipeline need. It is built
// from the stored snapshot fields, never from live course or user state.
type CertificateData struct {
	CertificateID     uuid.UUID
	CertificateNumber string
	VerificationCode  string
	LearnerName       string
	CourseTitle       string
	PartnerName       *string
	IssuedAt          time.Time
	DurationHours     *float64
	Grade             *float64
}

// DataFromCertificate copies the snapshot fields of a stored certificate.
func DataFromCertificate(c *domain.Certificate) CertificateData {
	return CertificateData{
		CertificateID:     c.ID,
		CertificateNumber: c.CertificateNumber,
		VerificationCode:  c.VerificationCode,
		LearnerName:       c.LearnerName,
		CourseTitle:       c.CourseTitle,
		PartnerName:       c.PartnerName,
		IssuedAt:          c.IssuedAt,
		DurationHours:     c.DurationHours,
		Grade:             c.Grade,
	}
}

type templateView struct {
	PlatformName      string
	LearnerName       string
	CourseTitle       string
	PartnerName       string
	IssuedOn          string
	CertificateNumber string
	VerificationCode  string
	VerificationURL   string
	DurationHours     string
	Grade             string
	LogoDataURI       template.URL
}

// TemplateRenderer binds certificate data into a standalone HTML document.
// The optional seal is inlined as a data URI so the headless renderer never hits the network.
type TemplateRenderer struct {
	VerifyBaseURL string
	PlatformName  string
	LogoPath      string

	logoOnce sync.Once
	logoURI  template.URL
}

// VerificationURL is <base>/<code>.
func (r *TemplateRenderer) VerificationURL(code string) string {
	return r.VerifyBaseURL + "/" + code
}

// RenderHTML renders the certificate document.
func (r *TemplateRenderer) RenderHTML(data CertificateData) (string, error) {
	partner := r.PlatformName
	if data.PartnerName != nil && *data.PartnerName != "" {
		partner = *data.PartnerName
	}
	view := templateView{
		PlatformName:      r.PlatformName,
		LearnerName:       data.LearnerName,
		CourseTitle:       data.CourseTitle,
		PartnerName:       partner,
		IssuedOn:          data.IssuedAt.Format(issueDateLayout),
		CertificateNumber: data.CertificateNumber,
		VerificationCode:  data.VerificationCode,
		VerificationURL:   r.VerificationURL(data.VerificationCode),
		LogoDataURI:       r.logo(),
	}
	if data.DurationHours != nil {
		view.DurationHours = strconv.FormatFloat(*data.DurationHours, 'f', -1, 64)
	}
	if data.Grade != nil {
		view.Grade = strconv.FormatFloat(*data.Grade, 'f', -1, 64)
	}

	var buf bytes.Buffer
	if err := certificateTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render certificate template: %w", err)
	}
	return buf.String(), nil
}

// logo loads the seal image once. A missing or unreadable file renders without a seal.
func (r *TemplateRenderer) logo() template.URL {
	r.logoOnce.Do(func() {
		if r.LogoPath == "" {
			return
		}
		b, err := os.ReadFile(r.LogoPath)
		if err != nil {
			log.Warn().Err(err).Str("path", r.LogoPath).Msg("certificate logo unavailable, rendering without seal")
			return
		}
		mime := http.DetectContentType(b)
		r.logoURI = template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b))
	})
	return r.logoURI
}
