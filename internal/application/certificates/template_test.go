package certificates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coursecert-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() CertificateData {
	return CertificateData{
		CertificateNumber: "AbC123xYz789",
		VerificationCode:  "VeRiFy0123456789",
		LearnerName:       "Grace <Hopper>",
		CourseTitle:       "Compilers 101",
		IssuedAt:          time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
		DurationHours:     ptr(1.5),
		Grade:             ptr(92.25),
	}
}

func TestRenderHTML_BindsFields(t *testing.T) {
	r := &TemplateRenderer{VerifyBaseURL: "https://verify.example.com", PlatformName: "Coursely"}
	html, err := r.RenderHTML(sampleData())
	require.NoError(t, err)

	assert.Contains(t, html, "Grace &lt;Hopper&gt;")
	assert.Contains(t, html, "Compilers 101")
	assert.Contains(t, html, "March 14, 2024")
	assert.Contains(t, html, "AbC123xYz789")
	assert.Contains(t, html, "https://verify.example.com/VeRiFy0123456789")
	assert.Contains(t, html, "1.5 hours")
	assert.Contains(t, html, "Grade 92.25%")
	// no partner: platform name stands in
	assert.Contains(t, html, `<div class="partner">Coursely</div>`)
	assert.NotContains(t, html, `class="seal"`)
}

func TestRenderHTML_OptionalFieldsOmitted(t *testing.T) {
	r := &TemplateRenderer{VerifyBaseURL: "https://verify.example.com", PlatformName: "Coursely"}
	data := sampleData()
	data.DurationHours = nil
	data.Grade = nil
	data.PartnerName = ptr("Babbage Institute")

	html, err := r.RenderHTML(data)
	require.NoError(t, err)
	assert.NotContains(t, html, " hours<")
	assert.NotContains(t, html, "Grade ")
	assert.Contains(t, html, "Babbage Institute")
}

func TestRenderHTML_InlinesLogo(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "seal.png")
	// PNG signature is enough for content sniffing
	require.NoError(t, os.WriteFile(logo, []byte("\x89PNG\r\n\x1a\n0000"), 0o644))

	r := &TemplateRenderer{VerifyBaseURL: "https://verify.example.com", PlatformName: "Coursely", LogoPath: logo}
	html, err := r.RenderHTML(sampleData())
	require.NoError(t, err)
	assert.Contains(t, html, `src="data:image/png;base64,`)
	assert.False(t, strings.Contains(html, dir), "logo must not be referenced by path")
}

func TestRenderHTML_MissingLogoStillRenders(t *testing.T) {
	r := &TemplateRenderer{VerifyBaseURL: "https://verify.example.com", PlatformName: "Coursely", LogoPath: "/nonexistent/seal.png"}
	html, err := r.RenderHTML(sampleData())
	require.NoError(t, err)
	assert.NotContains(t, html, `class="seal"`)
}

func TestDataFromCertificate_UsesSnapshot(t *testing.T) {
	cert := &domain.Certificate{
		CertificateNumber: "N",
		VerificationCode:  "V",
		LearnerName:       "Frozen Name",
		CourseTitle:       "Frozen Title",
		PartnerName:       ptr("Partner"),
		DurationHours:     ptr(2.0),
	}
	d := DataFromCertificate(cert)
	assert.Equal(t, "Frozen Name", d.LearnerName)
	assert.Equal(t, "Frozen Title", d.CourseTitle)
	assert.Equal(t, "Partner", *d.PartnerName)
	assert.Nil(t, d.Grade)
}
