package certificates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ResourceKind tells the object store how to classify an upload.
type ResourceKind string

const (
	ResourceRaw   ResourceKind = "raw"
	ResourceImage ResourceKind = "image"
)

// ObjectStore uploads a local file under key and returns its durable URL.
type ObjectStore interface {
	Upload(ctx context.Context, key string, kind ResourceKind, localPath string) (string, error)
}

// Rendered holds the two exports taken from one loaded page.
type Rendered struct {
	PDF []byte
	PNG []byte
}

// RenderEngine loads an HTML file in an isolated engine instance and exports it.
// Launch failures wrap ErrRenderEngineUnavailable.
type RenderEngine interface {
	Render(ctx context.Context, htmlPath string) (*Rendered, error)
}

// AssetURLs are the durable locations of a certificate's artifacts.
type AssetURLs struct {
	PdfURL   string `json:"pdf_url"`
	ImageURL string `json:"image_url"`
}

// AssetPipeline renders a certificate to PDF + PNG and uploads both.
type AssetPipeline struct {
	Templates     *TemplateRenderer
	Engine        RenderEngine
	Storage       ObjectStore
	ScratchDir    string
	StorageFolder string
	UploadTimeout time.Duration
}

// ObjectKey is the deterministic storage key for a certificate artifact.
func (p *AssetPipeline) ObjectKey(certificateNumber, ext string) string {
	name := fmt.Sprintf("certificate_%s.%s", certificateNumber, ext)
	if p.StorageFolder == "" {
		return name
	}
	return path.Join(p.StorageFolder, name)
}

// RenderAssets runs the full pipeline. Engine, export and upload failures are
// returned wrapped in ErrRenderFailed.
func (p *AssetPipeline) RenderAssets(ctx context.Context, data CertificateData) (*AssetURLs, error) {
	logger := log.With().Str("certificate_number", data.CertificateNumber).Logger()

	if err := os.MkdirAll(p.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %w", ErrRenderFailed, err)
	}

	html, err := p.Templates.RenderHTML(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	// Invocation-unique names so concurrent regenerations of one certificate never collide.
	base := filepath.Join(p.ScratchDir, fmt.Sprintf("certificate_%s_%s", data.CertificateNumber, uuid.NewString()))
	htmlPath, pdfPath, pngPath := base+".html", base+".pdf", base+".png"
	defer removeScratch(htmlPath, pdfPath, pngPath)

	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return nil, fmt.Errorf("%w: write html: %w", ErrRenderFailed, err)
	}

	start := time.Now()
	out, err := p.Engine.Render(ctx, htmlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	if len(out.PDF) == 0 || len(out.PNG) == 0 {
		return nil, fmt.Errorf("%w: engine produced an empty artifact", ErrRenderFailed)
	}
	logger.Debug().Int64("ms", time.Since(start).Milliseconds()).Int("pdf_bytes", len(out.PDF)).Int("png_bytes", len(out.PNG)).Msg("certificate rendered")

	if err := os.WriteFile(pdfPath, out.PDF, 0o644); err != nil {
		return nil, fmt.Errorf("%w: write pdf: %w", ErrRenderFailed, err)
	}
	if err := os.WriteFile(pngPath, out.PNG, 0o644); err != nil {
		return nil, fmt.Errorf("%w: write png: %w", ErrRenderFailed, err)
	}

	urls, err := p.upload(ctx, data.CertificateNumber, pdfPath, pngPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	return urls, nil
}

// upload sends both artifacts concurrently under a bounded timeout.
func (p *AssetPipeline) upload(ctx context.Context, number, pdfPath, pngPath string) (*AssetURLs, error) {
	if p.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.UploadTimeout)
		defer cancel()
	}
	var urls AssetURLs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := p.Storage.Upload(gctx, p.ObjectKey(number, "pdf"), ResourceRaw, pdfPath)
		if err != nil {
			return fmt.Errorf("upload pdf: %w", err)
		}
		urls.PdfURL = u
		return nil
	})
	g.Go(func() error {
		u, err := p.Storage.Upload(gctx, p.ObjectKey(number, "png"), ResourceImage, pngPath)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		urls.ImageURL = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &urls, nil
}

// removeScratch deletes local temporaries; failures are logged, never returned.
func removeScratch(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", p).Msg("scratch cleanup failed")
		}
	}
}
