// Package pdf renders a VBU canvas to a printable PDF.
package pdf

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/R3E-Network/canvas/internal/app/access"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/metrics"
	"github.com/R3E-Network/canvas/internal/app/services/canvases"
	"github.com/R3E-Network/canvas/internal/app/services/reviews"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{3,8}$`)

var pageTemplate = template.Must(template.New("canvas.html.tmpl").Funcs(template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"statusLabel": func(s canvas.ProofPointStatus) string {
		return strings.ReplaceAll(string(s), "_", " ")
	},
	"safeColor": func(c string) template.CSS {
		if hexColor.MatchString(c) {
			return template.CSS(c)
		}
		return template.CSS("#e4e7eb")
	},
}).ParseFS(templateFS, "templates/canvas.html.tmpl"))

// Renderer converts an HTML document to PDF bytes.
type Renderer interface {
	Render(ctx context.Context, html []byte) ([]byte, error)
}

// Service exports canvases.
type Service struct {
	canvases *canvases.Service
	reviews  *reviews.Service
	renderer Renderer
	log      *logging.Logger
	now      func() time.Time
}

// New creates a PDF export service.
func New(canvasSvc *canvases.Service, reviewSvc *reviews.Service, renderer Renderer, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("pdf")
	}
	return &Service{canvases: canvasSvc, reviews: reviewSvc, renderer: renderer, log: log, now: time.Now}
}

// Document is the rendered file.
type Document struct {
	Filename string
	Content  []byte
}

type pageData struct {
	VBU              vbu.VBU
	Canvas           canvas.Canvas
	Review           *review.MonthlyReview
	Lane             string
	Health           canvas.Health
	HealthClass      string
	CurrentlyTesting string
	GeneratedAt      time.Time
}

// Export renders the canvas of vbuID. Callers without read access see the
// same 404 as for a missing VBU.
func (s *Service) Export(ctx context.Context, actor user.User, vbuID string) (Document, error) {
	t, err := s.canvases.ResolveVBU(ctx, vbuID)
	if err != nil {
		return Document{}, err
	}
	if !access.CanRead(actor, t.VBU) {
		return Document{}, apperrors.NotFound("VBU")
	}

	html, err := s.RenderHTML(ctx, t)
	if err != nil {
		return Document{}, err
	}

	start := time.Now()
	out, err := s.renderer.Render(ctx, html)
	metrics.RecordPDFExport(time.Since(start), err == nil)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("vbu_id", vbuID).Error("render pdf")
		return Document{}, apperrors.Internal("PDF generation failed", err)
	}
	return Document{Filename: Filename(t.VBU.Name), Content: out}, nil
}

// RenderHTML builds the printable HTML document for a resolved canvas.
func (s *Service) RenderHTML(ctx context.Context, t canvases.Target) ([]byte, error) {
	tree, err := s.canvases.Tree(ctx, t.Canvas)
	if err != nil {
		return nil, err
	}
	latest, err := s.reviews.Latest(ctx, t.Canvas.ID)
	if err != nil {
		return nil, err
	}

	health := tree.EffectiveHealth()
	data := pageData{
		VBU:         t.VBU,
		Canvas:      tree,
		Review:      latest,
		Lane:        laneLabel(tree.LifecycleLane),
		Health:      health,
		HealthClass: "health-" + strings.ReplaceAll(strings.ToLower(string(health)), " ", "-"),
		GeneratedAt: s.now(),
	}
	data.CurrentlyTesting = currentlyTesting(tree)

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, apperrors.Internal("PDF generation failed", err)
	}
	return buf.Bytes(), nil
}

// Filename is the download name for a VBU's canvas export.
func Filename(vbuName string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\\' || r == '/' || r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, strings.TrimSpace(vbuName))
	if name == "" {
		name = "vbu"
	}
	return name + "_canvas.pdf"
}

func laneLabel(l canvas.LifecycleLane) string {
	if l == "" {
		return ""
	}
	return strings.ToUpper(string(l[:1])) + string(l[1:])
}

func currentlyTesting(c canvas.Canvas) string {
	if c.CurrentlyTestingType == nil || c.CurrentlyTestingID == nil {
		return ""
	}
	for _, t := range c.Theses {
		if *c.CurrentlyTestingType == canvas.TestingThesis && t.ID == *c.CurrentlyTestingID {
			return t.Text
		}
		for _, pp := range t.ProofPoints {
			if *c.CurrentlyTestingType == canvas.TestingProofPoint && pp.ID == *c.CurrentlyTestingID {
				return pp.Description
			}
		}
	}
	return ""
}
