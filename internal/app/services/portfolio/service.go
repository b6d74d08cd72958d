package portfolio

import (
	"context"
	"html"
	"strings"

	"github.com/google/uuid"

	"github.com/R3E-Network/canvas/internal/app/access"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	domain "github.com/R3E-Network/canvas/internal/app/domain/portfolio"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/storage"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

// Service builds the portfolio dashboard.
type Service struct {
	store storage.PortfolioStore
	log   *logging.Logger
}

// New creates a portfolio service.
func New(store storage.PortfolioStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("portfolio")
	}
	return &Service{store: store, log: log}
}

// FilterInput holds raw filter values as received from a query string.
type FilterInput struct {
	Lanes          []string
	GMIDs          []string
	HealthStatuses []string
}

// ParseFilters validates raw filter values. Empty entries are ignored.
func ParseFilters(in FilterInput) (domain.Filters, error) {
	var f domain.Filters
	for _, raw := range in.Lanes {
		lane := canvas.LifecycleLane(strings.ToLower(strings.TrimSpace(raw)))
		if lane == "" {
			continue
		}
		if !lane.Valid() {
			return domain.Filters{}, apperrors.InvalidFormat("lane", "unknown lifecycle lane '"+raw+"'")
		}
		f.Lanes = append(f.Lanes, lane)
	}
	for _, raw := range in.GMIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return domain.Filters{}, apperrors.InvalidFormat("gm_id", "must be a UUID")
		}
		f.GMIDs = append(f.GMIDs, parsed.String())
	}
	for _, raw := range in.HealthStatuses {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		h, ok := parseHealth(v)
		if !ok {
			return domain.Filters{}, apperrors.InvalidFormat("health_status", "unknown health status '"+raw+"'")
		}
		f.HealthStatuses = append(f.HealthStatuses, h)
	}
	return f, nil
}

// Summary returns one row per VBU visible to actor, ordered by name.
func (s *Service) Summary(ctx context.Context, actor user.User, in FilterInput) ([]domain.Summary, error) {
	filters, err := ParseFilters(in)
	if err != nil {
		return nil, err
	}
	scope := access.ScopeFor(actor)
	rows, err := s.store.PortfolioSummary(ctx, domain.Query{
		Filters:            filters,
		ScopeGMID:          scope.GMID,
		ScopeGroupLeaderID: scope.GroupLeaderID,
		ScopeVBUID:         scope.VBUID,
	})
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	showNotes := access.CanSeePortfolioNotes(actor)
	out := make([]domain.Summary, 0, len(rows))
	for _, r := range rows {
		if r.HealthIndicator == "" {
			r.HealthIndicator = canvas.HealthNotStarted
		}
		if !showNotes {
			r.PortfolioNotes = nil
		}
		out = append(out, r)
	}
	return out, nil
}

// Notes returns the portfolio-wide notes, HTML-escaped. Admin only.
func (s *Service) Notes(ctx context.Context, actor user.User) (domain.Notes, error) {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return domain.Notes{}, err
	}
	n, err := s.store.GetPortfolioNotes(ctx)
	if err != nil {
		return domain.Notes{}, apperrors.Internal("", err)
	}
	return escapeNotes(n), nil
}

// UpdateNotes replaces the portfolio-wide notes. The text is stored as
// entered, so the length limit matches the column, and is escaped on the way
// out. Admin only.
func (s *Service) UpdateNotes(ctx context.Context, actor user.User, notes *string) (domain.Notes, error) {
	if err := access.RequireAdmin(actor, ""); err != nil {
		return domain.Notes{}, err
	}
	if notes != nil && len([]rune(*notes)) > domain.MaxNotesLen {
		return domain.Notes{}, apperrors.InvalidFormat("notes", "must be at most 10000 characters")
	}
	actorID := actor.ID
	n, err := s.store.UpdatePortfolioNotes(ctx, domain.Notes{Notes: notes, UpdatedBy: &actorID})
	if err != nil {
		return domain.Notes{}, apperrors.Internal("", err)
	}
	s.log.WithContext(ctx).Info("portfolio notes updated")
	return escapeNotes(n), nil
}

func escapeNotes(n domain.Notes) domain.Notes {
	if n.Notes != nil {
		escaped := html.EscapeString(*n.Notes)
		n.Notes = &escaped
	}
	return n
}

func parseHealth(raw string) (canvas.Health, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(raw), "_", " ")
	for _, h := range canvas.Healths {
		if strings.ToLower(string(h)) == normalized {
			return h, true
		}
	}
	return "", false
}
