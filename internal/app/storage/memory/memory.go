package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/portfolio"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu          sync.RWMutex
	lastStamp   time.Time
	users       map[string]user.User
	vbus        map[string]vbu.VBU
	canvases    map[string]canvas.Canvas
	categories  map[string]canvas.Category
	theses      map[string]canvas.Thesis
	proofPoints map[string]canvas.ProofPoint
	attachments map[string]attachment.Attachment
	reviews     map[string]review.MonthlyReview
	notes       portfolio.Notes
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.VBUStore = (*Store)(nil)
var _ storage.CanvasStore = (*Store)(nil)
var _ storage.AttachmentStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.PortfolioStore = (*Store)(nil)

// New creates an empty store seeded with the default thesis categories.
func New() *Store {
	s := &Store{
		users:       make(map[string]user.User),
		vbus:        make(map[string]vbu.VBU),
		canvases:    make(map[string]canvas.Canvas),
		categories:  make(map[string]canvas.Category),
		theses:      make(map[string]canvas.Thesis),
		proofPoints: make(map[string]canvas.ProofPoint),
		attachments: make(map[string]attachment.Attachment),
		reviews:     make(map[string]review.MonthlyReview),
	}
	for _, cat := range canvas.DefaultCategories {
		cat.ID = uuid.NewString()
		s.categories[cat.ID] = cat
	}
	return s
}

// nowLocked returns a strictly increasing timestamp so creation order is
// stable even when the clock does not advance between writes.
func (s *Store) nowLocked() time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = now
	return now
}

// UserStore implementation -------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = user.NormalizeEmail(u.Email)
	if _, ok := s.userByEmailLocked(u.Email); ok {
		return user.User{}, storage.ErrConflict
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, storage.ErrConflict
	}

	now := s.nowLocked()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.Email = user.NormalizeEmail(u.Email)
	if other, ok := s.userByEmailLocked(u.Email); ok && other.ID != u.ID {
		return user.User{}, storage.ErrConflict
	}

	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = s.nowLocked()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.userByEmailLocked(user.NormalizeEmail(email))
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	for _, v := range s.vbus {
		if v.GMID == id {
			return storage.ErrConflict
		}
	}
	for vid, v := range s.vbus {
		if v.GroupLeaderID != nil && *v.GroupLeaderID == id {
			v.GroupLeaderID = nil
			s.vbus[vid] = v
		}
	}
	delete(s.users, id)
	return nil
}

func (s *Store) userByEmailLocked(email string) (user.User, bool) {
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return user.User{}, false
}

// VBUStore implementation --------------------------------------------------

func (s *Store) CreateVBU(_ context.Context, v vbu.VBU, c canvas.Canvas) (vbu.VBU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[v.GMID]; !ok {
		return vbu.VBU{}, storage.ErrNotFound
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := s.nowLocked()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.vbus[v.ID] = v

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.LifecycleLane == "" {
		c.LifecycleLane = canvas.LaneBuild
	}
	c.VBUID = v.ID
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Theses = nil
	s.canvases[c.ID] = c

	return s.decorateVBULocked(v), nil
}

func (s *Store) UpdateVBU(_ context.Context, v vbu.VBU) (vbu.VBU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.vbus[v.ID]
	if !ok {
		return vbu.VBU{}, storage.ErrNotFound
	}
	if _, ok := s.users[v.GMID]; !ok {
		return vbu.VBU{}, storage.ErrNotFound
	}
	v.CreatedAt = original.CreatedAt
	v.UpdatedAt = s.nowLocked()
	s.vbus[v.ID] = v
	return s.decorateVBULocked(v), nil
}

func (s *Store) GetVBU(_ context.Context, id string) (vbu.VBU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vbus[id]
	if !ok {
		return vbu.VBU{}, storage.ErrNotFound
	}
	return s.decorateVBULocked(v), nil
}

func (s *Store) ListVBUs(_ context.Context, filter storage.VBUFilter) ([]vbu.VBU, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []vbu.VBU
	for _, v := range s.vbus {
		if !vbuInScope(v, filter.GMID, filter.GroupLeaderID, filter.VBUID) {
			continue
		}
		matched = append(matched, s.decorateVBULocked(v))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name == matched[j].Name {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Name < matched[j].Name
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return append([]vbu.VBU(nil), matched[start:end]...), total, nil
}

func (s *Store) DeleteVBU(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vbus[id]; !ok {
		return storage.ErrNotFound
	}
	for cid, c := range s.canvases {
		if c.VBUID != id {
			continue
		}
		for tid, t := range s.theses {
			if t.CanvasID == cid {
				s.deleteThesisLocked(tid)
			}
		}
		for rid, r := range s.reviews {
			if r.CanvasID == cid {
				delete(s.reviews, rid)
			}
		}
		for aid, a := range s.attachments {
			if a.CanvasID == cid {
				delete(s.attachments, aid)
			}
		}
		delete(s.canvases, cid)
	}
	delete(s.vbus, id)
	return nil
}

func (s *Store) decorateVBULocked(v vbu.VBU) vbu.VBU {
	if gm, ok := s.users[v.GMID]; ok {
		v.GMName = gm.Name
	}
	return v
}

func vbuInScope(v vbu.VBU, gmID, groupLeaderID, vbuID string) bool {
	if gmID != "" && v.GMID != gmID {
		return false
	}
	if groupLeaderID != "" && (v.GroupLeaderID == nil || *v.GroupLeaderID != groupLeaderID) {
		return false
	}
	if vbuID != "" && v.ID != vbuID {
		return false
	}
	return true
}
