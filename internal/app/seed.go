package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/services/canvases"
	"github.com/R3E-Network/canvas/internal/app/services/users"
	"github.com/R3E-Network/canvas/internal/app/services/vbus"
	"github.com/R3E-Network/canvas/internal/config"
)

// SeedResult counts what Seed created and what already existed.
type SeedResult struct {
	UsersCreated int `json:"users_created"`
	UsersSkipped int `json:"users_skipped"`
	VBUsCreated  int `json:"vbus_created"`
	VBUsSkipped  int `json:"vbus_skipped"`
}

// Seed creates the users and VBUs in seed that do not exist yet. Users are
// matched by email and VBUs by name, so running it twice is harmless.
func (a *Application) Seed(ctx context.Context, seed *config.SeedFile) (SeedResult, error) {
	var res SeedResult
	bootstrap := user.User{Role: user.RoleAdmin}

	existing, err := a.Users.List(ctx, bootstrap)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}
	byEmail := make(map[string]user.User, len(existing))
	for _, u := range existing {
		byEmail[u.Email] = u
	}

	for _, su := range seed.Users {
		email := user.NormalizeEmail(su.Email)
		if _, ok := byEmail[email]; ok {
			res.UsersSkipped++
			continue
		}
		created, err := a.Users.Register(ctx, bootstrap, users.RegisterInput{
			Email:    email,
			Password: su.Password,
			Name:     su.Name,
			Role:     su.Role,
		})
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", email, err)
		}
		byEmail[email] = created
		res.UsersCreated++
		a.log.WithContext(ctx).WithField("email", email).Info("seeded user")
	}

	if len(seed.VBUs) == 0 {
		return res, nil
	}
	var actor user.User
	for _, u := range byEmail {
		if u.IsAdmin() && u.IsActive {
			actor = u
			break
		}
	}
	if actor.ID == "" {
		return res, fmt.Errorf("seeding VBUs requires an active admin user")
	}

	names, err := a.vbuNames(ctx, actor)
	if err != nil {
		return res, err
	}
	for _, sv := range seed.VBUs {
		name := strings.TrimSpace(sv.Name)
		if names[name] {
			res.VBUsSkipped++
			continue
		}
		gm, ok := byEmail[user.NormalizeEmail(sv.GMEmail)]
		if !ok {
			return res, fmt.Errorf("seed vbu %s: unknown gm %s", name, sv.GMEmail)
		}
		in := vbus.CreateInput{Name: name, GMID: gm.ID}
		if sv.GroupLeaderEmail != "" {
			gl, ok := byEmail[user.NormalizeEmail(sv.GroupLeaderEmail)]
			if !ok {
				return res, fmt.Errorf("seed vbu %s: unknown group leader %s", name, sv.GroupLeaderEmail)
			}
			in.GroupLeaderID = &gl.ID
		}
		v, err := a.VBUs.Create(ctx, actor, in)
		if err != nil {
			return res, fmt.Errorf("seed vbu %s: %w", name, err)
		}

		var patch canvases.Patch
		if sv.ProductName != "" {
			patch.ProductName = &sv.ProductName
		}
		if sv.LifecycleLane != "" {
			patch.LifecycleLane = &sv.LifecycleLane
		}
		if patch.ProductName != nil || patch.LifecycleLane != nil {
			if _, err := a.Canvases.Update(ctx, actor, v.ID, patch); err != nil {
				return res, fmt.Errorf("seed canvas for %s: %w", name, err)
			}
		}
		names[name] = true
		res.VBUsCreated++
		a.log.WithContext(ctx).WithField("vbu", name).Info("seeded vbu")
	}
	return res, nil
}

func (a *Application) vbuNames(ctx context.Context, actor user.User) (map[string]bool, error) {
	names := make(map[string]bool)
	for page := 1; ; page++ {
		list, total, err := a.VBUs.List(ctx, actor, page, vbus.MaxPerPage)
		if err != nil {
			return nil, fmt.Errorf("list vbus: %w", err)
		}
		for _, v := range list {
			names[v.Name] = true
		}
		if len(list) == 0 || page*vbus.MaxPerPage >= total {
			return names, nil
		}
	}
}
