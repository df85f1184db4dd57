// internal/app/system/seeding/seeding.go
package seeding

import (
	"context"
	"time"

	menustore "github.com/dalemusser/stratawiki/internal/app/store/menus"
	pagestore "github.com/dalemusser/stratawiki/internal/app/store/pages"
	userstore "github.com/dalemusser/stratawiki/internal/app/store/users"
	"github.com/dalemusser/stratawiki/internal/domain/menutree"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.uber.org/zap"
)

// SystemAdminExternalID identifies the user that owns seeded content.
const SystemAdminExternalID = "system:admin"

// Stores are the stores seeding writes through.
type Stores struct {
	Users *userstore.Store
	Pages *pagestore.Store
	Menus *menustore.Store
}

type seedPage struct {
	slug    string
	title   string
	content string
}

var defaultPages = []seedPage{
	{
		slug:  models.PageSlugHome,
		title: "Home",
		content: `# Welcome to the wiki

This wiki collects everything the community knows about the server.

## What you can do
- Create, edit and delete pages
- Arrange the navigation menu
- Sign in with your community account
- Manage member roles`,
	},
	{
		slug:  models.PageSlugRules,
		title: "Server Rules",
		content: `# Server Rules

## General
1. Treat other players with respect
2. Griefing is not allowed
3. Do not use cheats or hacks

## Building
1. Do not build on someone else's land without permission
2. Ask before building in public areas`,
	},
}

// SeedAll creates the system admin, the default pages and their menu
// entries when the wiki has no pages yet. A wiki that already has content
// is left alone.
func SeedAll(ctx context.Context, s Stores, logger *zap.Logger) error {
	n, err := s.Pages.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Debug("pages present, skipping seed", zap.Int64("pages", n))
		return nil
	}

	admin, err := s.Users.RecordLogin(ctx, models.ExternalIdentity{
		ExternalID:  SystemAdminExternalID,
		DisplayName: "System Admin",
	}, models.RoleAdmin, time.Now().UTC())
	if err != nil {
		logger.Error("failed to seed system admin", zap.Error(err))
		return err
	}

	for _, sp := range defaultPages {
		page, err := s.Pages.Create(ctx, pagestore.CreateInput{
			Title:   sp.title,
			Slug:    sp.slug,
			Content: sp.content,
		}, admin.ID)
		if err != nil {
			logger.Error("failed to seed page", zap.String("slug", sp.slug), zap.Error(err))
			return err
		}
		slug := page.Slug
		if _, err := s.Menus.Create(ctx, menustore.CreateInput{
			Title:    page.Title,
			PageSlug: &slug,
			Position: menutree.Append,
		}); err != nil {
			logger.Error("failed to seed menu entry", zap.String("slug", sp.slug), zap.Error(err))
			return err
		}
		logger.Info("seeded default page", zap.String("slug", page.Slug))
	}
	return nil
}
