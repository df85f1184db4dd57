package seeding

import (
	"testing"

	menustore "github.com/dalemusser/stratawiki/internal/app/store/menus"
	pagestore "github.com/dalemusser/stratawiki/internal/app/store/pages"
	revisionstore "github.com/dalemusser/stratawiki/internal/app/store/revisions"
	userstore "github.com/dalemusser/stratawiki/internal/app/store/users"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/dalemusser/stratawiki/internal/testutil"
	"go.uber.org/zap"
)

func TestSeedAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	menus := menustore.New(db, nil, nil)
	s := Stores{
		Users: userstore.New(db),
		Pages: pagestore.New(db, revisionstore.New(db), menus, pagestore.Config{}, nil),
		Menus: menus,
	}

	if err := SeedAll(ctx, s, zap.NewNop()); err != nil {
		t.Fatalf("SeedAll() error = %v", err)
	}

	admin, err := s.Users.GetByExternalID(ctx, SystemAdminExternalID)
	if err != nil {
		t.Fatalf("system admin missing: %v", err)
	}
	if admin.Role != models.RoleAdmin {
		t.Errorf("admin role = %q", admin.Role)
	}

	home, err := s.Pages.GetBySlug(ctx, models.PageSlugHome)
	if err != nil {
		t.Fatalf("home page missing: %v", err)
	}
	if home.AuthorID != admin.ID {
		t.Error("home page not owned by system admin")
	}
	if hist, _ := s.Pages.History(ctx, home.ID); len(hist) != 1 {
		t.Errorf("home history = %d revisions, want 1", len(hist))
	}

	trees, err := menus.ListTree(ctx, menustore.TreeFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(trees) != 2 || *trees[0].PageSlug != models.PageSlugHome || *trees[1].PageSlug != models.PageSlugRules {
		t.Errorf("menu = %+v", trees)
	}

	// Second run is a no-op.
	if err := SeedAll(ctx, s, zap.NewNop()); err != nil {
		t.Fatalf("second SeedAll() error = %v", err)
	}
	if n, _ := s.Pages.Count(ctx); n != 2 {
		t.Errorf("pages after reseed = %d, want 2", n)
	}
}
