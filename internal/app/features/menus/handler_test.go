package menus

import (
	"net/http"
	"testing"

	menustore "github.com/dalemusser/stratawiki/internal/app/store/menus"
	"github.com/dalemusser/stratawiki/internal/app/system/authz"
	"github.com/dalemusser/stratawiki/internal/domain/menutree"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/dalemusser/stratawiki/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

type fixture struct {
	router http.Handler
}

func setup(t *testing.T, policy authz.Policy) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := db.Collection("pages").InsertOne(ctx, bson.M{"slug": "rules", "slug_ci": "rules", "title": "Rules"}); err != nil {
		t.Fatalf("seed page: %v", err)
	}

	r := chi.NewRouter()
	r.Mount("/api/menus", Routes(NewHandler(menustore.New(db, nil, logger), nil, logger), policy))
	return fixture{router: r}
}

func (f fixture) do(req *http.Request, u *models.User) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, testutil.WithUser(req, u))
	return rec
}

func (f fixture) create(t *testing.T, body map[string]any) models.MenuNode {
	t.Helper()
	rec := f.do(testutil.NewJSONRequest(http.MethodPost, "/api/menus", body), testutil.EditorUser())
	rec.AssertStatus(t, http.StatusCreated)
	var n models.MenuNode
	rec.DecodeJSON(t, &n)
	return n
}

func (f fixture) tree(t *testing.T, target string, u *models.User) []menutree.Tree {
	t.Helper()
	rec := f.do(testutil.NewRequest(http.MethodGet, target), u)
	rec.AssertStatus(t, http.StatusOK)
	var out treeResponse
	rec.DecodeJSON(t, &out)
	return out.Menu
}

func titles(trees []menutree.Tree) []string {
	out := make([]string, 0, len(trees))
	for _, t := range trees {
		out = append(out, t.Title)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCreateAndTree(t *testing.T) {
	f := setup(t, authz.Policy{AllowAnonymousRead: true})

	guides := f.create(t, map[string]any{"title": "Guides"})
	f.create(t, map[string]any{"title": "Rules", "page_slug": "RULES", "parent_id": guides.ID.Hex()})
	f.create(t, map[string]any{"title": "FAQ", "parent_id": guides.ID.Hex(), "position": 0})
	f.create(t, map[string]any{"title": "Tools", "parent_id": guides.ID.Hex(), "position": -1})
	f.create(t, map[string]any{"title": "Hidden", "is_active": false})

	menu := f.tree(t, "/api/menus", nil)
	if got := titles(menu); !equal(got, []string{"Guides"}) {
		t.Fatalf("roots = %v", got)
	}
	if got := titles(menu[0].Children); !equal(got, []string{"FAQ", "Rules", "Tools"}) {
		t.Errorf("children = %v", got)
	}
	if slug := menu[0].Children[1].PageSlug; slug == nil || *slug != "rules" {
		t.Errorf("page slug = %v, want canonical rules", slug)
	}

	all := f.tree(t, "/api/menus?all=1", testutil.EditorUser())
	if got := titles(all); !equal(got, []string{"Guides", "Hidden"}) {
		t.Errorf("all roots = %v", got)
	}

	sub := f.tree(t, "/api/menus?root="+guides.ID.Hex(), testutil.ViewerUser())
	if len(sub) != 1 || sub[0].ID != guides.ID {
		t.Errorf("subtree = %v", titles(sub))
	}
}

func TestTree_Errors(t *testing.T) {
	f := setup(t, authz.Policy{})

	tests := []struct {
		name     string
		target   string
		user     *models.User
		wantCode int
		wantKind string
	}{
		{"anonymous when disabled", "/api/menus", nil, http.StatusUnauthorized, "unauthenticated"},
		{"viewer asks for inactive", "/api/menus?all=1", testutil.ViewerUser(), http.StatusForbidden, "forbidden"},
		{"malformed root", "/api/menus?root=zz", testutil.ViewerUser(), http.StatusBadRequest, "validation"},
		{"unknown root", "/api/menus?root=" + testutil.ViewerUser().ID.Hex(), testutil.ViewerUser(), http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(testutil.NewRequest(http.MethodGet, tt.target), tt.user)
			rec.AssertStatus(t, tt.wantCode)
			rec.AssertErrorCode(t, tt.wantKind)
		})
	}
}

func TestCreate_Rejections(t *testing.T) {
	f := setup(t, authz.Policy{})

	tests := []struct {
		name     string
		user     *models.User
		body     map[string]any
		wantCode int
		wantKind string
	}{
		{"viewer", testutil.ViewerUser(), map[string]any{"title": "x"}, http.StatusForbidden, "forbidden"},
		{"no title", testutil.EditorUser(), map[string]any{}, http.StatusBadRequest, "validation"},
		{"unknown page", testutil.EditorUser(), map[string]any{"title": "x", "page_slug": "missing"}, http.StatusBadRequest, "validation"},
		{"bad parent", testutil.EditorUser(), map[string]any{"title": "x", "parent_id": "zz"}, http.StatusBadRequest, "validation"},
		{"unknown parent", testutil.EditorUser(), map[string]any{"title": "x", "parent_id": testutil.EditorUser().ID.Hex()}, http.StatusNotFound, "not_found"},
		{"position past end", testutil.EditorUser(), map[string]any{"title": "x", "position": 5}, http.StatusBadRequest, "validation"},
		{"position before start", testutil.EditorUser(), map[string]any{"title": "x", "position": -2}, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(testutil.NewJSONRequest(http.MethodPost, "/api/menus", tt.body), tt.user)
			rec.AssertStatus(t, tt.wantCode)
			rec.AssertErrorCode(t, tt.wantKind)
		})
	}
}

func TestUpdate(t *testing.T) {
	f := setup(t, authz.Policy{})
	n := f.create(t, map[string]any{"title": "Rules", "page_slug": "rules"})

	rec := f.do(testutil.NewJSONRequest(http.MethodPut, "/api/menus/"+n.ID.Hex(),
		map[string]any{"title": "House Rules", "page_slug": ""}), testutil.EditorUser())
	rec.AssertStatus(t, http.StatusOK)
	var got models.MenuNode
	rec.DecodeJSON(t, &got)
	if got.Title != "House Rules" || !got.IsFolder() {
		t.Errorf("update = %+v", got)
	}
}

func TestReorder(t *testing.T) {
	f := setup(t, authz.Policy{})
	a := f.create(t, map[string]any{"title": "A"})
	b := f.create(t, map[string]any{"title": "B", "parent_id": a.ID.Hex()})
	c := f.create(t, map[string]any{"title": "C", "parent_id": a.ID.Hex()})

	rec := f.do(testutil.NewJSONRequest(http.MethodPut, "/api/menus/reorder", map[string]any{
		"parent_id": a.ID.Hex(),
		"ids":       []string{c.ID.Hex(), b.ID.Hex()},
	}), testutil.EditorUser())
	rec.AssertStatus(t, http.StatusNoContent)

	menu := f.tree(t, "/api/menus", testutil.ViewerUser())
	if got := titles(menu[0].Children); !equal(got, []string{"C", "B"}) {
		t.Errorf("children = %v, want [C B]", got)
	}

	rec = f.do(testutil.NewJSONRequest(http.MethodPut, "/api/menus/reorder", map[string]any{
		"parent_id": a.ID.Hex(),
		"ids":       []string{c.ID.Hex()},
	}), testutil.EditorUser())
	rec.AssertStatus(t, http.StatusBadRequest)
	rec.AssertErrorCode(t, "validation")
}

func TestMove(t *testing.T) {
	f := setup(t, authz.Policy{})
	a := f.create(t, map[string]any{"title": "A"})
	b := f.create(t, map[string]any{"title": "B", "parent_id": a.ID.Hex()})
	d := f.create(t, map[string]any{"title": "D"})

	move := func(id string, body map[string]any, u *models.User) *testutil.ResponseRecorder {
		return f.do(testutil.NewJSONRequest(http.MethodPut, "/api/menus/"+id+"/move", body), u)
	}

	rec := move(a.ID.Hex(), map[string]any{"parent_id": d.ID.Hex()}, testutil.EditorUser())
	rec.AssertStatus(t, http.StatusForbidden)

	rec = move(a.ID.Hex(), map[string]any{"parent_id": b.ID.Hex()}, testutil.AdminUser())
	rec.AssertStatus(t, http.StatusConflict)
	rec.AssertErrorCode(t, "cycle")

	rec = move(a.ID.Hex(), map[string]any{"parent_id": d.ID.Hex(), "position": 0}, testutil.AdminUser())
	rec.AssertStatus(t, http.StatusOK)

	menu := f.tree(t, "/api/menus", testutil.ViewerUser())
	if got := titles(menu); !equal(got, []string{"D"}) {
		t.Fatalf("roots = %v", got)
	}
	if got := titles(menu[0].Children); !equal(got, []string{"A"}) {
		t.Fatalf("D children = %v", got)
	}
	if got := titles(menu[0].Children[0].Children); !equal(got, []string{"B"}) {
		t.Errorf("A children = %v, subtree should move intact", got)
	}

	rec = move(a.ID.Hex(), map[string]any{"parent_id": nil}, testutil.AdminUser())
	rec.AssertStatus(t, http.StatusOK)
	if got := titles(f.tree(t, "/api/menus", testutil.ViewerUser())); !equal(got, []string{"D", "A"}) {
		t.Errorf("roots after move to top = %v", got)
	}
}

func TestDelete(t *testing.T) {
	f := setup(t, authz.Policy{})
	a := f.create(t, map[string]any{"title": "A"})
	f.create(t, map[string]any{"title": "B", "parent_id": a.ID.Hex(), "page_slug": "rules"})

	rec := f.do(testutil.NewRequest(http.MethodDelete, "/api/menus/"+a.ID.Hex()), testutil.AdminUser())
	rec.AssertStatus(t, http.StatusConflict)
	rec.AssertErrorCode(t, "conflict")

	rec = f.do(testutil.NewRequest(http.MethodDelete, "/api/menus/"+a.ID.Hex()+"?cascade=1"), testutil.EditorUser())
	rec.AssertStatus(t, http.StatusForbidden)

	rec = f.do(testutil.NewRequest(http.MethodDelete, "/api/menus/"+a.ID.Hex()+"?cascade=1"), testutil.AdminUser())
	rec.AssertStatus(t, http.StatusOK)
	var out deleteResponse
	rec.DecodeJSON(t, &out)
	if len(out.Removed) != 2 {
		t.Errorf("removed = %v, want 2 ids", out.Removed)
	}
	if menu := f.tree(t, "/api/menus", testutil.ViewerUser()); len(menu) != 0 {
		t.Errorf("menu = %v, want empty", titles(menu))
	}
}
