package menucache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dalemusser/stratawiki/internal/domain/menutree"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestKey(t *testing.T) {
	root := primitive.NewObjectID()
	tests := []struct {
		version  int64
		root     *primitive.ObjectID
		inactive bool
		want     string
	}{
		{1, nil, false, "stratawiki:menu:tree:v1:all:active"},
		{7, nil, true, "stratawiki:menu:tree:v7:all:all"},
		{3, &root, false, "stratawiki:menu:tree:v3:" + root.Hex() + ":active"},
	}
	for _, tt := range tests {
		if got := Key(tt.version, tt.root, tt.inactive); got != tt.want {
			t.Errorf("Key() = %q, want %q", got, tt.want)
		}
	}
	if Key(1, nil, false) == Key(2, nil, false) {
		t.Error("keys must differ across versions")
	}
}

func TestCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("STRATAWIKI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skipping: STRATAWIKI_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, Config{Addr: addr, Timeout: 2 * time.Second})
	if err != nil {
		t.Skipf("skipping: redis unavailable: %v", err)
	}
	defer client.Close()

	c := New(client, time.Minute, zap.NewNop())
	key := Key(time.Now().UnixNano(), nil, false)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("Get() on empty key should miss")
	}

	slug := "home"
	trees := []menutree.Tree{{
		MenuNode: models.MenuNode{ID: primitive.NewObjectID(), Title: "Home", PageSlug: &slug, IsActive: true},
		Children: []menutree.Tree{},
	}}
	c.Set(ctx, key, trees)
	defer client.Del(ctx, key)

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("Get() after Set() missed")
	}
	if len(got) != 1 || got[0].ID != trees[0].ID || *got[0].PageSlug != "home" {
		t.Errorf("Get() = %+v", got)
	}
}
