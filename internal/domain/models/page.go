// internal/domain/models/page.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Page is a wiki page. Content is raw Markdown; rendering happens elsewhere.
type Page struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Slug    string             `bson:"slug" json:"slug"`
	SlugCI  string             `bson:"slug_ci" json:"-"` // folded slug, unique
	Title   string             `bson:"title" json:"title"`
	Content string             `bson:"content" json:"content"`

	IsPublished bool `bson:"is_published" json:"is_published"`

	// Revision is the seq of the newest PageRevision.
	Revision int64 `bson:"revision" json:"revision"`

	// Audit fields
	AuthorID    primitive.ObjectID `bson:"author_id" json:"author_id"`
	UpdatedByID primitive.ObjectID `bson:"updated_by_id" json:"updated_by_id"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// PageRevision is an append-only snapshot of a page taken at write time.
// Seq starts at 1 for the creating write and grows by one per update.
type PageRevision struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PageID   primitive.ObjectID `bson:"page_id" json:"page_id"`
	Seq      int64              `bson:"seq" json:"seq"`
	Title    string             `bson:"title" json:"title"`
	Content  string             `bson:"content" json:"content"`
	EditorID primitive.ObjectID `bson:"editor_id" json:"editor_id"`
	EditedAt time.Time          `bson:"edited_at" json:"edited_at"`
}

// Seed page slugs
const (
	PageSlugHome  = "home"
	PageSlugRules = "rules"
)
