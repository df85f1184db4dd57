// internal/app/store/pages/pagestore.go
package pagestore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	revisionstore "github.com/dalemusser/stratawiki/internal/app/store/revisions"
	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratawiki/internal/app/system/metrics"
	"github.com/dalemusser/stratawiki/internal/app/system/slugs"
	"github.com/dalemusser/stratawiki/internal/app/system/txn"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Limits
const (
	MaxTitleLen            = 200
	DefaultMaxContentBytes = 1 << 20
	DefaultListLimit       = 100
	MaxListLimit           = 500

	// maxSlugSuffix bounds the -1, -2, ... search for a free generated slug.
	maxSlugSuffix = 1000
	// createAttempts bounds retries when a generated slug is claimed by a
	// concurrent create between probe and insert.
	createAttempts = 3
)

// Retention decides what happens to revisions when their page is deleted.
type Retention string

const (
	RetainRevisions Retention = "retain"
	DeleteRevisions Retention = "delete"

	// DefaultRetention applies when none is configured.
	DefaultRetention = DeleteRevisions
)

// ValidRetention reports whether r is a known policy.
func ValidRetention(r Retention) bool {
	return r == RetainRevisions || r == DeleteRevisions
}

// MenuRefs keeps menu links in step with page slugs. Calls run inside the
// page store's transaction.
type MenuRefs interface {
	RenamePageRefs(ctx context.Context, oldSlug, newSlug string) error
	ClearPageRefs(ctx context.Context, slug string) error
}

// Config holds page store policy.
type Config struct {
	MaxContentBytes int
	Retention       Retention
}

// Store provides access to the pages collection and owns revision writes.
type Store struct {
	db     *mongo.Database
	c      *mongo.Collection
	revs   *revisionstore.Store
	menus  MenuRefs
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	searchCap int
}

// New creates a new page store. menus may be nil.
func New(db *mongo.Database, revs *revisionstore.Store, menus MenuRefs, cfg Config, logger *zap.Logger) *Store {
	if cfg.MaxContentBytes <= 0 {
		cfg.MaxContentBytes = DefaultMaxContentBytes
	}
	if !ValidRetention(cfg.Retention) {
		cfg.Retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		c:      db.Collection("pages"),
		revs:   revs,
		menus:  menus,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },

		searchCap: searchCandidates,
	}
}

// CreateInput describes a new page. An empty Slug is generated from the
// title and made unique with a numeric suffix.
type CreateInput struct {
	Title       string
	Slug        string
	Content     string
	IsPublished *bool // defaults to true
}

// UpdateInput holds the fields to change. Nil fields are left alone.
type UpdateInput struct {
	Title       *string
	Slug        *string
	Content     *string
	IsPublished *bool
}

// Create inserts a page and its first revision in one transaction.
func (s *Store) Create(ctx context.Context, in CreateInput, authorID primitive.ObjectID) (models.Page, error) {
	title, err := cleanTitle(in.Title)
	if err != nil {
		return models.Page{}, err
	}
	if err := s.checkContent(in.Content); err != nil {
		return models.Page{}, err
	}
	explicit := strings.TrimSpace(in.Slug) != ""
	slug := slugs.Make(title)
	if explicit {
		if slug, err = cleanSlug(in.Slug); err != nil {
			return models.Page{}, err
		}
	}
	published := true
	if in.IsPublished != nil {
		published = *in.IsPublished
	}

	var page models.Page
	for attempt := 1; ; attempt++ {
		err = txn.Run(ctx, s.db, s.logger, func(ctx context.Context) error {
			final := slug
			if !explicit {
				var err error
				if final, err = s.freeSlug(ctx, slug); err != nil {
					return err
				}
			}
			now := s.now()
			page = models.Page{
				ID:          primitive.NewObjectID(),
				Slug:        final,
				SlugCI:      text.Fold(final),
				Title:       title,
				Content:     in.Content,
				IsPublished: published,
				Revision:    1,
				AuthorID:    authorID,
				UpdatedByID: authorID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if _, err := s.c.InsertOne(ctx, page); err != nil {
				return err
			}
			return s.revs.Append(ctx, revisionOf(page, authorID))
		})
		if err == nil || explicit || !isSlugConflict(err) || attempt == createAttempts {
			break
		}
	}
	if err != nil {
		return models.Page{}, translate(err)
	}
	metrics.PageMutationsTotal.WithLabelValues("create").Inc()
	return page, nil
}

// Update applies in and appends a revision holding the page as written.
// Concurrent updates are last-writer-wins on the live row; each still
// gets its own revision.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, in UpdateInput, editorID primitive.ObjectID) (models.Page, error) {
	set := bson.M{}
	if in.Title != nil {
		title, err := cleanTitle(*in.Title)
		if err != nil {
			return models.Page{}, err
		}
		set["title"] = title
	}
	if in.Content != nil {
		if err := s.checkContent(*in.Content); err != nil {
			return models.Page{}, err
		}
		set["content"] = *in.Content
	}
	var newSlug string
	if in.Slug != nil {
		var err error
		if newSlug, err = cleanSlug(*in.Slug); err != nil {
			return models.Page{}, err
		}
		set["slug"] = newSlug
		set["slug_ci"] = text.Fold(newSlug)
	}
	if in.IsPublished != nil {
		set["is_published"] = *in.IsPublished
	}

	var page models.Page
	err := txn.Run(ctx, s.db, s.logger, func(ctx context.Context) error {
		set["updated_by_id"] = editorID
		set["updated_at"] = s.now()

		var oldSlug string
		if in.Slug != nil && s.menus != nil {
			cur, err := s.findOne(ctx, bson.M{"_id": id})
			if err != nil {
				return err
			}
			oldSlug = cur.Slug
		}

		err := s.c.FindOneAndUpdate(ctx,
			bson.M{"_id": id},
			bson.M{"$set": set, "$inc": bson.M{"revision": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&page)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperr.NotFound("page not found")
		}
		if err != nil {
			return err
		}
		if err := s.revs.Append(ctx, revisionOf(page, editorID)); err != nil {
			return err
		}
		if oldSlug != "" && oldSlug != page.Slug {
			return s.menus.RenamePageRefs(ctx, oldSlug, page.Slug)
		}
		return nil
	})
	if err != nil {
		return models.Page{}, translate(err)
	}
	metrics.PageMutationsTotal.WithLabelValues("update").Inc()
	return page, nil
}

// Delete removes a page and clears menu links to it. Revisions are kept or
// removed according to the configured retention.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (models.Page, error) {
	var page models.Page
	err := txn.Run(ctx, s.db, s.logger, func(ctx context.Context) error {
		err := s.c.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&page)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperr.NotFound("page not found")
		}
		if err != nil {
			return err
		}
		if s.cfg.Retention == DeleteRevisions {
			if _, err := s.revs.DeleteByPage(ctx, id); err != nil {
				return err
			}
		}
		if s.menus != nil {
			return s.menus.ClearPageRefs(ctx, page.Slug)
		}
		return nil
	})
	if err != nil {
		return models.Page{}, translate(err)
	}
	metrics.PageMutationsTotal.WithLabelValues("delete").Inc()
	return page, nil
}

// GetBySlug returns a page by slug, compared case-insensitively.
func (s *Store) GetBySlug(ctx context.Context, slug string) (models.Page, error) {
	return s.findOne(ctx, bson.M{"slug_ci": text.Fold(strings.TrimSpace(slug))})
}

// GetByID returns a page by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Page, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// ListFilter narrows List.
type ListFilter struct {
	IncludeUnpublished bool
	Limit              int64
}

// List returns pages without content, most recently updated first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.Page, error) {
	filter := bson.M{}
	if !f.IncludeUnpublished {
		filter["is_published"] = true
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(limit).
		SetProjection(bson.M{"content": 0})

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	pages := []models.Page{}
	if err := cur.All(ctx, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// History returns every revision of the page, newest first.
func (s *Store) History(ctx context.Context, pageID primitive.ObjectID) ([]models.PageRevision, error) {
	return s.revs.History(ctx, pageID, 0)
}

// Count returns the number of pages.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Page, error) {
	var p models.Page
	if err := s.c.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Page{}, apperr.NotFound("page not found")
		}
		return models.Page{}, err
	}
	return p, nil
}

// freeSlug returns base, or base with the smallest numeric suffix that no
// page holds yet.
func (s *Store) freeSlug(ctx context.Context, base string) (string, error) {
	for n := 0; n < maxSlugSuffix; n++ {
		cand := base
		if n > 0 {
			cand = slugs.WithSuffix(base, n)
		}
		if slugs.Reserved(cand) {
			continue
		}
		count, err := s.c.CountDocuments(ctx, bson.M{"slug_ci": text.Fold(cand)}, options.Count().SetLimit(1))
		if err != nil {
			return "", err
		}
		if count == 0 {
			return cand, nil
		}
	}
	return "", apperr.Conflict("no free slug for title")
}

func (s *Store) checkContent(content string) error {
	if len(content) > s.cfg.MaxContentBytes {
		return apperr.Validation("content is too large")
	}
	if !utf8.ValidString(content) {
		return apperr.Validation("content must be valid UTF-8")
	}
	return nil
}

func revisionOf(p models.Page, editorID primitive.ObjectID) *models.PageRevision {
	return &models.PageRevision{
		ID:       primitive.NewObjectID(),
		PageID:   p.ID,
		Seq:      p.Revision,
		Title:    p.Title,
		Content:  p.Content,
		EditorID: editorID,
		EditedAt: p.UpdatedAt,
	}
}

func cleanTitle(raw string) (string, error) {
	title := htmlsanitize.PlainText(raw)
	if title == "" {
		return "", apperr.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return "", apperr.Validation("title is too long")
	}
	return title, nil
}

func cleanSlug(raw string) (string, error) {
	slug := slugs.Normalize(raw)
	if slugs.Reserved(slug) {
		return "", apperr.Validation("slug " + strconv.Quote(slug) + " is reserved")
	}
	if !slugs.Valid(slug) {
		return "", apperr.Validation("slug may contain only lowercase letters, digits, '-' and '_'")
	}
	return slug, nil
}

func isSlugConflict(err error) bool {
	return errors.Is(err, apperr.ErrConflict) || wafflemongo.IsDup(err)
}

// translate turns a unique index violation on slug_ci into a conflict.
func translate(err error) error {
	if err != nil && wafflemongo.IsDup(err) {
		return apperr.Wrap(apperr.KindConflict, "slug already exists", err)
	}
	return err
}
