// internal/app/store/menus/menustore.go
package menustore

// Every tree mutation runs as one transaction:
//
//  1. bump the version document in menu_tree (concurrent writers now
//     conflict on it and the loser is retried by txn.Run)
//  2. load all nodes into a menutree.Forest and apply the operation
//  3. delete removed nodes, park every re-placed node at a negative
//     order index, then write final placements
//  4. insert the new node, if any
//
// Parking keeps the unique (parent_id, order_index) index satisfied at
// every step of a renumbering.

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratawiki/internal/app/system/menucache"
	"github.com/dalemusser/stratawiki/internal/app/system/metrics"
	"github.com/dalemusser/stratawiki/internal/app/system/txn"
	"github.com/dalemusser/stratawiki/internal/domain/menutree"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MaxTitleLen is the longest menu title accepted, in runes.
const MaxTitleLen = 200

const treeDocID = "menu"

// Store owns the menu_nodes collection.
type Store struct {
	db     *mongo.Database
	nodes  *mongo.Collection
	tree   *mongo.Collection
	pages  *mongo.Collection
	cache  *menucache.Cache
	logger *zap.Logger
	now    func() time.Time
}

// New creates a menu store. cache may be nil.
func New(db *mongo.Database, cache *menucache.Cache, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		nodes:  db.Collection("menu_nodes"),
		tree:   db.Collection("menu_tree"),
		pages:  db.Collection("pages"),
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new node.
type CreateInput struct {
	ParentID *primitive.ObjectID
	Title    string
	PageSlug *string // nil or "" for a label-only folder
	Position int     // menutree.Append for the end
	IsActive *bool   // defaults to true
}

// UpdateInput changes node fields other than placement. Nil fields are
// left alone; an empty PageSlug turns the node into a folder.
type UpdateInput struct {
	Title    *string
	PageSlug *string
	IsActive *bool
}

// TreeFilter selects what ListTree returns.
type TreeFilter struct {
	Root            *primitive.ObjectID // nil for the whole forest
	IncludeInactive bool
}

// Create inserts a node among its siblings at in.Position.
func (s *Store) Create(ctx context.Context, in CreateInput) (models.MenuNode, error) {
	title, err := cleanTitle(in.Title)
	if err != nil {
		return models.MenuNode{}, s.record("create", err)
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	var created models.MenuNode
	err = s.mutate(ctx, func(ctx context.Context, f *menutree.Forest) (*models.MenuNode, []menutree.ID, error) {
		slug, err := s.resolvePageSlug(ctx, in.PageSlug)
		if err != nil {
			return nil, nil, err
		}
		now := s.now()
		node := models.MenuNode{
			ID:        primitive.NewObjectID(),
			Title:     title,
			PageSlug:  slug,
			ParentID:  in.ParentID,
			IsActive:  active,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := f.Insert(node, in.Position); err != nil {
			return nil, nil, err
		}
		created, _ = f.Get(node.ID)
		return &created, nil, nil
	})
	if err != nil {
		return models.MenuNode{}, s.record("create", err)
	}
	s.record("create", nil)
	return created, nil
}

// Update changes the title, page link or visibility of a node.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, in UpdateInput) (models.MenuNode, error) {
	set := bson.M{}
	if in.Title != nil {
		title, err := cleanTitle(*in.Title)
		if err != nil {
			return models.MenuNode{}, s.record("update", err)
		}
		set["title"] = title
	}
	if in.IsActive != nil {
		set["is_active"] = *in.IsActive
	}

	var out models.MenuNode
	err := txn.Run(ctx, s.db, s.logger, func(ctx context.Context) error {
		if _, err := s.bumpVersion(ctx); err != nil {
			return err
		}
		if in.PageSlug != nil {
			slug, err := s.resolvePageSlug(ctx, in.PageSlug)
			if err != nil {
				return err
			}
			set["page_slug"] = slug
		}
		set["updated_at"] = s.now()

		err := s.nodes.FindOneAndUpdate(ctx,
			bson.M{"_id": id},
			bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&out)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperr.NotFound("menu node not found")
		}
		return err
	})
	if err != nil {
		return models.MenuNode{}, s.record("update", err)
	}
	s.record("update", nil)
	return out, nil
}

// Reorder sets the order of parent's children to ids, which must list
// exactly the current children. A nil parent selects the top level.
func (s *Store) Reorder(ctx context.Context, parent *primitive.ObjectID, ids []primitive.ObjectID) error {
	err := s.mutate(ctx, func(_ context.Context, f *menutree.Forest) (*models.MenuNode, []menutree.ID, error) {
		return nil, nil, f.Reorder(parent, ids)
	})
	return s.record("reorder", err)
}

// Move reparents id, with its subtree, under newParent at position.
func (s *Store) Move(ctx context.Context, id primitive.ObjectID, newParent *primitive.ObjectID, position int) (models.MenuNode, error) {
	var moved models.MenuNode
	err := s.mutate(ctx, func(_ context.Context, f *menutree.Forest) (*models.MenuNode, []menutree.ID, error) {
		if err := f.Move(id, newParent, position); err != nil {
			return nil, nil, err
		}
		moved, _ = f.Get(id)
		return nil, nil, nil
	})
	if err != nil {
		return models.MenuNode{}, s.record("move", err)
	}
	s.record("move", nil)
	return moved, nil
}

// Delete removes id. A node with children needs cascade, which removes the
// whole subtree. Referenced pages are never touched. Returns the removed
// ids.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID, cascade bool) ([]primitive.ObjectID, error) {
	var removed []primitive.ObjectID
	err := s.mutate(ctx, func(_ context.Context, f *menutree.Forest) (*models.MenuNode, []menutree.ID, error) {
		ids, err := f.Remove(id, cascade)
		if err != nil {
			return nil, nil, err
		}
		removed = ids
		return nil, ids, nil
	})
	if err != nil {
		return nil, s.record("delete", err)
	}
	s.record("delete", nil)
	return removed, nil
}

// Get loads a single node.
func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (models.MenuNode, error) {
	var n models.MenuNode
	if err := s.nodes.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.MenuNode{}, apperr.NotFound("menu node not found")
		}
		return models.MenuNode{}, err
	}
	return n, nil
}

// ListTree returns the ordered trees selected by f from one consistent
// snapshot. Results are cached by tree version when a cache is set.
func (s *Store) ListTree(ctx context.Context, filter TreeFilter) ([]menutree.Tree, error) {
	var (
		trees []menutree.Tree
		key   string
		hit   bool
	)
	err := txn.ReadSnapshot(ctx, s.db, s.logger, func(ctx context.Context) error {
		version, err := s.version(ctx)
		if err != nil {
			return err
		}
		if s.cache != nil {
			key = menucache.Key(version, filter.Root, filter.IncludeInactive)
			if trees, hit = s.cache.Get(ctx, key); hit {
				return nil
			}
		}
		f, err := s.load(ctx)
		if err != nil {
			return err
		}
		trees, err = f.Trees(filter.Root, filter.IncludeInactive)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	if s.cache != nil && !hit {
		s.cache.Set(ctx, key, trees)
	}
	return trees, nil
}

// RenamePageRefs points nodes linking oldSlug at newSlug. It joins the
// caller's transaction when ctx carries one.
func (s *Store) RenamePageRefs(ctx context.Context, oldSlug, newSlug string) error {
	res, err := s.nodes.UpdateMany(ctx,
		bson.M{"page_slug": oldSlug},
		bson.M{"$set": bson.M{"page_slug": newSlug, "updated_at": s.now()}},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount > 0 {
		_, err = s.bumpVersion(ctx)
	}
	return err
}

// ClearPageRefs turns nodes linking slug into folders.
func (s *Store) ClearPageRefs(ctx context.Context, slug string) error {
	res, err := s.nodes.UpdateMany(ctx,
		bson.M{"page_slug": slug},
		bson.M{"$set": bson.M{"page_slug": nil, "updated_at": s.now()}},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount > 0 {
		_, err = s.bumpVersion(ctx)
	}
	return err
}

// mutateFunc applies one operation to f. It returns the node to insert
// and the ids removed, either may be empty.
type mutateFunc func(ctx context.Context, f *menutree.Forest) (*models.MenuNode, []menutree.ID, error)

func (s *Store) mutate(ctx context.Context, apply mutateFunc) error {
	return txn.Run(ctx, s.db, s.logger, func(ctx context.Context) error {
		if _, err := s.bumpVersion(ctx); err != nil {
			return err
		}
		f, err := s.load(ctx)
		if err != nil {
			return err
		}
		insert, removed, err := apply(ctx, f)
		if err != nil {
			return err
		}
		if err := f.Check(); err != nil {
			return err
		}
		return s.persist(ctx, f, insert, removed)
	})
}

func (s *Store) persist(ctx context.Context, f *menutree.Forest, insert *models.MenuNode, removed []menutree.ID) error {
	if len(removed) > 0 {
		if _, err := s.nodes.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": removed}}); err != nil {
			return err
		}
	}

	changes := f.Changes()
	for i, c := range changes {
		if _, err := s.nodes.UpdateOne(ctx,
			bson.M{"_id": c.ID},
			bson.M{"$set": bson.M{"order_index": -(i + 1)}},
		); err != nil {
			return err
		}
	}
	now := s.now()
	for _, c := range changes {
		if _, err := s.nodes.UpdateOne(ctx,
			bson.M{"_id": c.ID},
			bson.M{"$set": bson.M{
				"parent_id":   c.ParentID,
				"order_index": c.OrderIndex,
				"updated_at":  now,
			}},
		); err != nil {
			return err
		}
	}

	if insert != nil {
		if _, err := s.nodes.InsertOne(ctx, insert); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) load(ctx context.Context) (*menutree.Forest, error) {
	cur, err := s.nodes.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var nodes []models.MenuNode
	if err := cur.All(ctx, &nodes); err != nil {
		return nil, err
	}
	return menutree.New(nodes)
}

func (s *Store) bumpVersion(ctx context.Context) (int64, error) {
	var doc struct {
		Version int64 `bson:"version"`
	}
	filter := bson.M{"_id": treeDocID}
	update := bson.M{"$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	err := s.tree.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil && wafflemongo.IsDup(err) {
		err = s.tree.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	}
	return doc.Version, err
}

func (s *Store) version(ctx context.Context) (int64, error) {
	var doc struct {
		Version int64 `bson:"version"`
	}
	err := s.tree.FindOne(ctx, bson.M{"_id": treeDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	return doc.Version, err
}

// resolvePageSlug returns the stored slug of the page slug names, or nil
// for an empty reference.
func (s *Store) resolvePageSlug(ctx context.Context, slug *string) (*string, error) {
	if slug == nil || strings.TrimSpace(*slug) == "" {
		return nil, nil
	}
	var p struct {
		Slug string `bson:"slug"`
	}
	err := s.pages.FindOne(ctx,
		bson.M{"slug_ci": text.Fold(strings.TrimSpace(*slug))},
		options.FindOne().SetProjection(bson.M{"slug": 1}),
	).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.Validation("page_slug does not match any page")
	}
	if err != nil {
		return nil, err
	}
	return &p.Slug, nil
}

func (s *Store) record(op string, err error) error {
	err = translate(err)
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	metrics.MenuMutationsTotal.WithLabelValues(op, result).Inc()
	if err != nil && apperr.KindOf(err) == apperr.KindInternal {
		s.logger.Error("menu mutation failed", zap.String("op", op), zap.Error(err))
	}
	return err
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

// translate maps forest errors onto error kinds.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, menutree.ErrNodeNotFound):
		return apperr.Wrap(apperr.KindNotFound, "menu node not found", err)
	case errors.Is(err, menutree.ErrParentNotFound):
		return apperr.Wrap(apperr.KindNotFound, "parent menu node not found", err)
	case errors.Is(err, menutree.ErrCycle):
		return apperr.Wrap(apperr.KindCycle, "cannot move a node into its own subtree", err)
	case errors.Is(err, menutree.ErrPosition):
		return apperr.Wrap(apperr.KindValidation, "position out of range", err)
	case errors.Is(err, menutree.ErrOrderMismatch):
		return apperr.Wrap(apperr.KindValidation, "ids must list exactly the current children", err)
	case errors.Is(err, menutree.ErrHasChildren):
		return apperr.Wrap(apperr.KindConflict, "menu node has children", err)
	}
	return err
}
