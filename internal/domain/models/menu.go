package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MenuNode is an entry in the navigation forest.
//
// PageSlug is a weak reference: deleting the node never touches the page,
// and a node without a page is a label-only folder. ParentID is stored as an
// explicit null for roots so the (parent_id, order_index) unique index also
// covers the root sibling group.
type MenuNode struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title      string              `bson:"title" json:"title"`
	PageSlug   *string             `bson:"page_slug" json:"page_slug"`
	ParentID   *primitive.ObjectID `bson:"parent_id" json:"parent_id"`
	OrderIndex int                 `bson:"order_index" json:"order_index"`
	IsActive   bool                `bson:"is_active" json:"is_active"`
	CreatedAt  time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time           `bson:"updated_at" json:"updated_at"`
}

// IsRoot returns true if the node is at the top level.
func (n *MenuNode) IsRoot() bool {
	return n.ParentID == nil
}

// IsFolder returns true if the node does not link to a page.
func (n *MenuNode) IsFolder() bool {
	return n.PageSlug == nil || *n.PageSlug == ""
}
