// Package menutree holds the in-memory navigation forest.
//
// A Forest is an arena: nodes live in a map keyed by id and every
// parent/child relation is an id reference. Mutations keep each sibling
// group dense (order indexes 0..n-1) and the whole structure acyclic.
// The package does no I/O; callers load a Forest from storage, apply one
// operation, and persist Changes.
package menutree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ID identifies a menu node.
type ID = primitive.ObjectID

// rootKey is the group key of the top-level sibling group.
var rootKey = primitive.NilObjectID

var (
	ErrNodeNotFound   = errors.New("menu node not found")
	ErrParentNotFound = errors.New("parent menu node not found")
	ErrCycle          = errors.New("move would place a node inside its own subtree")
	ErrPosition       = errors.New("position out of range")
	ErrOrderMismatch  = errors.New("ids must list exactly the current children")
	ErrHasChildren    = errors.New("menu node has children")
	ErrDuplicateID    = errors.New("duplicate menu node id")
	ErrInvalidID      = errors.New("invalid menu node id")
	ErrCorrupt        = errors.New("menu forest is inconsistent")
)

// Append as a position places a node after its last sibling.
const Append = -1

type placement struct {
	parent ID
	index  int
}

// Forest is an ordered forest of menu nodes. It is not safe for concurrent
// use; each request builds its own.
type Forest struct {
	nodes  map[ID]*models.MenuNode
	groups map[ID][]ID // parent id (rootKey for top level) -> ordered children
	orig   map[ID]placement
}

// Change is the new placement of a node that existed when the forest was
// loaded.
type Change struct {
	ID         ID
	ParentID   *ID
	OrderIndex int
}

// Tree is a node with its ordered children, as handed to renderers.
type Tree struct {
	models.MenuNode
	Children []Tree `json:"children"`
}

// New builds a forest from stored nodes.
//
// Sibling groups are sorted by (order_index, id) and renumbered densely.
// Nodes whose parent is missing, or that sit on a parent cycle, are
// re-attached at the top level. Such repairs show up in Changes.
func New(nodes []models.MenuNode) (*Forest, error) {
	f := &Forest{
		nodes:  make(map[ID]*models.MenuNode, len(nodes)),
		groups: make(map[ID][]ID),
		orig:   make(map[ID]placement, len(nodes)),
	}

	for i := range nodes {
		n := nodes[i]
		if n.ID.IsZero() {
			return nil, ErrInvalidID
		}
		if _, dup := f.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, n.ID.Hex())
		}
		f.nodes[n.ID] = &n
		f.orig[n.ID] = placement{parent: key(n.ParentID), index: n.OrderIndex}
	}

	for id, n := range f.nodes {
		if n.ParentID != nil {
			if _, ok := f.nodes[*n.ParentID]; !ok || *n.ParentID == id {
				n.ParentID = nil
			}
		}
		k := key(n.ParentID)
		f.groups[k] = append(f.groups[k], id)
	}

	f.breakCycles()

	for k, ids := range f.groups {
		sort.Slice(ids, func(i, j int) bool {
			a, b := f.nodes[ids[i]], f.nodes[ids[j]]
			if a.OrderIndex != b.OrderIndex {
				return a.OrderIndex < b.OrderIndex
			}
			return a.ID.Hex() < b.ID.Hex()
		})
		f.renumber(k)
	}
	return f, nil
}

// breakCycles moves nodes unreachable from the top level there, smallest id
// first, until every node is reachable.
func (f *Forest) breakCycles() {
	for {
		seen := make(map[ID]bool, len(f.nodes))
		stack := append([]ID(nil), f.groups[rootKey]...)
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[id] {
				continue
			}
			seen[id] = true
			stack = append(stack, f.groups[id]...)
		}
		if len(seen) == len(f.nodes) {
			return
		}

		var stray []ID
		for id := range f.nodes {
			if !seen[id] {
				stray = append(stray, id)
			}
		}
		sort.Slice(stray, func(i, j int) bool { return stray[i].Hex() < stray[j].Hex() })
		id := stray[0]
		n := f.nodes[id]
		f.groups[*n.ParentID] = without(f.groups[*n.ParentID], id)
		n.ParentID = nil
		n.OrderIndex = len(f.groups[rootKey])
		f.groups[rootKey] = append(f.groups[rootKey], id)
	}
}

// Len returns the number of nodes.
func (f *Forest) Len() int { return len(f.nodes) }

// Get returns a copy of the node with the given id.
func (f *Forest) Get(id ID) (models.MenuNode, bool) {
	n, ok := f.nodes[id]
	if !ok {
		return models.MenuNode{}, false
	}
	return *n, true
}

// Children returns copies of the children of parent in order. A nil parent
// selects the top level.
func (f *Forest) Children(parent *ID) []models.MenuNode {
	ids := f.groups[key(parent)]
	out := make([]models.MenuNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.nodes[id])
	}
	return out
}

// Ancestors returns the ids above id, nearest parent first.
func (f *Forest) Ancestors(id ID) ([]ID, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	var out []ID
	for p := n.ParentID; p != nil; p = f.nodes[*p].ParentID {
		out = append(out, *p)
		if len(out) > len(f.nodes) {
			return nil, ErrCorrupt
		}
	}
	return out, nil
}

// Insert adds node under node.ParentID at position (Append for the end).
// Later siblings shift down by one. The node's OrderIndex is assigned.
func (f *Forest) Insert(node models.MenuNode, position int) error {
	if node.ID.IsZero() {
		return ErrInvalidID
	}
	if _, dup := f.nodes[node.ID]; dup {
		return ErrDuplicateID
	}
	if node.ParentID != nil {
		if _, ok := f.nodes[*node.ParentID]; !ok {
			return ErrParentNotFound
		}
	}
	k := key(node.ParentID)
	pos, err := resolvePosition(position, len(f.groups[k]))
	if err != nil {
		return err
	}

	n := node
	f.nodes[n.ID] = &n
	f.groups[k] = insertAt(f.groups[k], pos, n.ID)
	f.renumber(k)
	return nil
}

// Reorder assigns order 0..n-1 to the children of parent following ids,
// which must be exactly the current set of children.
func (f *Forest) Reorder(parent *ID, ids []ID) error {
	if parent != nil {
		if _, ok := f.nodes[*parent]; !ok {
			return ErrParentNotFound
		}
	}
	k := key(parent)
	current := f.groups[k]
	if len(ids) != len(current) {
		return ErrOrderMismatch
	}
	want := make(map[ID]bool, len(current))
	for _, id := range current {
		want[id] = true
	}
	for _, id := range ids {
		if !want[id] {
			return ErrOrderMismatch
		}
		delete(want, id)
	}

	f.groups[k] = append([]ID(nil), ids...)
	f.renumber(k)
	return nil
}

// Move reparents id, with its subtree intact, under newParent at position.
// Every check runs before anything changes, so a failed move leaves the
// forest untouched.
func (f *Forest) Move(id ID, newParent *ID, position int) error {
	n, ok := f.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	if newParent != nil {
		if _, ok := f.nodes[*newParent]; !ok {
			return ErrParentNotFound
		}
		// Walk from the target parent to the top; meeting id means the
		// target lies inside id's subtree (or is id).
		steps := 0
		for p := newParent; p != nil; p = f.nodes[*p].ParentID {
			if *p == id {
				return ErrCycle
			}
			if steps++; steps > len(f.nodes) {
				return ErrCorrupt
			}
		}
	}

	from, to := key(n.ParentID), key(newParent)
	size := len(f.groups[to])
	if from == to {
		size--
	}
	pos, err := resolvePosition(position, size)
	if err != nil {
		return err
	}

	f.groups[from] = without(f.groups[from], id)
	f.renumber(from)

	if newParent == nil {
		n.ParentID = nil
	} else {
		p := *newParent
		n.ParentID = &p
	}
	f.groups[to] = insertAt(f.groups[to], pos, id)
	f.renumber(to)
	return nil
}

// Remove deletes id. A node with children is only removed when cascade is
// set, in which case its whole subtree goes too. The removed ids are
// returned, id first.
func (f *Forest) Remove(id ID, cascade bool) ([]ID, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	if len(f.groups[id]) > 0 && !cascade {
		return nil, ErrHasChildren
	}

	removed := f.subtree(id)
	parent := key(n.ParentID)
	f.groups[parent] = without(f.groups[parent], id)
	for _, rid := range removed {
		delete(f.nodes, rid)
		delete(f.groups, rid)
	}
	f.renumber(parent)
	return removed, nil
}

// subtree returns id and its descendants in pre-order.
func (f *Forest) subtree(id ID) []ID {
	out := []ID{id}
	for i := 0; i < len(out); i++ {
		out = append(out, f.groups[out[i]]...)
	}
	return out
}

// Trees returns the ordered trees below root (the whole forest when root is
// nil; otherwise a single tree rooted there). Inactive nodes and everything
// under them are skipped unless includeInactive is set.
func (f *Forest) Trees(root *ID, includeInactive bool) ([]Tree, error) {
	var starts []ID
	if root == nil {
		starts = f.groups[rootKey]
	} else {
		if _, ok := f.nodes[*root]; !ok {
			return nil, ErrNodeNotFound
		}
		starts = []ID{*root}
	}
	return f.build(starts, includeInactive), nil
}

func (f *Forest) build(ids []ID, includeInactive bool) []Tree {
	out := make([]Tree, 0, len(ids))
	for _, id := range ids {
		n := f.nodes[id]
		if !n.IsActive && !includeInactive {
			continue
		}
		out = append(out, Tree{
			MenuNode: *n,
			Children: f.build(f.groups[id], includeInactive),
		})
	}
	return out
}

// Check verifies the forest invariants: every sibling group is dense and
// agrees with its members' parent pointers, and every node is reachable
// from the top level exactly once.
func (f *Forest) Check() error {
	for k, ids := range f.groups {
		if k != rootKey {
			if _, ok := f.nodes[k]; !ok && len(ids) > 0 {
				return fmt.Errorf("%w: group under missing parent %s", ErrCorrupt, k.Hex())
			}
		}
		for i, id := range ids {
			n, ok := f.nodes[id]
			if !ok {
				return fmt.Errorf("%w: dangling child %s", ErrCorrupt, id.Hex())
			}
			if n.OrderIndex != i {
				return fmt.Errorf("%w: %s has order %d at slot %d", ErrCorrupt, id.Hex(), n.OrderIndex, i)
			}
			if key(n.ParentID) != k {
				return fmt.Errorf("%w: %s listed under wrong parent", ErrCorrupt, id.Hex())
			}
		}
	}

	seen := make(map[ID]bool, len(f.nodes))
	stack := append([]ID(nil), f.groups[rootKey]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			return fmt.Errorf("%w: %s reached twice", ErrCorrupt, id.Hex())
		}
		seen[id] = true
		stack = append(stack, f.groups[id]...)
	}
	if len(seen) != len(f.nodes) {
		return fmt.Errorf("%w: %d of %d nodes reachable", ErrCorrupt, len(seen), len(f.nodes))
	}
	return nil
}

// Changes lists nodes present at load time whose parent or order index
// differs from what was loaded, sorted by id. Inserted and removed nodes
// are not included.
func (f *Forest) Changes() []Change {
	var out []Change
	for id, was := range f.orig {
		n, ok := f.nodes[id]
		if !ok {
			continue
		}
		if key(n.ParentID) == was.parent && n.OrderIndex == was.index {
			continue
		}
		c := Change{ID: id, OrderIndex: n.OrderIndex}
		if n.ParentID != nil {
			p := *n.ParentID
			c.ParentID = &p
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func (f *Forest) renumber(k ID) {
	ids := f.groups[k]
	if len(ids) == 0 {
		delete(f.groups, k)
		return
	}
	for i, id := range ids {
		f.nodes[id].OrderIndex = i
	}
}

func key(p *ID) ID {
	if p == nil {
		return rootKey
	}
	return *p
}

func resolvePosition(position, size int) (int, error) {
	if position == Append {
		return size, nil
	}
	if position < 0 || position > size {
		return 0, ErrPosition
	}
	return position, nil
}

func insertAt(ids []ID, pos int, id ID) []ID {
	ids = append(ids, primitive.NilObjectID)
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = id
	return ids
}

func without(ids []ID, id ID) []ID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
