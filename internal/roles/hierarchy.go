package roles

import (
	"context"
	"fmt"
)

// maxDepth bounds upward walks. Role trees are shallow in practice; hitting
// the bound means the stored topology is corrupt.
const maxDepth = 64

type roleGetter func(ctx context.Context, id int64) (Role, error)

// walkAncestors returns the ancestor chain of startID, nearest parent first,
// following parent pointers iteratively with a visited set.
func walkAncestors(ctx context.Context, get roleGetter, start Role) ([]Role, error) {
	visited := map[int64]struct{}{start.ID: {}}
	var chain []Role
	current := start
	for current.ParentRoleID != nil {
		if len(chain) >= maxDepth {
			return nil, fmt.Errorf("roles: ancestor chain of %d exceeds depth %d", start.ID, maxDepth)
		}
		parent, err := get(ctx, *current.ParentRoleID)
		if err != nil {
			return nil, err
		}
		if _, seen := visited[parent.ID]; seen {
			return nil, fmt.Errorf("%w: stored hierarchy already contains role %d twice", ErrCycle, parent.ID)
		}
		visited[parent.ID] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}

// wouldCreateCycle reports whether attaching roleID under newParent would
// close a loop: true when roleID equals the new parent or appears anywhere
// in the new parent's ancestor chain.
func wouldCreateCycle(ctx context.Context, get roleGetter, roleID int64, newParent Role) (bool, error) {
	if newParent.ID == roleID {
		return true, nil
	}
	chain, err := walkAncestors(ctx, get, newParent)
	if err != nil {
		return false, err
	}
	for _, ancestor := range chain {
		if ancestor.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

type childLister func(ctx context.Context, parentID int64) ([]Role, error)

// recomputeSubtreeLevels walks the subtree rooted at root breadth-first and
// rewrites each descendant's level relative to the root. Only the affected
// subtree is touched.
func recomputeSubtreeLevels(ctx context.Context, tx TxRepository, root Role) error {
	if err := tx.SetLevel(ctx, root.ID, root.Level); err != nil {
		return err
	}
	type node struct {
		id    int64
		level int
	}
	queue := []node{{id: root.ID, level: root.Level}}
	visited := map[int64]struct{}{root.ID: {}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := tx.ListChildren(ctx, current.id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				return fmt.Errorf("%w: role %d reachable twice during level recompute", ErrCycle, child.ID)
			}
			visited[child.ID] = struct{}{}
			if err := tx.SetLevel(ctx, child.ID, current.level+1); err != nil {
				return err
			}
			queue = append(queue, node{id: child.ID, level: current.level + 1})
		}
	}
	return nil
}

// Node is one role in the rendered hierarchy forest.
type Node struct {
	Role     Role
	Children []*Node
}

// BuildForest arranges roles into parent-first trees. Roles whose parent is
// missing from the input are treated as roots rather than dropped.
func BuildForest(all []Role) []*Node {
	nodes := make(map[int64]*Node, len(all))
	for _, role := range all {
		nodes[role.ID] = &Node{Role: role}
	}
	var roots []*Node
	for _, role := range all {
		node := nodes[role.ID]
		if role.ParentRoleID != nil {
			if parent, ok := nodes[*role.ParentRoleID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
