package domain

import (
	"sort"
	"time"
)

// ─── Network Snapshot ───────────────────────────────────────────────────────

// MaxGeneration is the deepest generation the engine looks at.
const MaxGeneration = 5

// TreeNode is one member in a snapshot tree.
type TreeNode struct {
	UserID   string      `json:"user_id"`
	Value    float64     `json:"value"`
	Children []*TreeNode `json:"children,omitempty"`
}

// NetworkSnapshot is a read-only tree rooted at the evaluated user, taken at
// a single point in time.
type NetworkSnapshot struct {
	Root    TreeNode  `json:"root"`
	TakenAt time.Time `json:"taken_at"`
}

// NetworkNode is a flattened descendant. Generation 1 = direct child.
type NetworkNode struct {
	UserID     string  `json:"user_id"`
	Generation int     `json:"generation"`
	Value      float64 `json:"value"`
}

// Flatten walks the tree breadth-first and returns descendants down to
// maxDepth generations. The root is not included.
func (s *NetworkSnapshot) Flatten(maxDepth int) []NetworkNode {
	if s == nil {
		return nil
	}
	var out []NetworkNode
	level := s.Root.Children
	for gen := 1; gen <= maxDepth && len(level) > 0; gen++ {
		var next []*TreeNode
		for _, n := range level {
			if n == nil {
				continue
			}
			out = append(out, NetworkNode{UserID: n.UserID, Generation: gen, Value: n.Value})
			next = append(next, n.Children...)
		}
		level = next
	}
	return out
}

// DescendantRow is the shape storage backends return for one descendant.
type DescendantRow struct {
	UserID   string
	ParentID string
	Value    float64
	Depth    int
}

// BuildSnapshot assembles a tree from descendant rows. Rows deeper than
// maxDepth, rows whose parent is not reachable, and repeated users (graph
// stores may reach a node by more than one path) are dropped.
func BuildSnapshot(rootID string, rootValue float64, rows []DescendantRow, maxDepth int, takenAt time.Time) *NetworkSnapshot {
	snap := &NetworkSnapshot{
		Root:    TreeNode{UserID: rootID, Value: rootValue},
		TakenAt: takenAt,
	}

	sorted := make([]DescendantRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Depth != sorted[j].Depth {
			return sorted[i].Depth < sorted[j].Depth
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	index := map[string]*TreeNode{rootID: &snap.Root}
	for _, r := range sorted {
		if r.Depth < 1 || r.Depth > maxDepth {
			continue
		}
		if _, seen := index[r.UserID]; seen {
			continue
		}
		parent, ok := index[r.ParentID]
		if !ok {
			continue
		}
		node := &TreeNode{UserID: r.UserID, Value: r.Value}
		parent.Children = append(parent.Children, node)
		index[r.UserID] = node
	}
	return snap
}
