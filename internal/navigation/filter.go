// Package navigation loads the dashboard navigation tree and prunes it to
// what a role may see.
package navigation

import (
	"slices"

	"github.com/medinor/dashboard/model"
)

// Filter returns the part of tree visible to role. An empty role sees the
// whole tree.
//
// A leaf with roles survives only if role is listed. A leaf with children
// survives only if at least one child does, and keeps only the surviving
// children. A header with no surviving leaf before the next header (or
// the end) is removed. Order is preserved.
func Filter(tree model.NavigationTree, role string) model.NavigationTree {
	if role == "" {
		return model.NavigationTree{Items: cloneNodes(tree.Items)}
	}

	out := make([]model.NavigationNode, 0, len(tree.Items))
	header := -1
	leaves := 0
	dropEmptyHeader := func() {
		if header >= 0 && leaves == 0 {
			out = out[:header]
		}
	}

	for _, node := range tree.Items {
		if node.IsHeader() {
			dropEmptyHeader()
			header = len(out)
			leaves = 0
			out = append(out, cloneNode(node))
			continue
		}
		if kept, ok := filterLeaf(node, role); ok {
			out = append(out, kept)
			leaves++
		}
	}
	dropEmptyHeader()

	return model.NavigationTree{Items: out}
}

func filterLeaf(node model.NavigationNode, role string) (model.NavigationNode, bool) {
	if node.Roles != nil && !slices.Contains(node.Roles, role) {
		return model.NavigationNode{}, false
	}
	if len(node.Children) == 0 {
		return cloneNode(node), true
	}

	var children []model.NavigationNode
	for _, child := range node.Children {
		if kept, ok := filterLeaf(child, role); ok {
			children = append(children, kept)
		}
	}
	if len(children) == 0 {
		return model.NavigationNode{}, false
	}
	node = cloneNode(node)
	node.Children = children
	return node, true
}

func cloneNode(n model.NavigationNode) model.NavigationNode {
	n.Roles = slices.Clone(n.Roles)
	n.Children = cloneNodes(n.Children)
	return n
}

func cloneNodes(nodes []model.NavigationNode) []model.NavigationNode {
	if nodes == nil {
		return nil
	}
	out := make([]model.NavigationNode, len(nodes))
	for i, n := range nodes {
		out[i] = cloneNode(n)
	}
	return out
}
