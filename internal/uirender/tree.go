package uirender

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
)

// DirEntry is the subset of namespace.DirEntry uirender needs to
// render a directory listing as a tree, kept decoupled from the
// namespace package so this stays a presentation-only leaf.
type DirEntry struct {
	Name     string
	Kind     string
	Children []DirEntry
}

// RenderDirTree builds a lipgloss tree of a directory listing,
// generalizing the teacher's BuildEntityTree (entity graph nesting by
// path) to namespace directory nesting by Children.
func RenderDirTree(root string, entries []DirEntry) string {
	t := tree.New().Root(root)
	t.EnumeratorStyle(lipgloss.NewStyle().Foreground(Accent))
	t.RootStyle(lipgloss.NewStyle().Bold(true).Foreground(Accent))
	for _, e := range entries {
		t.Child(buildNode(e))
	}
	return t.String()
}

func buildNode(e DirEntry) *tree.Tree {
	label := e.Name
	if e.Kind != "" {
		label = fmt.Sprintf("%s [%s]", e.Name, e.Kind)
	}
	node := tree.New().Root(label)
	node.EnumeratorStyle(lipgloss.NewStyle().Foreground(Muted))
	for _, c := range e.Children {
		node.Child(buildNode(c))
	}
	return node
}

// BranchEdge is one branch-ancestry edge for RenderBranchTree: name,
// and the name of the branch it forked from (empty for the root
// branch).
type BranchEdge struct {
	Name   string
	Parent string
	Head   uint64
}

// RenderBranchTree renders the branch registry as a tree rooted at
// "main", nesting each branch under the branch it forked from.
func RenderBranchTree(edges []BranchEdge) string {
	nodes := make(map[string]*tree.Tree, len(edges))
	for _, e := range edges {
		nodes[e.Name] = tree.New().Root(fmt.Sprintf("%s (view %d)", e.Name, e.Head))
	}

	var root *tree.Tree
	for _, e := range edges {
		n := nodes[e.Name]
		if e.Parent == "" {
			root = n
			n.RootStyle(lipgloss.NewStyle().Bold(true).Foreground(Accent))
			continue
		}
		n.RootStyle(lipgloss.NewStyle().Foreground(Accent))
		if parent, ok := nodes[e.Parent]; ok {
			parent.Child(n)
		}
	}
	if root == nil {
		return Hint("no branches")
	}
	return root.String()
}
