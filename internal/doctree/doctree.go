// Package doctree ingests parsed document trees and produces the
// deterministic traversal order the extraction fan-out runs over.
package doctree

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/relief-ops/checklist-cli/internal/model"
)

// ErrMalformedTree is returned when the input graph is not a tree. The tree
// comes from an external parser, so treeness is re-asserted here rather than
// trusted.
var ErrMalformedTree = eris.New("doctree: input is not a tree")

// ErrEmptyTree is returned for a nil or zero-node input. Empty input is a
// pipeline-level fault.
var ErrEmptyTree = eris.New("doctree: empty input tree")

// Document pairs the root node with document-level metadata used by the
// formatter's specification block.
type Document struct {
	Title     string              `json:"title"`
	Scope     string              `json:"scope,omitempty"`
	Trigger   string              `json:"trigger,omitempty"`
	Objective string              `json:"objective,omitempty"`
	Root      *model.DocumentNode `json:"root"`
}

// Load reads a document tree from the JSON format emitted by the external
// parser and validates its shape.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "doctree: open %s", path)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a document tree from r and validates it.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "doctree: decode")
	}
	if doc.Root == nil {
		return nil, ErrEmptyTree
	}
	if err := Validate(doc.Root); err != nil {
		return nil, err
	}
	linkParents(doc.Root, "")
	return &doc, nil
}

// Validate re-asserts that the node graph rooted at root is a tree: every
// node has an id, no id repeats, and no node is reachable twice.
func Validate(root *model.DocumentNode) error {
	if root == nil {
		return ErrEmptyTree
	}
	seen := make(map[*model.DocumentNode]bool)
	ids := make(map[string]bool)

	var walk func(n *model.DocumentNode) error
	walk = func(n *model.DocumentNode) error {
		if n == nil {
			return eris.Wrap(ErrMalformedTree, "nil child node")
		}
		if n.ID == "" {
			return eris.Wrap(ErrMalformedTree, "node without id")
		}
		if seen[n] {
			return eris.Wrapf(ErrMalformedTree, "cycle through node %s", n.ID)
		}
		if ids[n.ID] {
			return eris.Wrapf(ErrMalformedTree, "duplicate node id %s", n.ID)
		}
		seen[n] = true
		ids[n.ID] = true
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

// Flatten returns the pre-order traversal of the tree. The order is a pure
// function of the tree, which makes extraction fan-out and aggregation
// reproducible across runs.
func Flatten(root *model.DocumentNode) []*model.DocumentNode {
	var out []*model.DocumentNode
	var walk func(n *model.DocumentNode)
	walk = func(n *model.DocumentNode) {
		out = append(out, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func linkParents(n *model.DocumentNode, parentID string) {
	n.ParentID = parentID
	for _, c := range n.Children {
		linkParents(c, n.ID)
	}
}
