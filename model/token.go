package model

import (
	"fmt"
	"strings"
)

// TokenTree is the decoded form of a natural key: a tree keyed by
// natural-key attribute names, where relation attributes recurse into the
// related type's own token tree.
type TokenTree map[string]any

// Get walks the tree along the given keys and returns the leaf value, or
// the empty string when the path does not lead to a leaf.
func (t TokenTree) Get(keys ...string) string {
	var cur any = t
	for _, key := range keys {
		node, ok := cur.(TokenTree)
		if !ok {
			return ""
		}
		cur = node[key]
	}
	leaf, ok := cur.(string)
	if !ok {
		return ""
	}
	return leaf
}

// tokenNode is the ordered template for hydrating a natural key. TokenTree
// maps cannot be used during hydration because part order matters.
type tokenNode struct {
	name     string
	children []*tokenNode // nil for leaf nodes
}

// Tokenize decodes a reference's natural-key string back into a tree keyed
// by natural-key attribute names. Relation attributes are decoded by
// recursively merging the token trees of all concrete subtypes of the
// declared related type, since the stored key carries no discriminator for
// every ancestor branch. It fails with ErrInvalidReference when the
// reference's part count does not match the expected leaf count.
func (r *Registry) Tokenize(ref Reference) (TokenTree, error) {
	name := ref.ObjectType()
	if name == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	if !r.IsConcrete(name) {
		if !r.IsRegistered(name) {
			return nil, fmt.Errorf("%w: unknown type in %q", ErrInvalidReference, ref)
		}
		return nil, fmt.Errorf("%w: %q does not name a concrete type", ErrInvalidReference, ref)
	}

	template, err := r.buildTokenTemplate(name)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(ref.NaturalKey(), "|")
	if want := countLeaves(template); want != len(parts) {
		return nil, fmt.Errorf("%w: %q has %d natural-key parts, expected %d", ErrInvalidReference, ref, len(parts), want)
	}

	tree, _ := hydrate(template, parts)
	return tree, nil
}

// buildTokenTemplate builds the ordered token template for a type:
// one leaf per scalar natural-key attribute, and a merged subtree over all
// concrete subtypes of the related type for relation attributes.
func (r *Registry) buildTokenTemplate(name string) ([]*tokenNode, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	var nodes []*tokenNode
	for _, attr := range d.NaturalKey {
		rel, isRelation := d.Relations[attr]
		if !isRelation {
			nodes = append(nodes, &tokenNode{name: attr})
			continue
		}

		concrete, err := r.ToConcrete(rel.Types)
		if err != nil {
			return nil, err
		}
		merged, err := r.mergeTemplates(concrete)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &tokenNode{name: attr, children: merged})
	}
	return nodes, nil
}

// mergeTemplates combines the token templates of several concrete types
// into one, keeping the position of the first occurrence of each attribute
// name.
func (r *Registry) mergeTemplates(names []string) ([]*tokenNode, error) {
	var merged []*tokenNode
	index := make(map[string]int)
	for _, name := range names {
		template, err := r.buildTokenTemplate(name)
		if err != nil {
			return nil, err
		}
		for _, node := range template {
			if at, ok := index[node.name]; ok {
				merged[at] = node
				continue
			}
			index[node.name] = len(merged)
			merged = append(merged, node)
		}
	}
	return merged, nil
}

func countLeaves(nodes []*tokenNode) int {
	n := 0
	for _, node := range nodes {
		if node.children == nil {
			n++
		} else {
			n += countLeaves(node.children)
		}
	}
	return n
}

// hydrate fills the ordered template with natural-key parts, consuming
// parts left to right, and returns the resulting tree plus the unconsumed
// remainder.
func hydrate(nodes []*tokenNode, parts []string) (TokenTree, []string) {
	tree := make(TokenTree, len(nodes))
	for _, node := range nodes {
		if node.children == nil {
			tree[node.name] = parts[0]
			parts = parts[1:]
			continue
		}
		var sub TokenTree
		sub, parts = hydrate(node.children, parts)
		tree[node.name] = sub
	}
	return tree, parts
}
