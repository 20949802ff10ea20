package server

import (
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/repo"
)

// commitsSince walks parent links back from head, collecting every commit
// not equal to stop (the zero hash means "walk to the root"). Mirrors
// internal/client's commitsSince, used there for the symmetric upload side
// of the same tree/between and tree/from shapes this answers.
func commitsSince(r *repo.Repository, head, stop oxenhash.Hash) ([]oxenhash.Hash, error) {
	var out []oxenhash.Hash
	visited := map[oxenhash.Hash]bool{}
	var walk func(h oxenhash.Hash) error
	walk = func(h oxenhash.Hash) error {
		if h.IsZero() || h == stop || visited[h] {
			return nil
		}
		visited[h] = true
		c, err := r.GetCommit(h)
		if err != nil {
			return err
		}
		out = append(out, h)
		for _, p := range c.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(head); err != nil {
		return nil, err
	}
	return out, nil
}

// collectTreeNodes walks every Directory/VNode/File node reachable from root
// and records its canonical bytes into nodes, keyed by hex hash. Blob/chunk
// content is never included — tree/between and tree/from answer metadata
// only (spec.md §6.1), leaving blob transfer to versions/chunk.
func collectTreeNodes(r *repo.Repository, root oxenhash.Hash, nodes map[string][]byte) error {
	if _, ok := nodes[root.String()]; ok {
		return nil
	}
	data, err := r.Objects.Get(root)
	if err != nil {
		return fmt.Errorf("load directory %s: %w", root, err)
	}
	node, err := merkle.DecodeNode(data)
	if err != nil {
		return err
	}
	dir, ok := node.(*merkle.Directory)
	if !ok {
		return fmt.Errorf("%s is a %s node, not a directory", root, node.Kind())
	}
	nodes[root.String()] = data

	for _, entry := range dir.VNodes {
		if err := collectVNode(r, entry.Hash, nodes); err != nil {
			return err
		}
	}
	return nil
}

func collectVNode(r *repo.Repository, h oxenhash.Hash, nodes map[string][]byte) error {
	if _, ok := nodes[h.String()]; ok {
		return nil
	}
	data, err := r.Objects.Get(h)
	if err != nil {
		return fmt.Errorf("load vnode %s: %w", h, err)
	}
	node, err := merkle.DecodeNode(data)
	if err != nil {
		return err
	}
	vn, ok := node.(*merkle.VNode)
	if !ok {
		return fmt.Errorf("%s is a %s node, not a vnode", h, node.Kind())
	}
	nodes[h.String()] = data

	for _, c := range vn.Children {
		switch c.Kind {
		case merkle.ChildDirectory:
			if err := collectTreeNodes(r, c.Hash, nodes); err != nil {
				return err
			}
		case merkle.ChildFile:
			if err := collectFileNode(r, c.Hash, nodes); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectFileNode(r *repo.Repository, h oxenhash.Hash, nodes map[string][]byte) error {
	if _, ok := nodes[h.String()]; ok {
		return nil
	}
	data, err := r.Objects.Get(h)
	if err != nil {
		return fmt.Errorf("load file %s: %w", h, err)
	}
	if _, err := merkle.DecodeNode(data); err != nil {
		return err
	}
	nodes[h.String()] = data
	return nil
}

// nodeBundleFrom builds the tree/from response: every commit back to the
// root reachable from head, plus each commit's reachable tree nodes.
func nodeBundleFrom(r *repo.Repository, head oxenhash.Hash) (map[string][]byte, error) {
	commits, err := commitsSince(r, head, oxenhash.Hash{})
	if err != nil {
		return nil, err
	}
	return bundleCommits(r, commits)
}

// nodeBundleBetween builds the tree/between response: every commit reachable
// from head but not from base, plus their reachable tree nodes.
func nodeBundleBetween(r *repo.Repository, base, head oxenhash.Hash) (map[string][]byte, error) {
	commits, err := commitsSince(r, head, base)
	if err != nil {
		return nil, err
	}
	return bundleCommits(r, commits)
}

func bundleCommits(r *repo.Repository, commits []oxenhash.Hash) (map[string][]byte, error) {
	nodes := make(map[string][]byte)
	for _, h := range commits {
		data, err := r.Objects.Get(h)
		if err != nil {
			return nil, fmt.Errorf("load commit %s: %w", h, err)
		}
		nodes[h.String()] = data

		c, err := r.GetCommit(h)
		if err != nil {
			return nil, err
		}
		if err := collectTreeNodes(r, c.RootHash, nodes); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}
