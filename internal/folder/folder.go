package folder

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zombor/rma-receiver/internal/storage"
)

// ErrMalformedRMA is returned for identifiers that are not "RMA" followed by
// at least six digits
var ErrMalformedRMA = errors.New("RMA code must start with 'RMA' and have at least 6 digits after RMA")

const (
	// Filler pads a synthesized folder name up to its target length
	Filler = 'x'

	// PrefixFolderLength is the target name length of the two prefix levels
	PrefixFolderLength = 9
)

// Tree selects one of the independent image roots
type Tree int

const (
	TreeReceived Tree = iota
	TreeDamaged
)

func (t Tree) String() string {
	switch t {
	case TreeReceived:
		return "received"
	case TreeDamaged:
		return "damaged"
	default:
		return fmt.Sprintf("tree(%d)", int(t))
	}
}

// Trees holds the root directory of each image tree
type Trees struct {
	Received string
	Damaged  string
}

// Root returns the root directory of a tree
func (t Trees) Root(tree Tree) (string, error) {
	switch tree {
	case TreeReceived:
		return t.Received, nil
	case TreeDamaged:
		return t.Damaged, nil
	default:
		return "", fmt.Errorf("unknown folder tree: %s", tree)
	}
}

// ValidateRMA checks that id is "RMA" followed by six or more digits
func ValidateRMA(id string) error {
	digits, ok := strings.CutPrefix(id, "RMA")
	if !ok || len(digits) < 6 {
		return fmt.Errorf("%w: %q", ErrMalformedRMA, id)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", ErrMalformedRMA, id)
		}
	}
	return nil
}

// Resolver finds or creates the per-RMA image folders
type Resolver struct {
	storage storage.Storage
	trees   Trees
}

// NewResolver creates a new Resolver over the given trees
func NewResolver(store storage.Storage, trees Trees) *Resolver {
	return &Resolver{
		storage: store,
		trees:   trees,
	}
}

// ResolveFolder returns the name of the shortest child directory of root that
// starts with prefix, breaking ties lexicographically. Without a match it
// returns prefix padded with Filler up to length characters. Nothing is
// created.
func (r *Resolver) ResolveFolder(root, prefix string, length int) (string, error) {
	dirs, err := r.storage.ListDirs(root)
	if err != nil {
		return "", fmt.Errorf("resolving %s folder: %w", prefix, err)
	}

	match := ""
	for _, name := range dirs {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if match == "" || len(name) < len(match) || (len(name) == len(match) && name < match) {
			match = name
		}
	}
	if match != "" {
		return match, nil
	}

	if pad := length - len(prefix); pad > 0 {
		return prefix + strings.Repeat(string(Filler), pad), nil
	}
	return prefix, nil
}

// Resolve returns root/<5 char prefix folder>/<6 char prefix folder>/<rma> for
// the selected tree, creating any missing level. Resolving the same RMA twice
// yields the same path.
func (r *Resolver) Resolve(tree Tree, rma string) (string, error) {
	if err := ValidateRMA(rma); err != nil {
		return "", err
	}
	root, err := r.trees.Root(tree)
	if err != nil {
		return "", err
	}

	first, err := r.ResolveFolder(root, rma[:5], PrefixFolderLength)
	if err != nil {
		return "", err
	}
	firstPath := filepath.Join(root, first)
	if err := r.storage.MkdirAll(firstPath); err != nil {
		return "", fmt.Errorf("creating %s folder: %w", tree, err)
	}

	second, err := r.ResolveFolder(firstPath, rma[:6], PrefixFolderLength)
	if err != nil {
		return "", err
	}
	secondPath := filepath.Join(firstPath, second)
	if err := r.storage.MkdirAll(secondPath); err != nil {
		return "", fmt.Errorf("creating %s folder: %w", tree, err)
	}

	rmaPath := filepath.Join(secondPath, rma)
	if err := r.storage.MkdirAll(rmaPath); err != nil {
		return "", fmt.Errorf("creating %s folder: %w", tree, err)
	}
	return rmaPath, nil
}
