package nav

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

var (
	ErrInvalidIndex = errors.New("invalid entry number")
	ErrNotFound     = errors.New("entry no longer exists")
	ErrAtRoot       = errors.New("already at root")
)

// Item is a resolved entry of the last listing.
type Item struct {
	Name  string
	Path  string
	IsDir bool
}

// Navigator tracks a current directory and the snapshot of its last
// listing. Index references are only ever resolved against that snapshot.
type Navigator struct {
	path    string
	entries []string
}

// Root returns the filesystem root of the running platform.
func Root() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

func New(start string) *Navigator {
	if start == "" {
		start = Root()
	}
	if abs, err := filepath.Abs(start); err == nil {
		start = abs
	}
	return &Navigator{path: start}
}

func (n *Navigator) Path() string { return n.path }

func (n *Navigator) Entries() []string {
	return append([]string(nil), n.entries...)
}

// List reads the current directory and replaces the snapshot. On failure
// the previous snapshot is kept.
func (n *Navigator) List() ([]string, error) {
	names, err := readNames(n.path)
	if err != nil {
		return nil, err
	}
	n.entries = names
	return n.Entries(), nil
}

// Resolve maps a 1-based index onto the current snapshot.
func (n *Navigator) Resolve(index int) (Item, error) {
	if index < 1 || index > len(n.entries) {
		return Item{}, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	name := n.entries[index-1]
	p := filepath.Join(n.path, name)

	fi, err := os.Stat(p)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
	}

	return Item{Name: name, Path: p, IsDir: fi.IsDir()}, nil
}

// Enter lists a directory and makes it current. Nothing changes if the
// directory cannot be read.
func (n *Navigator) Enter(item Item) ([]string, error) {
	if !item.IsDir {
		return nil, fmt.Errorf("enter %s: not a directory", item.Name)
	}
	return n.moveTo(item.Path)
}

// Up moves to the parent directory and lists it.
func (n *Navigator) Up() ([]string, error) {
	parent := filepath.Dir(filepath.Clean(n.path))
	if parent == "" || parent == n.path {
		return nil, ErrAtRoot
	}
	return n.moveTo(parent)
}

func (n *Navigator) moveTo(path string) ([]string, error) {
	names, err := readNames(path)
	if err != nil {
		return nil, err
	}
	n.path = path
	n.entries = names
	return n.Entries(), nil
}

func readNames(path string) ([]string, error) {
	des, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", path, err)
	}

	names := make([]string, 0, len(des))
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names, nil
}
