// Package fileindex maintains the in-memory mapping from project-relative
// path to file descriptor. It is the source of truth for what builders see:
// populated by an initial scan, then mutated only by the filesystem event
// aggregator.
package fileindex

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileRef describes one project file. Identity is RelPath.
type FileRef struct {
	RelPath string
	Mode    os.FileMode
	FsPath  string
}

// Index maps relative paths to file descriptors.
type Index struct {
	root  string
	mu    sync.RWMutex
	files map[string]FileRef
}

// NewIndex creates an empty index rooted at root.
func NewIndex(root string) *Index {
	return &Index{
		root:  root,
		files: make(map[string]FileRef),
	}
}

// Root returns the project root the index is scoped to.
func (idx *Index) Root() string {
	return idx.root
}

// Scan enumerates the project and populates the index, respecting the
// ignore filter. Existing entries are replaced wholesale.
func (idx *Index) Scan(ignore *IgnoreFilter) error {
	files := make(map[string]FileRef)

	err := filepath.WalkDir(idx.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(idx.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if rel == "." {
			return nil
		}

		if ignore != nil && ignore.Ignores(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Raced with a delete; skip rather than fail the scan.
			return nil
		}

		files[rel] = FileRef{
			RelPath: rel,
			Mode:    info.Mode(),
			FsPath:  path,
		}

		return nil
	})
	if err != nil {
		return err
	}

	idx.mu.Lock()
	idx.files = files
	idx.mu.Unlock()

	return nil
}

// Stat refreshes a single entry from disk. Returns os.ErrNotExist (wrapped)
// when the path is gone, in which case the caller should Remove it.
func (idx *Index) Stat(relPath string) (FileRef, error) {
	fsPath := filepath.Join(idx.root, filepath.FromSlash(relPath))

	info, err := os.Stat(fsPath)
	if err != nil {
		return FileRef{}, err
	}

	return FileRef{
		RelPath: relPath,
		Mode:    info.Mode(),
		FsPath:  fsPath,
	}, nil
}

// Set adds or replaces an entry.
func (idx *Index) Set(ref FileRef) {
	idx.mu.Lock()
	idx.files[ref.RelPath] = ref
	idx.mu.Unlock()
}

// Remove drops an entry. Removing an absent path is a no-op.
func (idx *Index) Remove(relPath string) {
	idx.mu.Lock()
	delete(idx.files, relPath)
	idx.mu.Unlock()
}

// Get looks up a single entry.
func (idx *Index) Get(relPath string) (FileRef, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ref, ok := idx.files[relPath]

	return ref, ok
}

// Has reports whether relPath is indexed.
func (idx *Index) Has(relPath string) bool {
	_, ok := idx.Get(relPath)

	return ok
}

// Snapshot returns a shallow copy of the index for handing to builders.
func (idx *Index) Snapshot() map[string]FileRef {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	files := make(map[string]FileRef, len(idx.files))
	for k, v := range idx.files {
		files[k] = v
	}

	return files
}

// Paths returns all indexed paths, sorted.
func (idx *Index) Paths() []string {
	idx.mu.RLock()
	paths := make([]string, 0, len(idx.files))
	for k := range idx.files {
		paths = append(paths, k)
	}
	idx.mu.RUnlock()

	sort.Strings(paths)

	return paths
}

// Len returns the number of indexed files.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.files)
}
