// Package index records which remote project sources have been fetched into
// the local cache and where.
package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

const IndexFilename = "hermetic_projects.json"

type Index struct {
	// on windows: %LocalAppData%/hermetic/projects
	// on linux: ~/.cache/hermetic/projects
	basePath string
	// remote source -> directory relative to basePath
	Projects map[string]string
}

// DefaultBasePath returns the cache directory remote projects go to.
func DefaultBasePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "hermetic", "projects"), nil
}

func Parse(rdr io.Reader, basePath string) (*Index, error) {
	var projects map[string]string
	if err := json.NewDecoder(bufio.NewReader(rdr)).Decode(&projects); err != nil {
		return nil, err
	}
	return &Index{Projects: projects, basePath: basePath}, nil
}

// Load reads the index in basePath. A missing index is an empty one.
func Load(basePath string) (*Index, error) {
	f, err := os.Open(filepath.Join(basePath, IndexFilename))
	if errors.Is(err, os.ErrNotExist) {
		return &Index{basePath: basePath}, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, basePath)
}

func (idx *Index) BasePath() string { return idx.basePath }

func (idx *Index) Save() error {
	if err := os.MkdirAll(idx.basePath, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(idx.basePath, IndexFilename))
	if err != nil {
		return err
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	defer bufw.Flush()

	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	return enc.Encode(idx.Projects)
}

// Path returns the absolute directory a remote source was fetched to
func (idx *Index) Path(source string) (string, bool) {
	dir, ok := idx.Projects[source]
	if !ok {
		return "", false
	}
	return filepath.Join(idx.basePath, dir), true
}

func (idx *Index) Set(source, dir string) {
	if idx.Projects == nil {
		idx.Projects = make(map[string]string)
	}
	idx.Projects[source] = dir
}

func (idx *Index) Has(source string) bool {
	_, exists := idx.Projects[source]
	return exists
}

// Remove forgets a source and deletes its checkout.
func (idx *Index) Remove(source string) (bool, error) {
	path, ok := idx.Path(source)
	if !ok {
		return false, nil
	}
	delete(idx.Projects, source)
	return true, os.RemoveAll(path)
}

// Sources returns every cached source, sorted
func (idx *Index) Sources() []string {
	return slices.Sorted(maps.Keys(idx.Projects))
}
