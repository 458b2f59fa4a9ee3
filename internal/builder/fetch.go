package builder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"

	"github.com/qobs-build/hermetic/internal/index"
	"github.com/qobs-build/hermetic/internal/msg"
)

var remoteShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

const gitPrefix = "git:"

var errIllegalSource = errors.New("empty or illegal project source")

// IsRemote reports whether src names a git remote rather than a local
// directory.
func IsRemote(src string) bool {
	if strings.HasPrefix(src, gitPrefix) {
		return true
	}
	for shortcut := range remoteShortcuts {
		if strings.HasPrefix(src, shortcut) {
			return true
		}
	}
	return false
}

// remoteURL expands the shortcut of a remote source
func remoteURL(src string) (string, error) {
	if rest, ok := strings.CutPrefix(src, gitPrefix); ok && rest != "" {
		return rest, nil
	}
	for shortcut, url := range remoteShortcuts {
		if rest, ok := strings.CutPrefix(src, shortcut); ok && rest != "" {
			return url + rest, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errIllegalSource, src)
}

// ResolveProjectDir returns a local directory holding the project source.
// Remote sources are cloned into the cache on first use, and pulled again
// when update is set.
func ResolveProjectDir(src string, idx *index.Index, update bool) (string, error) {
	if src == "" {
		return "", errIllegalSource
	}
	if !IsRemote(src) {
		return filepath.Abs(src)
	}

	url, err := remoteURL(src)
	if err != nil {
		return "", err
	}

	if dir, ok := idx.Path(src); ok {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			if update {
				if err := pullGitRepo(dir, parseGitURL(url)); err != nil {
					return "", fmt.Errorf("failed to update %s: %w", src, err)
				}
			}
			return dir, nil
		}
	}

	rel := cacheDirName(src)
	dir := filepath.Join(idx.BasePath(), rel)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	msg.Info("fetching %s", src)
	if err := cloneGitRepo(url, dir); err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", src, err)
	}
	idx.Set(src, rel)
	if err := idx.Save(); err != nil {
		return "", fmt.Errorf("failed to save project cache index: %w", err)
	}
	return dir, nil
}

// cacheDirName turns a source into a directory name
func cacheDirName(src string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, src)
}

type gitURL struct {
	cleanURL    string
	branch      string
	commitOrTag string
}

// someone/something@master#0.1.0
// someone/something@feature-branch#12345abc
// someone/something#12345abc
func parseGitURL(rawURL string) (res gitURL) {
	parts := strings.SplitN(rawURL, "#", 2)
	baseURL := parts[0]
	if len(parts) == 2 {
		res.commitOrTag = parts[1]
	}

	// the @ of user@host is not a branch
	at := strings.LastIndexByte(baseURL, '@')
	if at > strings.LastIndexByte(baseURL, '/') {
		res.cleanURL, res.branch = baseURL[:at], baseURL[at+1:]
	} else {
		res.cleanURL = baseURL
	}

	if !strings.HasSuffix(res.cleanURL, ".git") {
		res.cleanURL += ".git"
	}

	return
}

func progress() *msg.IndentWriter {
	return &msg.IndentWriter{Indent: "    ", W: msg.Out}
}

// cloneGitRepo clones a remote into the given directory
func cloneGitRepo(url, toWhere string) error {
	parsedURL := parseGitURL(url)

	cloneOptions := &git.CloneOptions{
		URL:               parsedURL.cleanURL,
		Progress:          progress(),
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}

	if parsedURL.commitOrTag == "" {
		cloneOptions.Depth = 1 // the latest commit is enough
	}

	if parsedURL.branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(parsedURL.branch)
		cloneOptions.SingleBranch = true
	}

	repo, err := git.PlainClone(toWhere, cloneOptions)
	if err != nil {
		return err
	}

	if parsedURL.commitOrTag != "" {
		return checkout(repo, parsedURL.commitOrTag)
	}
	return nil
}

func checkout(repo *git.Repository, revision string) error {
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("could not get worktree: %w", err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return fmt.Errorf("could not resolve revision `%s`: %w", revision, err)
	}

	err = w.Checkout(&git.CheckoutOptions{
		Hash:  *hash,
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("failed to checkout `%s`: %w", revision, err)
	}
	return nil
}

// pullGitRepo brings a cached checkout up to date. Pinned revisions never
// move.
func pullGitRepo(dir string, parsedURL gitURL) error {
	if parsedURL.commitOrTag != "" {
		return nil
	}
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return err
	}
	w, err := repo.Worktree()
	if err != nil {
		return err
	}
	opts := &git.PullOptions{
		RemoteName: "origin",
		Depth:      1,
		Progress:   progress(),
	}
	if parsedURL.branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(parsedURL.branch)
		opts.SingleBranch = true
	}
	err = w.Pull(opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}
