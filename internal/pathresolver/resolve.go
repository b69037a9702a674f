// Package pathresolver discovers the git directories that anchor a jit
// repository: the worktree root, the git common directory shared by every
// worktree of a repository, and the two jit directories derived from them.
package pathresolver

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jitdev/jit/internal/jiterr"
)

// ErrNotInRepository indicates no git directory is discoverable from the
// starting directory. It is jiterr.ErrNotInRepository, so errors.Is and
// jiterr.ExitCode recognize it.
var ErrNotInRepository = jiterr.ErrNotInRepository

// PrivateDirName is the per-worktree jit directory, created beside the
// working files so each branch sees its own issue data.
const PrivateDirName = ".jit"

// ControlDirName is the jit subdirectory of the shared git common
// directory, visible to every worktree of the repository.
const ControlDirName = "jit"

// Paths are the directories a jit operation needs, resolved once per
// invocation from the process's working directory.
type Paths struct {
	// CommonDir is the git directory shared by all worktrees of the repo
	// (the main repo's .git, or the target of a linked worktree's gitdir
	// pointer, resolved to its "commondir").
	CommonDir string

	// WorktreeRoot is the top-level directory of the current working tree.
	WorktreeRoot string

	// PrivateDir is WorktreeRoot/.jit: issue data, worktree identity.
	PrivateDir string

	// ControlDir is CommonDir/jit: claims log, index, locks, heartbeats.
	// Shared by every worktree of the repository.
	ControlDir string
}

// Resolve walks up from startDir to find the containing git working tree
// and derives the four paths described in the package doc. It does not
// create any directories; callers create PrivateDir/ControlDir lazily on
// first write.
func Resolve(startDir string) (*Paths, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	worktreeRoot, gitPath, err := findGitDir(absDir)
	if err != nil {
		return nil, err
	}

	commonDir, err := resolveCommonDir(gitPath)
	if err != nil {
		return nil, err
	}

	return &Paths{
		CommonDir:    commonDir,
		WorktreeRoot: worktreeRoot,
		PrivateDir:   filepath.Join(worktreeRoot, PrivateDirName),
		ControlDir:   filepath.Join(commonDir, ControlDirName),
	}, nil
}

// ResolveFromCwd is a convenience wrapper over Resolve(os.Getwd()).
func ResolveFromCwd() (*Paths, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	return Resolve(cwd)
}

// findGitDir walks up from dir looking for a .git entry (directory for a
// normal clone, file for a linked worktree). Returns the directory that
// contains it (the worktree root) and the raw .git path.
func findGitDir(dir string) (worktreeRoot, gitPath string, err error) {
	current := dir
	for {
		candidate := filepath.Join(current, ".git")
		if info, statErr := os.Stat(candidate); statErr == nil {
			if info.IsDir() || info.Mode().IsRegular() {
				return current, candidate, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", "", ErrNotInRepository
		}
		current = parent
	}
}

// resolveCommonDir turns a worktree's ".git" entry into the repository's
// common git directory. For a normal clone this is the .git directory
// itself. For a linked worktree, .git is a file containing a "gitdir:"
// pointer into <main-git-dir>/worktrees/<name>, which in turn carries a
// "commondir" file pointing back at the shared directory.
func resolveCommonDir(gitPath string) (string, error) {
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", fmt.Errorf("statting %s: %w", gitPath, err)
	}

	if info.IsDir() {
		return gitPath, nil
	}

	worktreeGitDir, err := readGitPointer(gitPath)
	if err != nil {
		return "", err
	}

	commonDirFile := filepath.Join(worktreeGitDir, "commondir")
	data, err := os.ReadFile(commonDirFile) //nolint:gosec // G304: path derived from trusted .git pointer chain
	if err != nil {
		if os.IsNotExist(err) {
			// Not a linked worktree after all; treat the pointer target itself
			// as the common directory.
			return worktreeGitDir, nil
		}
		return "", fmt.Errorf("reading commondir: %w", err)
	}

	commonDir := strings.TrimSpace(string(data))
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(worktreeGitDir, commonDir)
	}
	return filepath.Clean(commonDir), nil
}

// readGitPointer parses a ".git" file's "gitdir: <path>" line.
func readGitPointer(gitFile string) (string, error) {
	f, err := os.Open(gitFile) //nolint:gosec // G304: path derived from trusted worktree walk
	if err != nil {
		return "", fmt.Errorf("opening .git pointer: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if rest, ok := strings.CutPrefix(line, "gitdir:"); ok {
			target := strings.TrimSpace(rest)
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(gitFile), target)
			}
			return filepath.Clean(target), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading .git pointer: %w", err)
	}
	return "", fmt.Errorf("%s: missing gitdir: line", gitFile)
}
