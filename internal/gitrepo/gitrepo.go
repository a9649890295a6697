// Package gitrepo wraps the git CLI for the local-clone operations the
// update flow needs: cloning, fetching, resolving commits, and turning a
// commit range into structured file changes.
//
// Clones managed here are indexing mirrors, not working copies; checkouts
// are detached and forced.
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/models"
)

// Repo is a handle on one local clone. All commands run with the clone as
// their working directory.
type Repo struct {
	path string
	log  *slog.Logger
}

// Open binds a Repo to an existing clone. It fails if path does not look
// like a git repository (covers both .git directories and worktree files).
func Open(path string) (*Repo, error) {
	if path == "" {
		return nil, fmt.Errorf("repository path is empty")
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return nil, fmt.Errorf("not a git repository: %s: %w", path, err)
	}
	return &Repo{path: path, log: logging.ForComponent("gitrepo")}, nil
}

// Clone fetches url into path and returns a handle on the new clone. The
// parent directory is created if needed.
func Clone(ctx context.Context, url, path string) (*Repo, error) {
	if url == "" || path == "" {
		return nil, fmt.Errorf("clone requires both url and path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clone parent: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--quiet", url, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("git clone %s failed: %w (output: %s)", url, err, strings.TrimSpace(string(out)))
	}

	return Open(path)
}

// RemoteURL reads the origin URL of the repository containing dir. It
// works from any directory inside a worktree, so callers can pass a
// workspace subdirectory rather than the checkout root.
func RemoteURL(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("directory is empty")
	}
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "remote", "get-url", "origin")
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git remote get-url origin: %w (stderr: %s)", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git remote get-url origin: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Path returns the clone's root directory.
func (r *Repo) Path() string {
	return r.path
}

// Fetch updates remote-tracking refs from origin.
func (r *Repo) Fetch(ctx context.Context) error {
	if _, err := r.run(ctx, "fetch", "--quiet", "--prune", "origin"); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// Head returns the full SHA the local HEAD points at.
func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.ResolveRef(ctx, "HEAD")
}

// ResolveRef resolves any commit-ish (branch, tag, SHA prefix) to a full
// commit SHA.
func (r *Repo) ResolveRef(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("ref is empty")
	}
	out, err := r.run(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	return out, nil
}

// RemoteHead returns the SHA of origin/<branch> as of the last fetch.
func (r *Repo) RemoteHead(ctx context.Context, branch string) (string, error) {
	if branch == "" {
		return "", fmt.Errorf("branch is empty")
	}
	return r.ResolveRef(ctx, "refs/remotes/origin/"+branch)
}

// DefaultBranch reads the remote's default branch from origin/HEAD. Clones
// made without that symref fall back to the currently checked-out branch.
func (r *Repo) DefaultBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if err == nil {
		return strings.TrimPrefix(out, "origin/"), nil
	}

	out, err = r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to determine default branch: %w", err)
	}
	if out == "HEAD" {
		return "", fmt.Errorf("detached HEAD and no origin/HEAD symref; cannot determine default branch")
	}
	return out, nil
}

// Checkout moves the worktree to the given commit, detached. The pipeline
// reads file contents from the worktree, so it must sit at the commit the
// diff was computed against.
func (r *Repo) Checkout(ctx context.Context, sha string) error {
	if sha == "" {
		return fmt.Errorf("commit sha is empty")
	}
	if _, err := r.run(ctx, "checkout", "--quiet", "--force", "--detach", sha); err != nil {
		return fmt.Errorf("git checkout %s failed: %w", sha, err)
	}
	return nil
}

// Diff lists the files that changed between two commits, with rename
// detection. Paths are repo-relative POSIX paths as git reports them.
func (r *Repo) Diff(ctx context.Context, from, to string) ([]models.FileChange, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("diff requires both commit shas (from=%q, to=%q)", from, to)
	}

	// core.quotepath=false keeps non-ASCII paths literal instead of
	// octal-escaped and quoted.
	out, err := r.run(ctx, "-c", "core.quotepath=false", "diff", "--name-status", "-M", from, to)
	if err != nil {
		return nil, fmt.Errorf("git diff %s..%s failed: %w", from, to, err)
	}

	return r.parseNameStatus(out)
}

// parseNameStatus turns `git diff --name-status -M` output into FileChange
// records. One line per change, tab-separated:
//
//	A\tpath            added
//	M\tpath            modified
//	D\tpath            deleted
//	R<score>\told\tnew rename
//	C<score>\told\tnew copy (source keeps existing, so the copy is an add)
//	T\tpath            type change (content rewritten, so a modify)
func (r *Repo) parseNameStatus(out string) ([]models.FileChange, error) {
	if out == "" {
		return nil, nil
	}

	var changes []models.FileChange
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		status := fields[0]

		switch {
		case status == "A" && len(fields) == 2:
			changes = append(changes, models.FileChange{Path: fields[1], Status: models.ChangeAdded})
		case status == "M" && len(fields) == 2:
			changes = append(changes, models.FileChange{Path: fields[1], Status: models.ChangeModified})
		case status == "D" && len(fields) == 2:
			changes = append(changes, models.FileChange{Path: fields[1], Status: models.ChangeDeleted})
		case status == "T" && len(fields) == 2:
			changes = append(changes, models.FileChange{Path: fields[1], Status: models.ChangeModified})
		case strings.HasPrefix(status, "R") && len(fields) == 3:
			changes = append(changes, models.FileChange{
				Path:         fields[2],
				Status:       models.ChangeRenamed,
				PreviousPath: fields[1],
			})
		case strings.HasPrefix(status, "C") && len(fields) == 3:
			changes = append(changes, models.FileChange{Path: fields[2], Status: models.ChangeAdded})
		case status == "U" || status == "X" || strings.HasPrefix(status, "B"):
			r.log.Warn("skipping unsupported diff status", "status", status, "line", line)
		default:
			return nil, fmt.Errorf("unparseable diff line: %q", line)
		}
	}
	return changes, nil
}

// run executes git with the clone as working directory and returns trimmed
// stdout. Failures include git's stderr.
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w (stderr: %s)", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}
