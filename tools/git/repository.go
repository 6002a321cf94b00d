// Package git wraps the git command line for the operations ontowatch needs:
// cloning, reading history, checking out revisions and recording snapshots.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrRevisionControl wraps every failure of a git operation.
var ErrRevisionControl = errors.New("revision control failure")

// allowedProtocols defines the git URL protocols that are permitted for cloning.
var allowedProtocols = map[string]bool{
	"https": true,
	"http":  true,
	"git":   true,
	"ssh":   true,
}

// Author identifies who records a snapshot commit.
type Author struct {
	Name  string
	Email string
}

// String returns the "Name <email>" form git expects.
func (a Author) String() string {
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// LogEntry is one commit that touched a path.
type LogEntry struct {
	ID       string
	Authored time.Time
}

// Repository is a handle on a local working copy. It is passed explicitly to
// every operation that needs it.
type Repository struct {
	root   string
	logger *slog.Logger
}

// Open returns a handle on an existing working copy.
func Open(root string, logger *slog.Logger) (*Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{root: abs, logger: logger}
	if !r.isGitRepo() {
		return nil, fmt.Errorf("%w: %s is not a git repository", ErrRevisionControl, abs)
	}
	return r, nil
}

// Clone clones repoURL into dest and opens it.
func Clone(ctx context.Context, repoURL, dest string, logger *slog.Logger) (*Repository, error) {
	if err := validateGitURL(repoURL); err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", ErrRevisionControl, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Cloning repository", "url", repoURL, "dest", dest)
	cmd := exec.CommandContext(ctx, "git", "clone", "-q", repoURL, dest)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: clone %s: %v: %s", ErrRevisionControl, repoURL, err, strings.TrimSpace(string(output)))
	}
	return Open(dest, logger)
}

// Root returns the absolute path of the working copy.
func (r *Repository) Root() string {
	return r.root
}

// Log returns the commits that touched path, newest first, as git log
// reports them.
func (r *Repository) Log(ctx context.Context, path string) ([]LogEntry, error) {
	output, err := r.runGit(ctx, "log", "--pretty=format:%H %aI", "--", path)
	if err != nil {
		return nil, err
	}
	return parseLog(output)
}

// parseLog parses "<hash> <strict ISO 8601 author date>" lines.
func parseLog(output string) ([]LogEntry, error) {
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: unexpected log line %q", ErrRevisionControl, line)
		}
		authored, err := time.Parse(time.RFC3339, fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: parse author date %q: %v", ErrRevisionControl, fields[1], err)
		}
		entries = append(entries, LogEntry{ID: fields[0], Authored: authored})
	}
	return entries, nil
}

// Checkout moves the working copy to the given revision.
func (r *Repository) Checkout(ctx context.Context, rev string) error {
	_, err := r.runGit(ctx, "checkout", "-q", rev)
	return err
}

// Pull fast-forwards the current branch from its upstream.
func (r *Repository) Pull(ctx context.Context) error {
	_, err := r.runGit(ctx, "pull", "-q", "--ff-only")
	return err
}

// Stage adds paths (relative to the root) to the index.
func (r *Repository) Stage(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := r.runGit(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// HasStagedChanges reports whether the index differs from HEAD. With paths
// only those paths are considered.
func (r *Repository) HasStagedChanges(ctx context.Context, paths ...string) (bool, error) {
	args := []string{"diff", "--cached", "--name-only"}
	if len(paths) > 0 {
		args = append(append(args, "--"), paths...)
	}
	output, err := r.runGit(ctx, args...)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// Commit records the staged changes and returns the new commit hash. With
// paths only those paths are committed; anything else staged stays staged.
func (r *Repository) Commit(ctx context.Context, author Author, message string, paths ...string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("%w: commit message is required", ErrRevisionControl)
	}
	args := []string{
		"-c", "user.name=" + author.Name,
		"-c", "user.email=" + author.Email,
		"commit", "-q", "--author", author.String(), "-m", message,
	}
	if len(paths) > 0 {
		args = append(append(args, "--only", "--"), paths...)
	}
	if _, err := r.runGit(ctx, args...); err != nil {
		return "", err
	}
	return r.Head(ctx)
}

// Push pushes the current branch to its upstream.
func (r *Repository) Push(ctx context.Context) error {
	_, err := r.runGit(ctx, "push", "-q")
	return err
}

// Ahead counts the commits on HEAD that no remote-tracking branch contains.
// It does not need an upstream, so commits of a branch that was never pushed
// are counted too.
func (r *Repository) Ahead(ctx context.Context) (int, error) {
	output, err := r.runGit(ctx, "rev-list", "--count", "HEAD", "--not", "--remotes")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("%w: rev-list count %q: %v", ErrRevisionControl, output, err)
	}
	return n, nil
}

// Head returns the full hash of HEAD.
func (r *Repository) Head(ctx context.Context) (string, error) {
	output, err := r.runGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// ReadFile reads a file of the working copy.
func (r *Repository) ReadFile(path string) ([]byte, error) {
	if err := validatePath(r.root, filepath.Join(r.root, path)); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(r.root, path))
}

// runGit executes a git command in the repo directory
func (r *Repository) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root

	start := time.Now()
	output, err := cmd.CombinedOutput()
	r.logger.Debug("git", "args", args, "duration", time.Since(start), "error", err)
	if err != nil {
		return string(output), fmt.Errorf("%w: git %s: %v: %s",
			ErrRevisionControl, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// isGitRepo checks if the repo root is a git repository
func (r *Repository) isGitRepo() bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = r.root
	return cmd.Run() == nil
}

// validateGitURL validates that a git URL uses an allowed protocol. Plain
// filesystem paths are accepted; file:// URLs are not.
func validateGitURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}

	// Handle SSH shorthand (git@github.com:owner/repo.git)
	if strings.HasPrefix(rawURL, "git@") {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		return nil
	}
	if scheme == "file" {
		return fmt.Errorf("file:// protocol is not allowed")
	}
	if !allowedProtocols[scheme] {
		return fmt.Errorf("protocol %q not allowed; must be https, http, git, or ssh", scheme)
	}
	return nil
}

// validatePath validates that path stays within baseDir after cleaning.
func validatePath(baseDir, path string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	absBase, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("invalid base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("path must be within %s", absBase)
	}
	return nil
}
