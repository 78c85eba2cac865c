package source

import (
	"context"
	"fmt"
	"strings"
)

// Snapshot describes the state of the source tree a run built from.
// The zero value means the directory is not a git repository (or has no
// commits yet); the pipeline builds it anyway.
type Snapshot struct {
	SHA      string
	ShortSHA string
	Branch   string
	Dirty    bool
}

// Known reports whether git metadata was resolved.
func (s Snapshot) Known() bool {
	return s.SHA != ""
}

// String renders the snapshot for run summaries.
func (s Snapshot) String() string {
	if !s.Known() {
		return "unknown"
	}
	desc := s.ShortSHA
	if s.Branch != "" {
		desc = fmt.Sprintf("%s (%s)", desc, s.Branch)
	}
	if s.Dirty {
		desc += " dirty"
	}
	return desc
}

// Describe resolves the git snapshot of dir. A directory outside any git
// repository, or a repository without commits, yields the zero Snapshot
// with no error.
func Describe(ctx context.Context, dir string) (Snapshot, error) {
	if _, err := gitExec(ctx, dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		return Snapshot{}, nil
	}

	sha, err := gitExec(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		// Repository exists but has no commits yet
		return Snapshot{}, nil
	}

	shortSHA, err := gitExec(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return Snapshot{}, err
	}

	branch, err := gitExec(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return Snapshot{}, err
	}

	status, err := gitExec(ctx, dir, "status", "--porcelain")
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		SHA:      strings.TrimSpace(sha),
		ShortSHA: strings.TrimSpace(shortSHA),
		Branch:   strings.TrimSpace(branch),
		Dirty:    strings.TrimSpace(status) != "",
	}, nil
}

// Sync fetches origin and checks out the given ref. Used by serve mode to
// move the working copy to the commit a trigger named.
func Sync(ctx context.Context, dir, ref string) error {
	if _, err := gitExec(ctx, dir, "fetch", "origin"); err != nil {
		return err
	}
	if _, err := gitExec(ctx, dir, "checkout", ref); err != nil {
		return err
	}
	return nil
}
