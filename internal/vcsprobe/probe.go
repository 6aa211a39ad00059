// Package vcsprobe invokes `git status --porcelain` to populate the
// changed-files boost path of the retrieval pipeline. Only tracked
// changes are reported (spec section 5): untracked files are excluded
// so a freshly-created, unindexed file never skews ranking.
package vcsprobe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Prober lists tracked, dirty files under a repository root via git.
type Prober struct{}

// NewProber returns a Prober. It holds no state; every call resolves
// the root itself so a prober can be shared across codebases.
func NewProber() *Prober { return &Prober{} }

// ChangedFiles returns the relative paths of tracked files with
// uncommitted changes under canonicalRoot. A non-git directory or a
// transport/process failure is reported as an error; the caller (the
// changed-files cache) is responsible for falling back to a stale
// cached value or an empty unavailable result, never failing the
// parent request.
func (p *Prober) ChangedFiles(ctx context.Context, canonicalRoot string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain", "--no-renames")
	cmd.Dir = canonicalRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git status failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parsePorcelain(stdout.Bytes()), nil
}

// parsePorcelain extracts tracked-change relative paths from
// `git status --porcelain` output. Lines whose status begins with
// "??" are untracked and are dropped.
func parsePorcelain(output []byte) []string {
	var files []string

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}

		status := line[:2]
		if status == "??" {
			continue
		}

		path := strings.TrimSpace(line[3:])
		if path == "" {
			continue
		}
		files = append(files, filepath.ToSlash(path))
	}

	return files
}
