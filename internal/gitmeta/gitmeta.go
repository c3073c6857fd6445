// Package gitmeta reads repository metadata by shelling out to git.
package gitmeta

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Unknown is reported for any value git could not provide.
const Unknown = "unknown"

// Commander executes commands. Tests substitute a fake.
type Commander interface {
	RunInDir(dir, name string, args ...string) (string, error)
}

// ShellCommander executes real commands.
type ShellCommander struct{}

// RunInDir executes a command in dir and returns its trimmed stdout.
func (ShellCommander) RunInDir(dir, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Info identifies the code being scanned.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BranchName string `json:"branch_name"`
	RepoURL    string `json:"repo_url"`
}

// Client runs git in one working directory.
type Client struct {
	commander Commander
	workDir   string
}

// NewClient creates a Client for workDir using the real git binary.
func NewClient(workDir string) *Client {
	return NewClientWithCommander(workDir, ShellCommander{})
}

// NewClientWithCommander creates a Client with a custom commander.
func NewClientWithCommander(workDir string, c Commander) *Client {
	return &Client{commander: c, workDir: workDir}
}

func (c *Client) git(args ...string) (string, error) {
	return c.commander.RunInDir(c.workDir, "git", args...)
}

// CommitHash returns the HEAD commit.
func (c *Client) CommitHash() (string, error) {
	out, err := c.git("rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitmeta: commit hash: %w", err)
	}
	return out, nil
}

// BranchName returns the current branch, "HEAD" when detached.
func (c *Client) BranchName() (string, error) {
	out, err := c.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitmeta: branch name: %w", err)
	}
	return out, nil
}

// RemoteURL returns the origin remote URL.
func (c *Client) RemoteURL() (string, error) {
	out, err := c.git("config", "--get", "remote.origin.url")
	if err != nil {
		return "", fmt.Errorf("gitmeta: remote url: %w", err)
	}
	if out == "" {
		return "", fmt.Errorf("gitmeta: remote url: origin not configured")
	}
	return out, nil
}

// Collect returns all metadata, substituting Unknown for anything git
// cannot answer.
func (c *Client) Collect() Info {
	orUnknown := func(s string, err error) string {
		if err != nil || s == "" {
			return Unknown
		}
		return s
	}
	return Info{
		CommitHash: orUnknown(c.CommitHash()),
		BranchName: orUnknown(c.BranchName()),
		RepoURL:    orUnknown(c.RemoteURL()),
	}
}

// ListFiles returns tracked and untracked, non-ignored files relative to
// the working directory.
func (c *Client) ListFiles() ([]string, error) {
	out, err := c.git("ls-files", "--cached", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("gitmeta: ls-files: %w", err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
