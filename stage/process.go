package stage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/etnz/stagedeb/internal/logger"
)

// Default tool names, resolved through PATH.
const (
	DefaultChown   = "chown"
	DefaultChmod   = "chmod"
	DefaultDu      = "du"
	DefaultDpkgDeb = "dpkg-deb"
)

// ChownTool is an OwnershipSetter running chown(1) and chmod(1).
type ChownTool struct {
	// ChownPath and ChmodPath override the tool locations.
	ChownPath string
	ChmodPath string
}

func (c ChownTool) chown() string {
	if c.ChownPath != "" {
		return c.ChownPath
	}
	return DefaultChown
}

func (c ChownTool) chmod() string {
	if c.ChmodPath != "" {
		return c.ChmodPath
	}
	return DefaultChmod
}

// Chown implements OwnershipSetter.
func (c ChownTool) Chown(ctx context.Context, owner, group string, paths ...string) error {
	args := append([]string{owner + ":" + group, "--"}, paths...)
	return run(ctx, "", c.chown(), args...)
}

// Lchown implements OwnershipSetter using "chown -h".
func (c ChownTool) Lchown(ctx context.Context, owner, group string, paths ...string) error {
	args := append([]string{"-h", owner + ":" + group, "--"}, paths...)
	return run(ctx, "", c.chown(), args...)
}

// Chmod implements OwnershipSetter.
func (c ChownTool) Chmod(ctx context.Context, mode Permissions, paths ...string) error {
	args := append([]string{mode.String(), "--"}, paths...)
	return run(ctx, "", c.chmod(), args...)
}

// DiskUsage is a TreeSizer running "du -s -k".
type DiskUsage struct {
	// Path overrides the du location.
	Path string
}

// Size implements TreeSizer.
func (d DiskUsage) Size(ctx context.Context, dir string) (int64, error) {
	name := d.Path
	if name == "" {
		name = DefaultDu
	}

	cmd := exec.CommandContext(ctx, name, "-s", "-k", dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}

	logger.DebugKV(ctx, "Running command", "command", cmd.String())
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%s: %w", cmd.String(), err)
	}

	size, parseErr := ParseDiskUsage(stdout)
	// The whole output is consumed before Wait releases the pipe.
	io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		return 0, fmt.Errorf("%s: %w: %s", cmd.String(), err, strings.TrimSpace(stderr.String()))
	}
	if parseErr != nil {
		return 0, fmt.Errorf("%s: %w", cmd.String(), parseErr)
	}
	return size, nil
}

// ParseDiskUsage sums the sizes of a du report. Each non-empty line holds a
// size followed by a path; the paths are ignored.
func ParseDiskUsage(r io.Reader) (int64, error) {
	var total int64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		size, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing du line %q: %w", scanner.Text(), err)
		}
		total += size
	}
	return total, scanner.Err()
}

// DpkgDeb is an ArchiveBuilder running "dpkg-deb -b".
type DpkgDeb struct {
	// Path overrides the dpkg-deb location.
	Path string
}

// Build implements ArchiveBuilder. dpkg-deb runs inside targetDir so that
// filename is created there; stagingDir must therefore be absolute.
func (d DpkgDeb) Build(ctx context.Context, stagingDir, targetDir, filename string) error {
	name := d.Path
	if name == "" {
		name = DefaultDpkgDeb
	}
	return run(ctx, targetDir, name, "-b", stagingDir, filename)
}

// run executes name and waits for it. A nonzero exit status is returned as
// an error carrying the combined output of the tool.
func run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	logger.DebugKV(ctx, "Running command", "command", cmd.String(), "dir", dir)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		logger.DebugKV(ctx, "Command output", "command", name, "output", string(out))
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.String(), err, strings.TrimSpace(string(out)))
	}
	return nil
}
