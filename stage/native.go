package stage

import (
	"context"
	"fmt"
	"io/fs"
	"os/user"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// NativeOwnership is an OwnershipSetter calling chown(2), lchown(2) and
// chmod(2) directly. Names are resolved through the local user and group
// databases.
type NativeOwnership struct{}

// Chown implements OwnershipSetter.
func (NativeOwnership) Chown(ctx context.Context, owner, group string, paths ...string) error {
	return chownEach(ctx, unix.Chown, owner, group, paths)
}

// Lchown implements OwnershipSetter.
func (NativeOwnership) Lchown(ctx context.Context, owner, group string, paths ...string) error {
	return chownEach(ctx, unix.Lchown, owner, group, paths)
}

// Chmod implements OwnershipSetter.
func (NativeOwnership) Chmod(ctx context.Context, mode Permissions, paths ...string) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := unix.Chmod(p, uint32(mode)); err != nil {
			return fmt.Errorf("chmod %s %s: %w", mode, p, err)
		}
	}
	return nil
}

func chownEach(ctx context.Context, chown func(string, int, int) error, owner, group string, paths []string) error {
	uid, err := lookupUID(owner)
	if err != nil {
		return err
	}
	gid, err := lookupGID(group)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := chown(p, uid, gid); err != nil {
			return fmt.Errorf("chown %s:%s %s: %w", owner, group, p, err)
		}
	}
	return nil
}

func lookupUID(owner string) (int, error) {
	if id, err := strconv.Atoi(owner); err == nil {
		return id, nil
	}
	u, err := user.Lookup(owner)
	if err != nil {
		return 0, fmt.Errorf("resolving owner %q: %w", owner, err)
	}
	return strconv.Atoi(u.Uid)
}

func lookupGID(group string) (int, error) {
	if id, err := strconv.Atoi(group); err == nil {
		return id, nil
	}
	g, err := user.LookupGroup(group)
	if err != nil {
		return 0, fmt.Errorf("resolving group %q: %w", group, err)
	}
	return strconv.Atoi(g.Gid)
}

// BlockSizer is a TreeSizer walking the tree itself. It reports what
// "du -s -k" reports: allocated blocks, symbolic links not followed, each
// hard-linked inode counted once, rounded up to whole kilobytes.
type BlockSizer struct{}

type inodeKey struct {
	dev uint64
	ino uint64
}

// Size implements TreeSizer.
func (BlockSizer) Size(ctx context.Context, dir string) (int64, error) {
	seen := make(map[inodeKey]bool)
	var blocks int64

	err := filepath.WalkDir(dir, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var st unix.Stat_t
		if err := unix.Lstat(p, &st); err != nil {
			return fmt.Errorf("lstat %s: %w", p, err)
		}
		key := inodeKey{dev: uint64(st.Dev), ino: uint64(st.Ino)}
		if st.Nlink > 1 {
			if seen[key] {
				return nil
			}
			seen[key] = true
		}
		// st_blocks is in 512-byte units.
		blocks += int64(st.Blocks)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return (blocks + 1) / 2, nil
}
