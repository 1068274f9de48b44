package stage

import "context"

// OwnershipSetter changes ownership and permissions of staged paths.
// Owners and groups are names or numeric ids.
type OwnershipSetter interface {
	// Chown sets owner and group of paths.
	Chown(ctx context.Context, owner, group string, paths ...string) error
	// Lchown is Chown without following symbolic links.
	Lchown(ctx context.Context, owner, group string, paths ...string) error
	// Chmod sets the permission bits of paths.
	Chmod(ctx context.Context, mode Permissions, paths ...string) error
}

// TreeSizer measures the disk usage of a directory tree in kilobytes.
type TreeSizer interface {
	Size(ctx context.Context, dir string) (int64, error)
}

// ArchiveBuilder turns a staging directory into targetDir/filename.
type ArchiveBuilder interface {
	Build(ctx context.Context, stagingDir, targetDir, filename string) error
}
