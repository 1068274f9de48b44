package stage

import (
	"fmt"
	"strconv"
)

// ConffileType is the File.Type value marking a configuration file.
const ConffileType = "conffile"

// Permissions holds Unix permission bits, including the set-id and sticky
// bits, as written in octal (e.g. 0755, 04755).
type Permissions uint32

// ParsePermissions parses an octal permission string such as "0755".
func ParsePermissions(s string) (Permissions, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q: %w", s, err)
	}
	if v > 0o7777 {
		return 0, fmt.Errorf("invalid octal mode %q: out of range", s)
	}
	return Permissions(v), nil
}

func (p Permissions) String() string {
	return fmt.Sprintf("%04o", uint32(p))
}

// StagedEntry is a file, directory or symbolic link that already exists in
// the staging directory. It is implemented by File, Directory and Link only.
type StagedEntry interface {
	// Location is the path relative to the staging root, starting with "/".
	Location() string
	// Ownership returns the declared owner and group, by name or numeric id.
	Ownership() (owner, group string)

	staged()
}

// File is a staged regular file.
type File struct {
	StagedLocation string
	Owner          string
	Group          string
	Permissions    Permissions
	// Type is free-form; ConffileType lists the file in DEBIAN/conffiles.
	Type string
}

// IsConffile reports whether the file belongs in the conffiles manifest.
func (f File) IsConffile() bool { return f.Type == ConffileType }

func (f File) Location() string { return f.StagedLocation }
func (f File) Ownership() (owner, group string) { return f.Owner, f.Group }
func (File) staged() {}

// Directory is a staged directory.
type Directory struct {
	StagedLocation string
	Owner          string
	Group          string
	Permissions    Permissions
}

func (d Directory) Location() string { return d.StagedLocation }
func (d Directory) Ownership() (owner, group string) { return d.Owner, d.Group }
func (Directory) staged() {}

// Link is a staged symbolic link. Links carry no permissions.
type Link struct {
	StagedLocation string
	Owner          string
	Group          string
}

func (l Link) Location() string { return l.StagedLocation }
func (l Link) Ownership() (owner, group string) { return l.Owner, l.Group }
func (Link) staged() {}

// Sections holds the declarative lists describing the package.
type Sections struct {
	// Lifecycle script bodies, one shell command line per element.
	Preinstall    []string
	Postinstall   []string
	Preuninstall  []string
	Postuninstall []string

	Files       []File
	Directories []Directory
	Links       []Link

	// Dependencies are Depends entries such as "libc6 (>= 2.31)".
	Dependencies []string
}

// Conffiles returns the locations of the conffile entries of Files, in order.
func (s Sections) Conffiles() []string {
	var paths []string
	for _, f := range s.Files {
		if f.IsConffile() {
			paths = append(paths, f.StagedLocation)
		}
	}
	return paths
}
