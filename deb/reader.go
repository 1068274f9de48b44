package deb

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/blakesmith/ar"
)

// Archive is the content of a .deb file as read by ReadArchive.
type Archive struct {
	// Control is the parsed control file; RawControl its exact text.
	Control    Control
	RawControl string

	// Conffiles lists the conffiles manifest entries, in file order.
	Conffiles []string

	// Scripts holds the maintainer scripts present in the archive.
	Scripts map[ControlFile]string

	// Entries lists the members of the data archive, in archive order.
	Entries []Entry
}

// Entry describes one member of the data archive.
type Entry struct {
	// Path is the installed absolute path (e.g. "/usr/bin/app").
	Path     string
	Mode     int64
	Uid      int
	Gid      int
	Linkname string
	Dir      bool
}

// ReadArchive parses a .deb archive from r.
// control.tar and data.tar members may be uncompressed, gzip or zstd
// compressed, which covers what dpkg-deb produces by default on current
// Debian and Ubuntu releases.
func ReadArchive(r io.Reader) (*Archive, error) {
	a := &Archive{Scripts: make(map[ControlFile]string)}
	var sawControl bool

	arR := ar.NewReader(r)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ar header: %w", err)
		}

		// Some ar writers pad names with a trailing slash.
		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")

		switch {
		case name == string(PkgDebianBinary):
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, arR); err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
			if !strings.HasPrefix(buf.String(), "2.") {
				return nil, fmt.Errorf("unsupported package format version %q", strings.TrimSpace(buf.String()))
			}
		case strings.HasPrefix(name, "control.tar"):
			if err := a.readControlTar(name, arR); err != nil {
				return nil, err
			}
			sawControl = true
		case strings.HasPrefix(name, "data.tar"):
			if err := a.readDataTar(name, arR); err != nil {
				return nil, err
			}
		}
	}

	if !sawControl {
		return nil, fmt.Errorf("control archive not found")
	}
	return a, nil
}

func (a *Archive) readControlTar(member string, r io.Reader) error {
	dr, closeFn, err := decompress(member, r)
	if err != nil {
		return fmt.Errorf("opening %s: %w", member, err)
	}
	defer closeFn()

	tr := tar.NewReader(dr)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading control tar header: %w", err)
		}
		if th.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Base(th.Name)
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		content := buf.String()

		switch cf := ControlFile(name); {
		case cf == FileControl:
			c, err := ParseControl(content)
			if err != nil {
				return fmt.Errorf("parsing control file: %w", err)
			}
			a.Control = c
			a.RawControl = content
		case cf == FileConffiles:
			for _, line := range strings.Split(content, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					a.Conffiles = append(a.Conffiles, line)
				}
			}
		case cf.IsScript():
			a.Scripts[cf] = content
		}
	}
	return nil
}

func (a *Archive) readDataTar(member string, r io.Reader) error {
	dr, closeFn, err := decompress(member, r)
	if err != nil {
		return fmt.Errorf("opening %s: %w", member, err)
	}
	defer closeFn()

	tr := tar.NewReader(dr)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading data tar header: %w", err)
		}

		destPath := "/" + strings.TrimPrefix(th.Name, "./")
		destPath = path.Clean(destPath)

		a.Entries = append(a.Entries, Entry{
			Path:     destPath,
			Mode:     th.Mode,
			Uid:      th.Uid,
			Gid:      th.Gid,
			Linkname: th.Linkname,
			Dir:      th.Typeflag == tar.TypeDir,
		})
	}
	return nil
}

// Entry returns the data entry installed at p, or nil.
func (a *Archive) Entry(p string) *Entry {
	for i := range a.Entries {
		if a.Entries[i].Path == p {
			return &a.Entries[i]
		}
	}
	return nil
}
