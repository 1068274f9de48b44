package deb

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sys/unix"
)

// Archiver builds .deb archives from a staging directory without calling
// dpkg-deb. The staging directory is archived as it is on disk: ownership,
// modes and symbolic links are recorded unchanged, the ControlDir
// subdirectory becomes control.tar.gz and everything else data.tar.gz.
type Archiver struct {
	// ModTime is the timestamp of the ar members and of generated control
	// entries. If zero, the current time is used.
	ModTime time.Time
}

// md5Entry is one line of the md5sums control file.
type md5Entry struct {
	path string
	sum  string
}

func (a *Archiver) modTime() time.Time {
	if a.ModTime.IsZero() {
		return time.Now()
	}
	return a.ModTime
}

// Build writes the archive of stagingDir to targetDir/filename.
// A partially written archive is removed on failure.
func (a *Archiver) Build(ctx context.Context, stagingDir, targetDir, filename string) error {
	out := filepath.Join(targetDir, filename)
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	if _, err := a.WriteArchive(ctx, f, stagingDir); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(out)
		return fmt.Errorf("closing %s: %w", out, err)
	}
	return nil
}

// WriteArchive generates the .deb archive of stagingDir and writes it to w.
// It returns the total number of bytes written.
func (a *Archiver) WriteArchive(ctx context.Context, w io.Writer, stagingDir string) (int64, error) {
	cw := &countingWriter{w: w}
	modTime := a.modTime()

	// The data archive goes first: its md5 sums feed the control archive.
	dataBuf := new(bytes.Buffer)
	sums, err := writeDataArchive(ctx, dataBuf, stagingDir)
	if err != nil {
		return cw.n, fmt.Errorf("building data archive: %w", err)
	}

	controlBuf := new(bytes.Buffer)
	if err := writeControlArchive(ctx, controlBuf, filepath.Join(stagingDir, ControlDir), sums, modTime); err != nil {
		return cw.n, fmt.Errorf("building control archive: %w", err)
	}

	arW := ar.NewWriter(cw)
	if err := arW.WriteGlobalHeader(); err != nil {
		return cw.n, fmt.Errorf("writing ar global header: %w", err)
	}

	// Member order is fixed by the format.
	// Reference: https://manpages.debian.org/unstable/dpkg-dev/deb.5.en.html#FORMAT
	members := []struct {
		name PackageFile
		body []byte
	}{
		{PkgDebianBinary, []byte("2.0\n")},
		{PkgControlTarGz, controlBuf.Bytes()},
		{PkgDataTarGz, dataBuf.Bytes()},
	}
	for _, m := range members {
		if err := addBufferToAr(arW, string(m.name), m.body, modTime); err != nil {
			return cw.n, fmt.Errorf("writing %s: %w", m.name, err)
		}
	}

	return cw.n, nil
}

// writeDataArchive archives every entry of root except the control
// directory. It returns the md5 sums of the regular files in walk order.
func writeDataArchive(ctx context.Context, w io.Writer, root string) ([]md5Entry, error) {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	var sums []md5Entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == ControlDir && d.IsDir() {
			return filepath.SkipDir
		}

		sum, err := addTarEntry(tw, p, tarName(rel, d.IsDir()))
		if err != nil {
			return err
		}
		if sum != "" {
			sums = append(sums, md5Entry{path: filepath.ToSlash(rel), sum: sum})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return sums, nil
}

// writeControlArchive archives the regular files of the control directory
// and adds an md5sums file unless the directory already provides one.
func writeControlArchive(ctx context.Context, w io.Writer, controlDir string, sums []md5Entry, modTime time.Time) error {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	entries, err := os.ReadDir(controlDir)
	if err != nil {
		return err
	}

	if _, err := addTarEntry(tw, controlDir, "./"); err != nil {
		return err
	}

	hasMd5sums := false
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			continue
		}
		if ControlFile(e.Name()) == FileMd5sums {
			hasMd5sums = true
		}
		if _, err := addTarEntry(tw, filepath.Join(controlDir, e.Name()), "./"+e.Name()); err != nil {
			return fmt.Errorf("writing %s: %w", e.Name(), err)
		}
	}

	if !hasMd5sums && len(sums) > 0 {
		var b strings.Builder
		for _, s := range sums {
			fmt.Fprintf(&b, "%s  %s\n", s.sum, s.path)
		}
		header := &tar.Header{
			Name:     "./" + string(FileMd5sums),
			Typeflag: tar.TypeReg,
			Size:     int64(b.Len()),
			Mode:     0644,
			ModTime:  modTime,
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if _, err := io.WriteString(tw, b.String()); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

// addTarEntry writes the file at fsPath under name, keeping its numeric
// ownership and mode. Symbolic links are recorded, not followed. For
// regular files it returns the md5 sum of the content.
func addTarEntry(tw *tar.Writer, fsPath, name string) (string, error) {
	info, err := os.Lstat(fsPath)
	if err != nil {
		return "", err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(fsPath); err != nil {
			return "", err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return "", fmt.Errorf("%s: %w", fsPath, err)
	}
	header.Name = name
	header.Uname, header.Gname = "", ""

	var st unix.Stat_t
	if err := unix.Lstat(fsPath, &st); err != nil {
		return "", fmt.Errorf("%s: %w", fsPath, err)
	}
	header.Uid = int(st.Uid)
	header.Gid = int(st.Gid)

	if err := tw.WriteHeader(header); err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}

	f, err := os.Open(fsPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := md5.New()
	if _, err := io.Copy(io.MultiWriter(tw, hash), f); err != nil {
		return "", fmt.Errorf("%s: %w", fsPath, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// tarName converts a staging-relative path to the "./"-prefixed member name
// dpkg expects. Directories carry a trailing slash.
func tarName(rel string, dir bool) string {
	if rel == "." {
		return "./"
	}
	name := "./" + filepath.ToSlash(rel)
	if dir {
		name += "/"
	}
	return name
}
