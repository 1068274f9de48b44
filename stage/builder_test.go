package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/stagedeb/deb"
)

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func TestNewBuilderDefaults(t *testing.T) {
	t.Parallel()

	vars := baseVariables()
	vars[VarDpkgLocation] = "/opt/dpkg/bin/dpkg-deb"

	b, err := NewBuilder(Options{StagingDir: "staging", Variables: vars})
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(b.StagingDir()))
	assert.Equal(t, DpkgDeb{Path: "/opt/dpkg/bin/dpkg-deb"}, b.archiver)
	assert.Equal(t, ChownTool{}, b.ownership)
	assert.Equal(t, DiskUsage{}, b.sizer)
	assert.NotNil(t, b.listener)
}

func TestNewBuilderErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(Options{Variables: baseVariables()})
	assert.Error(t, err)

	vars := baseVariables()
	delete(vars, VarVersion)
	_, err = NewBuilder(Options{StagingDir: t.TempDir(), Variables: vars})
	assert.ErrorIs(t, err, ErrMissingVariable)
}

func TestGenerateScripts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	b := h.builder(t, baseVariables(), Sections{
		Postinstall: []string{"systemctl daemon-reload", "systemctl enable foo"},
	})

	require.NoError(t, b.GenerateScripts(context.Background()))

	want := map[deb.ControlFile]string{
		deb.FilePreinst:  "exit 0\n",
		deb.FilePostinst: "systemctl daemon-reload\nsystemctl enable foo\nexit 0\n",
		deb.FilePrerm:    "exit 0\n",
		deb.FilePostrm:   "exit 0\n",
	}
	var paths []string
	for name, content := range want {
		p := b.ControlPath(name)
		paths = append(paths, p)
		assert.Equal(t, content, readFile(t, p), name)

		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), name)

		calls := h.ownership.callsFor(p)
		require.Len(t, calls, 2, name)
		assert.Equal(t, "chmod", calls[0].Op)
		assert.Equal(t, Permissions(0o755), calls[0].Mode)
		assert.Equal(t, "lchown", calls[1].Op)
		assert.Equal(t, "0", calls[1].Owner)
		assert.Equal(t, "0", calls[1].Group)
	}

	// All four scripts change owner in a single invocation.
	require.NotEmpty(t, h.ownership.calls)
	assert.ElementsMatch(t, paths, h.ownership.calls[1].Paths)
	assert.Len(t, h.events, 4)
}

func TestGenerateScriptsExistingControlDir(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	stageTree(t, h.staging, "DEBIAN/", "DEBIAN/postinst")
	b := h.builder(t, baseVariables(), Sections{})

	require.NoError(t, b.GenerateScripts(context.Background()))
	assert.Equal(t, "exit 0\n", readFile(t, b.ControlPath(deb.FilePostinst)))
}

func TestGenerateScriptsOwnershipFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ownership.failOn = "lchown"
	b := h.builder(t, baseVariables(), Sections{})

	err := b.GenerateScripts(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOwnership)

	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, PhaseScripts, pe.Phase)
}

func TestGenerateScriptsChmodFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ownership.failOn = "chmod"
	b := h.builder(t, baseVariables(), Sections{})

	assert.ErrorIs(t, b.GenerateScripts(context.Background()), ErrScriptWrite)
}

func TestNormalizeStaging(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	stageTree(t, h.staging, "usr/bin/app", "var/lib/foo/")
	require.NoError(t, os.Symlink("app", filepath.Join(h.staging, "usr/bin/foo")))

	b := h.builder(t, baseVariables(), Sections{
		Files:       []File{{StagedLocation: "/usr/bin/app", Owner: "root", Group: "staff", Permissions: 0o4755}},
		Directories: []Directory{{StagedLocation: "/var/lib/foo", Owner: "foo", Group: "foo", Permissions: 0o750}},
		Links:       []Link{{StagedLocation: "/usr/bin/foo", Owner: "root", Group: "root"}},
	})
	require.NoError(t, b.NormalizeStaging(context.Background()))

	app := filepath.Join(h.staging, "usr/bin/app")
	calls := h.ownership.callsFor(app)
	require.Len(t, calls, 2)
	assert.Equal(t, ownershipCall{Op: "chown", Owner: "root", Group: "staff", Paths: []string{app}}, calls[0])
	assert.Equal(t, ownershipCall{Op: "chmod", Mode: 0o4755, Paths: []string{app}}, calls[1])

	dir := filepath.Join(h.staging, "var/lib/foo")
	calls = h.ownership.callsFor(dir)
	require.Len(t, calls, 2)
	assert.Equal(t, "foo", calls[0].Owner)
	assert.Equal(t, Permissions(0o750), calls[1].Mode)

	link := filepath.Join(h.staging, "usr/bin/foo")
	calls = h.ownership.callsFor(link)
	require.Len(t, calls, 1)
	assert.Equal(t, "lchown", calls[0].Op)

	require.Len(t, h.events, 3)
	assert.Equal(t, EventEntryNormalized{Path: "/usr/bin/foo", Owner: "root", Group: "root"}, h.events[2])
}

func TestNormalizeStagingMissingEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	b := h.builder(t, baseVariables(), Sections{
		Files: []File{{StagedLocation: "/usr/bin/missing", Owner: "root", Group: "root", Permissions: 0o755}},
	})

	err := b.NormalizeStaging(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNormalization)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, h.ownership.calls)
}

func TestNormalizeStagingChownFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ownership.failOn = "chown"
	stageTree(t, h.staging, "usr/bin/app")
	b := h.builder(t, baseVariables(), Sections{
		Files: []File{{StagedLocation: "/usr/bin/app", Owner: "nobody", Group: "nogroup", Permissions: 0o755}},
	})

	assert.ErrorIs(t, b.NormalizeStaging(context.Background()), ErrNormalization)
}

func TestGenerateControlFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	stageTree(t, h.staging, "DEBIAN/")
	b := h.builder(t, baseVariables(), Sections{
		Files: []File{
			{StagedLocation: "/etc/foo/a.conf", Type: ConffileType},
			{StagedLocation: "/usr/bin/foo", Type: "file"},
			{StagedLocation: "/etc/foo/b.conf", Type: ConffileType},
		},
		Dependencies: []string{"libc6", "openssl (>= 3)"},
	})

	require.NoError(t, b.GenerateControlFile(context.Background()))

	want := "" +
		"Package:      foo\n" +
		"Source:       foo\n" +
		"Version:      1.0.2\n" +
		"Architecture: amd64\n" +
		"Maintainer:   Foo Maintainers <foo@example.com>\n" +
		"Installed-Size: 1234\n" +
		"Depends:      libc6, openssl (>= 3)\n" +
		"Provides:     foo\n" +
		"Section:      utils\n" +
		"Priority:     optional\n" +
		"Description:  Foo agent\n" +
		" Collects foo events.\n" +
		"\n"
	assert.Equal(t, want, readFile(t, b.ControlPath(deb.FileControl)))
	assert.Equal(t, "/etc/foo/a.conf\n/etc/foo/b.conf\n", readFile(t, b.ControlPath(deb.FileConffiles)))
	assert.Equal(t, []string{b.StagingDir()}, h.sizer.dirs)

	calls := h.ownership.callsFor(b.ControlPath(deb.FileControl))
	require.Len(t, calls, 1)
	assert.Equal(t, ownershipCall{
		Op: "lchown", Owner: "0", Group: "0",
		Paths: []string{b.ControlPath(deb.FileControl), b.ControlPath(deb.FileConffiles)},
	}, calls[0])

	require.Len(t, h.events, 1)
	assert.Equal(t, EventControlWritten{Path: b.ControlPath(deb.FileControl), InstalledSize: 1234, Conffiles: 2}, h.events[0])
}

func TestGenerateControlFileMissingVariable(t *testing.T) {
	t.Parallel()

	for _, key := range []string{VarLongName, VarDescription, VarMaintainer} {
		key := key
		t.Run(key, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			stageTree(t, h.staging, "DEBIAN/control")
			vars := baseVariables()
			delete(vars, key)
			b := h.builder(t, vars, Sections{})

			err := b.GenerateControlFile(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrControlWrite)
			assert.ErrorIs(t, err, ErrMissingVariable)
			assert.NoFileExists(t, b.ControlPath(deb.FileControl))
		})
	}
}

func TestGenerateControlFileSizerFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.sizer.err = errors.New("du: permission denied")
	stageTree(t, h.staging, "DEBIAN/")
	b := h.builder(t, baseVariables(), Sections{})

	err := b.GenerateControlFile(context.Background())
	assert.ErrorIs(t, err, ErrControlWrite)
	assert.NoFileExists(t, b.ControlPath(deb.FileControl))
}

func TestGenerateControlFileOwnershipFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.ownership.failOn = "lchown"
	stageTree(t, h.staging, "DEBIAN/")
	b := h.builder(t, baseVariables(), Sections{})

	err := b.GenerateControlFile(context.Background())
	assert.ErrorIs(t, err, ErrControlWrite)
	assert.NoFileExists(t, b.ControlPath(deb.FileControl))
}

func TestBuildPackage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	stageTree(t, h.staging, "DEBIAN/control")
	b := h.builder(t, baseVariables(), Sections{})

	name, err := b.BuildPackage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "foo-1.0-2.amd64.deb", name)

	require.Len(t, h.archiver.calls, 1)
	assert.Equal(t, archiveCall{StagingDir: b.StagingDir(), TargetDir: h.target, Filename: name}, h.archiver.calls[0])
	assert.FileExists(t, filepath.Join(h.target, name))
	assert.Equal(t, name+"\n", readFile(t, filepath.Join(h.target, SidecarFilename)))

	require.Len(t, h.events, 1)
	assert.Equal(t, EventPackageBuilt{Path: filepath.Join(h.target, name), Filename: name}, h.events[0])
}

func TestBuildPackageOutputFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	stageTree(t, h.staging, "DEBIAN/control")
	vars := baseVariables()
	vars[VarOutputFile] = "bar"
	b := h.builder(t, vars, Sections{})

	name, err := b.BuildPackage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bar.deb", name)
	assert.Equal(t, "bar.deb\n", readFile(t, filepath.Join(h.target, SidecarFilename)))
}

func TestPackageFilenameEmptyOutputFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	vars := baseVariables()
	vars[VarOutputFile] = ""
	b := h.builder(t, vars, Sections{})

	// OUTPUTFILE is honored by presence, like RELEASE.
	assert.Equal(t, ".deb", b.PackageFilename())
}

func TestBuildPackageSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	vars := baseVariables()
	vars[VarSkipBuildingPackage] = ""
	b := h.builder(t, vars, Sections{})

	name, err := b.BuildPackage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "foo-1.0-2.amd64.deb", name)
	assert.Empty(t, h.archiver.calls)
	assert.NoFileExists(t, filepath.Join(h.target, SidecarFilename))
	require.Len(t, h.events, 1)
	assert.Equal(t, EventPackageBuilt{Filename: name, Skipped: true}, h.events[0])
}

func TestBuildPackageWithoutControlFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	b := h.builder(t, baseVariables(), Sections{})

	_, err := b.BuildPackage(context.Background())
	assert.ErrorIs(t, err, ErrArchiveBuild)
	assert.Empty(t, h.archiver.calls)
}

func TestBuildPackageArchiverFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.archiver.err = errors.New("dpkg-deb: error: exit status 2")
	stageTree(t, h.staging, "DEBIAN/control")
	b := h.builder(t, baseVariables(), Sections{})

	_, err := b.BuildPackage(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchiveBuild)
	assert.Contains(t, err.Error(), "archive phase")
	assert.NoFileExists(t, filepath.Join(h.target, SidecarFilename))
}

func TestBuildEndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	stageTree(t, h.staging, "usr/bin/app", "etc/app.conf")
	b := h.builder(t, baseVariables(), Sections{
		Files: []File{
			{StagedLocation: "/usr/bin/app", Owner: "root", Group: "root", Permissions: 0o755, Type: "file"},
			{StagedLocation: "/etc/app.conf", Owner: "root", Group: "root", Permissions: 0o644, Type: ConffileType},
		},
	})

	ctx := context.Background()
	require.NoError(t, b.GeneratePackageDescriptionFiles(ctx))
	name, err := b.BuildPackage(ctx)
	require.NoError(t, err)

	control := readFile(t, b.ControlPath(deb.FileControl))
	assert.Contains(t, control, "\nDepends:      \n")
	assert.Equal(t, "/etc/app.conf\n", readFile(t, b.ControlPath(deb.FileConffiles)))

	app := filepath.Join(h.staging, "usr/bin/app")
	info, err := os.Stat(app)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	calls := h.ownership.callsFor(app)
	require.Len(t, calls, 2)
	assert.Equal(t, "root", calls[0].Owner)
	assert.Equal(t, "root", calls[0].Group)

	conf, err := os.Stat(filepath.Join(h.staging, "etc/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), conf.Mode().Perm())

	assert.Equal(t, "foo-1.0-2.amd64.deb", name)
	assert.Len(t, h.archiver.calls, 1)
}
