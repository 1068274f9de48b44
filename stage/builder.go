package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/stagedeb/deb"
)

// SidecarFilename is the file written next to the archive that holds the
// archive file name, for the surrounding build orchestration.
const SidecarFilename = "package_filename"

// rootID is the owner and group of every control file.
const rootID = "0"

// Options configures a Builder.
type Options struct {
	// StagingDir is the populated staging directory. Required.
	StagingDir string
	// TargetDir receives the archive and the sidecar file.
	// It defaults to the current directory.
	TargetDir string

	Variables Variables
	Sections  Sections

	// Ownership defaults to ChownTool.
	Ownership OwnershipSetter
	// Sizer defaults to DiskUsage.
	Sizer TreeSizer
	// Archiver defaults to DpkgDeb, located by DPKG_LOCATION if set.
	Archiver ArchiveBuilder
	// Listener receives build events. Optional.
	Listener Listener
}

// Builder assembles one package from one staging directory.
// It is not safe for concurrent use and is not meant to be reused.
type Builder struct {
	stagingDir string
	targetDir  string
	controlDir string

	vars     Variables
	sections Sections
	identity Identity

	ownership OwnershipSetter
	sizer     TreeSizer
	archiver  ArchiveBuilder
	listener  Listener
}

// NewBuilder resolves the package identity and returns a Builder for it.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.StagingDir == "" {
		return nil, errors.New("staging directory is required")
	}
	id, err := NewIdentity(opts.Variables)
	if err != nil {
		return nil, err
	}

	stagingDir, err := filepath.Abs(opts.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("resolving staging directory: %w", err)
	}
	targetDir := opts.TargetDir
	if targetDir == "" {
		targetDir = "."
	}
	if targetDir, err = filepath.Abs(targetDir); err != nil {
		return nil, fmt.Errorf("resolving target directory: %w", err)
	}

	b := &Builder{
		stagingDir: stagingDir,
		targetDir:  targetDir,
		controlDir: filepath.Join(stagingDir, deb.ControlDir),
		vars:       opts.Variables,
		sections:   opts.Sections,
		identity:   id,
		ownership:  opts.Ownership,
		sizer:      opts.Sizer,
		archiver:   opts.Archiver,
		listener:   opts.Listener,
	}
	if b.ownership == nil {
		b.ownership = ChownTool{}
	}
	if b.sizer == nil {
		b.sizer = DiskUsage{}
	}
	if b.archiver == nil {
		dpkg, _ := b.vars.Lookup(VarDpkgLocation)
		b.archiver = DpkgDeb{Path: dpkg}
	}
	if b.listener == nil {
		b.listener = func(fmt.Stringer) {}
	}
	return b, nil
}

// Identity returns the package identity resolved by NewBuilder.
func (b *Builder) Identity() Identity { return b.identity }

// StagingDir returns the absolute staging directory.
func (b *Builder) StagingDir() string { return b.stagingDir }

// ControlPath returns the path of a file in the control directory.
func (b *Builder) ControlPath(name deb.ControlFile) string {
	return filepath.Join(b.controlDir, string(name))
}

// PackageFilename returns the name of the archive BuildPackage produces.
func (b *Builder) PackageFilename() string {
	return b.identity.PackageFilename(b.vars.Lookup(VarOutputFile))
}

// GeneratePackageDescriptionFiles writes the lifecycle scripts, normalizes
// the staging directory and writes the control files.
func (b *Builder) GeneratePackageDescriptionFiles(ctx context.Context) error {
	if err := b.GenerateScripts(ctx); err != nil {
		return err
	}
	return b.GenerateControlFile(ctx)
}

// GenerateScripts writes the four maintainer scripts, owned by root with
// mode 0755, then normalizes the staging directory.
func (b *Builder) GenerateScripts(ctx context.Context) error {
	if err := os.MkdirAll(b.controlDir, 0755); err != nil {
		return fail(PhaseScripts, ErrScriptWrite, "creating %s: %w", b.controlDir, err)
	}

	scripts := []struct {
		file  deb.ControlFile
		lines []string
	}{
		{deb.FilePreinst, b.sections.Preinstall},
		{deb.FilePostinst, b.sections.Postinstall},
		{deb.FilePrerm, b.sections.Preuninstall},
		{deb.FilePostrm, b.sections.Postuninstall},
	}

	paths := make([]string, 0, len(scripts))
	for _, s := range scripts {
		p := b.ControlPath(s.file)
		if err := os.WriteFile(p, []byte(deb.RenderScript(s.lines)), deb.ScriptMode); err != nil {
			return fail(PhaseScripts, ErrScriptWrite, "writing %s: %w", s.file, err)
		}
		paths = append(paths, p)
		b.listener(EventScriptWritten{Path: p, Lines: len(s.lines)})
	}

	if err := b.ownership.Chmod(ctx, deb.ScriptMode, paths...); err != nil {
		return fail(PhaseScripts, ErrScriptWrite, "setting script modes: %w", err)
	}
	if err := b.ownership.Lchown(ctx, rootID, rootID, paths...); err != nil {
		return fail(PhaseScripts, ErrOwnership, "changing script ownership: %w", err)
	}

	return b.NormalizeStaging(ctx)
}

// NormalizeStaging applies the declared ownership and permissions to every
// staged file and directory, and the declared ownership to every link.
// Every entry must already exist in the staging directory.
func (b *Builder) NormalizeStaging(ctx context.Context) error {
	entries := make([]StagedEntry, 0, len(b.sections.Files)+len(b.sections.Directories)+len(b.sections.Links))
	for _, f := range b.sections.Files {
		entries = append(entries, f)
	}
	for _, d := range b.sections.Directories {
		entries = append(entries, d)
	}
	for _, l := range b.sections.Links {
		entries = append(entries, l)
	}

	for _, e := range entries {
		if err := b.normalize(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) normalize(ctx context.Context, e StagedEntry) error {
	p := filepath.Join(b.stagingDir, filepath.FromSlash(e.Location()))
	if _, err := os.Lstat(p); err != nil {
		return fail(PhaseNormalize, ErrNormalization, "staged entry %s: %w", e.Location(), err)
	}

	owner, group := e.Ownership()
	event := EventEntryNormalized{Path: e.Location(), Owner: owner, Group: group}

	var mode Permissions
	switch e := e.(type) {
	case File:
		mode = e.Permissions
	case Directory:
		mode = e.Permissions
	case Link:
		if err := b.ownership.Lchown(ctx, owner, group, p); err != nil {
			return fail(PhaseNormalize, ErrNormalization, "link %s: %w", e.StagedLocation, err)
		}
		b.listener(event)
		return nil
	}

	// chown clears set-id bits, so the mode is applied last.
	if err := b.ownership.Chown(ctx, owner, group, p); err != nil {
		return fail(PhaseNormalize, ErrNormalization, "%s: %w", e.Location(), err)
	}
	if err := b.ownership.Chmod(ctx, mode, p); err != nil {
		return fail(PhaseNormalize, ErrNormalization, "%s: %w", e.Location(), err)
	}
	event.Mode = mode.String()
	b.listener(event)
	return nil
}

// Control returns the control record of the package, measuring the
// staging directory for Installed-Size.
func (b *Builder) Control(ctx context.Context) (deb.Control, error) {
	longName, err := b.vars.require(PhaseControl, ErrControlWrite, VarLongName)
	if err != nil {
		return deb.Control{}, err
	}
	description, err := b.vars.require(PhaseControl, ErrControlWrite, VarDescription)
	if err != nil {
		return deb.Control{}, err
	}
	maintainer, err := b.vars.require(PhaseControl, ErrControlWrite, VarMaintainer)
	if err != nil {
		return deb.Control{}, err
	}

	size, err := b.sizer.Size(ctx, b.stagingDir)
	if err != nil {
		return deb.Control{}, fail(PhaseControl, ErrControlWrite, "measuring installed size: %w", err)
	}

	return deb.Control{
		Package:       b.identity.Name,
		Source:        b.identity.Name,
		Version:       b.identity.FullVersion,
		Architecture:  b.identity.Architecture,
		Maintainer:    maintainer,
		InstalledSize: size,
		Depends:       b.sections.Dependencies,
		Provides:      b.identity.Name,
		Section:       deb.DefaultSection,
		Priority:      deb.DefaultPriority,
		Synopsis:      longName,
		Description:   description,
	}, nil
}

// GenerateControlFile writes DEBIAN/control and DEBIAN/conffiles, owned by
// root. On failure the control file is removed, so that an incomplete
// control directory is never archived.
func (b *Builder) GenerateControlFile(ctx context.Context) (err error) {
	controlPath := b.ControlPath(deb.FileControl)
	conffilesPath := b.ControlPath(deb.FileConffiles)
	defer func() {
		if err != nil {
			os.Remove(controlPath)
		}
	}()

	control, err := b.Control(ctx)
	if err != nil {
		return err
	}

	if err := os.WriteFile(controlPath, []byte(control.String()), 0644); err != nil {
		return fail(PhaseControl, ErrControlWrite, "writing %s: %w", deb.FileControl, err)
	}
	conffiles := b.sections.Conffiles()
	if err := os.WriteFile(conffilesPath, []byte(deb.RenderConffiles(conffiles)), 0644); err != nil {
		return fail(PhaseControl, ErrControlWrite, "writing %s: %w", deb.FileConffiles, err)
	}
	if err := b.ownership.Lchown(ctx, rootID, rootID, controlPath, conffilesPath); err != nil {
		return fail(PhaseControl, ErrControlWrite, "changing control file ownership: %w", err)
	}

	b.listener(EventControlWritten{Path: controlPath, InstalledSize: control.InstalledSize, Conffiles: len(conffiles)})
	return nil
}

// BuildPackage archives the staging directory into the target directory and
// writes the sidecar file. It returns the archive file name. When
// SKIP_BUILDING_PACKAGE is set it only returns the name.
func (b *Builder) BuildPackage(ctx context.Context) (string, error) {
	name := b.PackageFilename()
	if b.vars.Has(VarSkipBuildingPackage) {
		b.listener(EventPackageBuilt{Filename: name, Skipped: true})
		return name, nil
	}

	if _, err := os.Stat(b.ControlPath(deb.FileControl)); err != nil {
		return "", fail(PhaseArchive, ErrArchiveBuild, "package description files are missing: %w", err)
	}

	if err := b.archiver.Build(ctx, b.stagingDir, b.targetDir, name); err != nil {
		return "", fail(PhaseArchive, ErrArchiveBuild, "%s: %w", name, err)
	}

	sidecar := filepath.Join(b.targetDir, SidecarFilename)
	if err := os.WriteFile(sidecar, []byte(name+"\n"), 0644); err != nil {
		return "", fail(PhaseArchive, ErrArchiveBuild, "writing %s: %w", SidecarFilename, err)
	}

	b.listener(EventPackageBuilt{Path: filepath.Join(b.targetDir, name), Filename: name})
	return name, nil
}
