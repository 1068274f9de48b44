package deb

// ControlField represents a standard field in a Debian control file.
type ControlField string

const (
	FieldPackage       ControlField = "Package"
	FieldSource        ControlField = "Source"
	FieldVersion       ControlField = "Version"
	FieldArchitecture  ControlField = "Architecture"
	FieldMaintainer    ControlField = "Maintainer"
	FieldInstalledSize ControlField = "Installed-Size"
	FieldDepends       ControlField = "Depends"
	FieldProvides      ControlField = "Provides"
	FieldSection       ControlField = "Section"
	FieldPriority      ControlField = "Priority"
	FieldDescription   ControlField = "Description"
)

// ControlFile represents a standard file found in the control directory
// and in the control.tar member of the archive.
type ControlFile string

const (
	FileControl   ControlFile = "control"
	FileMd5sums   ControlFile = "md5sums"
	FileConffiles ControlFile = "conffiles"
	FilePreinst   ControlFile = "preinst"
	FilePostinst  ControlFile = "postinst"
	FilePrerm     ControlFile = "prerm"
	FilePostrm    ControlFile = "postrm"
)

// IsScript reports whether f is one of the four maintainer scripts.
func (f ControlFile) IsScript() bool {
	switch f {
	case FilePreinst, FilePostinst, FilePrerm, FilePostrm:
		return true
	}
	return false
}

// PackageFile represents a standard member of the .deb archive (ar format).
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	PkgControlTarGz PackageFile = "control.tar.gz"
	PkgDataTarGz    PackageFile = "data.tar.gz"
)

const (
	// ControlDir is the staging subdirectory holding package metadata.
	ControlDir = "DEBIAN"

	// DefaultSection and DefaultPriority are written to every control file.
	DefaultSection  = "utils"
	DefaultPriority = "optional"

	// ScriptMode is the permission of maintainer scripts.
	ScriptMode = 0o755

	// Extension is appended to package file names.
	Extension = ".deb"
)
