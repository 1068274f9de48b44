package stage

import "github.com/etnz/stagedeb/deb"

// Identity is the package identity derived from the build variables.
// It is computed once per build and never changes afterwards.
type Identity struct {
	// Name is SHORT_NAME.
	Name string
	// FullVersion is VERSION, or VERSION.RELEASE when RELEASE is set.
	// It is the Version field of the control file.
	FullVersion string
	// FullVersionDashed is VERSION, or VERSION-RELEASE when RELEASE is set.
	// It is used in the package file name.
	FullVersionDashed string
	// Architecture is PFARCH mapped to its Debian name.
	Architecture string
}

// NewIdentity derives the package identity from vars.
// It fails with ErrMissingVariable if SHORT_NAME, VERSION or PFARCH is unset.
func NewIdentity(vars Variables) (Identity, error) {
	name, err := vars.require(PhaseIdentity, ErrMissingVariable, VarShortName)
	if err != nil {
		return Identity{}, err
	}
	version, err := vars.require(PhaseIdentity, ErrMissingVariable, VarVersion)
	if err != nil {
		return Identity{}, err
	}
	arch, err := vars.require(PhaseIdentity, ErrMissingVariable, VarArch)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{
		Name:              name,
		FullVersion:       version,
		FullVersionDashed: version,
		Architecture:      deb.ResolveArchitecture(arch),
	}
	if release, ok := vars.Lookup(VarRelease); ok {
		id.FullVersion = version + "." + release
		id.FullVersionDashed = version + "-" + release
	}
	return id, nil
}

// PackageFilename returns the archive file name: "<outputFile>.deb" when
// set, "<name>-<version>-<release>.<arch>.deb" otherwise. The arguments match
// Variables.Lookup so that an empty OUTPUTFILE still names the file.
func (id Identity) PackageFilename(outputFile string, set bool) string {
	if set {
		return outputFile + deb.Extension
	}
	return id.Name + "-" + id.FullVersionDashed + "." + id.Architecture + deb.Extension
}
