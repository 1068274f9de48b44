package stage

import "fmt"

// Build variable names.
const (
	VarShortName           = "SHORT_NAME"
	VarLongName            = "LONG_NAME"
	VarDescription         = "DESCRIPTION"
	VarMaintainer          = "MAINTAINER"
	VarVersion             = "VERSION"
	VarRelease             = "RELEASE"
	VarArch                = "PFARCH"
	VarOutputFile          = "OUTPUTFILE"
	VarDpkgLocation        = "DPKG_LOCATION"
	VarSkipBuildingPackage = "SKIP_BUILDING_PACKAGE"
)

// Variables is the table of build variables. It is not modified by the
// builder.
type Variables map[string]string

// Lookup returns the value of key and whether it is set.
func (v Variables) Lookup(key string) (string, bool) {
	val, ok := v[key]
	return val, ok
}

// Has reports whether key is set, whatever its value.
func (v Variables) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// require returns the value of key. A missing key fails phase with kind;
// the cause always matches ErrMissingVariable.
func (v Variables) require(phase Phase, kind error, key string) (string, error) {
	if val, ok := v[key]; ok {
		return val, nil
	}
	err := fmt.Errorf("%s is not set", key)
	if kind != ErrMissingVariable {
		err = fmt.Errorf("%w: %s", ErrMissingVariable, key)
	}
	return "", &PhaseError{Phase: phase, Kind: kind, Err: err}
}
