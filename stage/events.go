package stage

import (
	"encoding/json"
	"fmt"
)

// Listener is a callback function that receives events during the build.
type Listener func(fmt.Stringer)

func jsonString(v any) string {
	b, _ := json.Marshal(map[string]any{
		fmt.Sprintf("%T", v): v,
	})
	return string(b)
}

// EventScriptWritten is emitted after a lifecycle script is written.
type EventScriptWritten struct {
	Path  string `json:"path,omitempty"`
	Lines int    `json:"lines"`
}

func (e EventScriptWritten) String() string { return jsonString(e) }

// EventEntryNormalized is emitted after a staged entry received its
// declared ownership (and mode, except for links).
type EventEntryNormalized struct {
	Path  string `json:"path,omitempty"`
	Owner string `json:"owner,omitempty"`
	Group string `json:"group,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

func (e EventEntryNormalized) String() string { return jsonString(e) }

// EventControlWritten is emitted after control and conffiles are written.
type EventControlWritten struct {
	Path          string `json:"path,omitempty"`
	InstalledSize int64  `json:"installed_size"`
	Conffiles     int    `json:"conffiles"`
}

func (e EventControlWritten) String() string { return jsonString(e) }

// EventPackageBuilt is emitted when the archive and its sidecar are written,
// or with Skipped set when SKIP_BUILDING_PACKAGE is present.
type EventPackageBuilt struct {
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

func (e EventPackageBuilt) String() string { return jsonString(e) }
