package deb

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Control maps to the fields of the binary package 'control' file written by
// the staging builder.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#binary-package-control-files-debian-control
type Control struct {
	Package      string
	Source       string
	Version      string
	Architecture string
	Maintainer   string

	// InstalledSize is the installed footprint in kilobytes.
	InstalledSize int64

	// Depends is rendered comma-joined; an empty list renders an empty value.
	Depends []string

	Provides string
	Section  string
	Priority string

	// Synopsis is the first line of the Description field.
	Synopsis string
	// Description is the extended description. Each of its lines becomes a
	// continuation line starting with a space; blank lines become " .".
	Description string
}

// valueColumn is the width of the padded field name, including the colon.
// Field values start one space after it. Longer names (Installed-Size) are
// not truncated and simply push their value to the right.
const valueColumn = 13

// String renders the control file, including its trailing blank line.
func (c Control) String() string {
	var b strings.Builder

	writeField := func(field ControlField, value string) {
		fmt.Fprintf(&b, "%-*s %s\n", valueColumn, string(field)+":", value)
	}

	writeField(FieldPackage, c.Package)
	writeField(FieldSource, c.Source)
	writeField(FieldVersion, c.Version)
	writeField(FieldArchitecture, c.Architecture)
	writeField(FieldMaintainer, c.Maintainer)
	writeField(FieldInstalledSize, strconv.FormatInt(c.InstalledSize, 10))
	writeField(FieldDepends, strings.Join(c.Depends, ", "))
	writeField(FieldProvides, c.Provides)
	writeField(FieldSection, c.Section)
	writeField(FieldPriority, c.Priority)
	writeField(FieldDescription, c.Synopsis)

	lines := strings.Split(c.Description, "\n")
	fmt.Fprintf(&b, " %s\n", lines[0])
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			b.WriteString(" .\n")
			continue
		}
		fmt.Fprintf(&b, " %s\n", line)
	}

	b.WriteString("\n")
	return b.String()
}

// WriteTo writes the rendered control file to w.
// This satisfies the io.WriterTo interface.
func (c Control) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, c.String())
	return int64(n), err
}

// ParseControl parses the content of a control file.
// It handles folded values and accepts any amount of padding after the
// field name, so it reads both the aligned layout written by Control.String
// and the compact "Field: value" layout of other tools. Unknown fields are
// ignored.
func ParseControl(content string) (Control, error) {
	var c Control
	var currentKey string
	var currentValue strings.Builder

	flush := func() error {
		if currentKey == "" {
			return nil
		}
		raw := currentValue.String()
		val := strings.TrimSpace(raw)
		switch ControlField(currentKey) {
		case FieldPackage:
			c.Package = val
		case FieldSource:
			c.Source = val
		case FieldVersion:
			c.Version = val
		case FieldArchitecture:
			c.Architecture = val
		case FieldMaintainer:
			c.Maintainer = val
		case FieldInstalledSize:
			if val == "" {
				break
			}
			size, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("parsing %s %q: %w", FieldInstalledSize, val, err)
			}
			c.InstalledSize = size
		case FieldDepends:
			c.Depends = splitList(val)
		case FieldProvides:
			c.Provides = val
		case FieldSection:
			c.Section = val
		case FieldPriority:
			c.Priority = val
		case FieldDescription:
			c.Synopsis, c.Description = splitDescription(raw)
		}
		return nil
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			currentValue.WriteString("\n" + line)
			continue
		}
		if !strings.Contains(line, ":") {
			continue
		}
		if err := flush(); err != nil {
			return Control{}, err
		}
		parts := strings.SplitN(line, ":", 2)
		currentKey = parts[0]
		currentValue.Reset()
		currentValue.WriteString(strings.TrimSpace(parts[1]))
	}
	if err := flush(); err != nil {
		return Control{}, err
	}

	if c.Package == "" {
		return Control{}, fmt.Errorf("control file has no %s field", FieldPackage)
	}
	return c, nil
}

// splitDescription separates the synopsis from the continuation lines of a
// folded Description value, undoing the one-space indent and the " ." marker.
func splitDescription(raw string) (string, string) {
	lines := strings.Split(raw, "\n")
	var ext []string
	for _, line := range lines[1:] {
		line = strings.TrimPrefix(line, " ")
		if line == "." {
			line = ""
		}
		ext = append(ext, line)
	}
	return strings.TrimSpace(lines[0]), strings.Join(ext, "\n")
}

// RenderConffiles renders the conffiles manifest: one absolute path per line.
func RenderConffiles(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderScript renders a maintainer script from its command lines.
// The result always ends with a single "exit 0" line.
func RenderScript(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("exit 0\n")
	return b.String()
}
