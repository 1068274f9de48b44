package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/etnz/stagedeb/deb"
	"github.com/etnz/stagedeb/stage"
)

// Default ownership and modes of staged entries that do not declare them.
const (
	DefaultOwner    = "root"
	DefaultGroup    = "root"
	DefaultFileMode = "0644"
	DefaultDirMode  = "0755"
)

// Manifest is the declarative description of one package build: the build
// variables and the section lists.
type Manifest struct {
	// Variables are the build variables (SHORT_NAME, VERSION, ...). Values
	// may reference other variables as templates, e.g. "{{.VERSION}}".
	Variables map[string]string `json:"variables" yaml:"variables"`

	// Lifecycle script command lines.
	Preinstall    []string `json:"preinstall" yaml:"preinstall"`
	Postinstall   []string `json:"postinstall" yaml:"postinstall"`
	Preuninstall  []string `json:"preuninstall" yaml:"preuninstall"`
	Postuninstall []string `json:"postuninstall" yaml:"postuninstall"`
	// Scripts appends the lines of files to the lifecycle scripts.
	Scripts []Script `json:"scripts" yaml:"scripts"`

	Files        []Entry  `json:"files" yaml:"files"`
	Directories  []Entry  `json:"directories" yaml:"directories"`
	Links        []Entry  `json:"links" yaml:"links"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`

	filePath string
}

// Script is a file whose lines are appended to a lifecycle script.
type Script struct {
	// Src is the path of the file, relative to the manifest.
	Src string `json:"src" yaml:"src"`
	// Dst is the script name: preinst, postinst, prerm or postrm.
	Dst string `json:"dst" yaml:"dst"`
	// Raw disables template rendering of the file content.
	Raw bool `json:"raw" yaml:"raw"`
}

// Entry is a staged file, directory or link.
type Entry struct {
	// Path is the location in the staging directory, starting with "/".
	Path  string `json:"path" yaml:"path"`
	Owner string `json:"owner" yaml:"owner"`
	Group string `json:"group" yaml:"group"`
	// Mode is the octal permission string, e.g. "0755". Links have none.
	Mode string `json:"mode" yaml:"mode"`
	// Type is free-form; "conffile" marks configuration files.
	Type string `json:"type" yaml:"type"`
}

// Load reads a manifest file. The format is YAML for .yaml and .yml files,
// JSON otherwise.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes a manifest. name selects the format and resolves script
// sources; it need not exist.
func Parse(name string, data []byte) (*Manifest, error) {
	var m Manifest
	if err := unmarshal(name, data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", name, err)
	}
	m.filePath = name
	return &m, nil
}

func unmarshal(path string, data []byte, v any) error {
	ext := strings.ToLower(filepath.Ext(path))
	r := bytes.NewReader(data)
	if ext == ".yaml" || ext == ".yml" {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode(v)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (m *Manifest) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(m.filePath), path)
}

// Resolve renders the manifest into the builder inputs. overrides replace
// manifest variables before rendering.
func (m *Manifest) Resolve(overrides map[string]string) (stage.Variables, stage.Sections, error) {
	vars, err := m.variables(overrides)
	if err != nil {
		return nil, stage.Sections{}, err
	}
	engine := newTemplateEngine(vars)

	var s stage.Sections
	scripts := []struct {
		name string
		file deb.ControlFile
		in   []string
		out  *[]string
	}{
		{"preinstall", deb.FilePreinst, m.Preinstall, &s.Preinstall},
		{"postinstall", deb.FilePostinst, m.Postinstall, &s.Postinstall},
		{"preuninstall", deb.FilePrerm, m.Preuninstall, &s.Preuninstall},
		{"postuninstall", deb.FilePostrm, m.Postuninstall, &s.Postuninstall},
	}
	for _, sc := range scripts {
		if *sc.out, err = engine.renderAll(sc.name, sc.in); err != nil {
			return nil, stage.Sections{}, err
		}
	}

	for i, sc := range m.Scripts {
		dst := deb.ControlFile(sc.Dst)
		if !dst.IsScript() {
			return nil, stage.Sections{}, fmt.Errorf("scripts[%d]: unknown script dst: %s", i, sc.Dst)
		}
		lines, err := m.loadScript(engine, i, sc)
		if err != nil {
			return nil, stage.Sections{}, err
		}
		for _, target := range scripts {
			if target.file == dst {
				*target.out = append(*target.out, lines...)
			}
		}
	}

	for i, e := range m.Files {
		name := fmt.Sprintf("files[%d]", i)
		r, err := e.render(engine, name, DefaultFileMode)
		if err != nil {
			return nil, stage.Sections{}, err
		}
		mode, err := stage.ParsePermissions(r.Mode)
		if err != nil {
			return nil, stage.Sections{}, fmt.Errorf("%s: %w", name, err)
		}
		s.Files = append(s.Files, stage.File{StagedLocation: r.Path, Owner: r.Owner, Group: r.Group, Permissions: mode, Type: r.Type})
	}

	for i, e := range m.Directories {
		name := fmt.Sprintf("directories[%d]", i)
		r, err := e.render(engine, name, DefaultDirMode)
		if err != nil {
			return nil, stage.Sections{}, err
		}
		mode, err := stage.ParsePermissions(r.Mode)
		if err != nil {
			return nil, stage.Sections{}, fmt.Errorf("%s: %w", name, err)
		}
		s.Directories = append(s.Directories, stage.Directory{StagedLocation: r.Path, Owner: r.Owner, Group: r.Group, Permissions: mode})
	}

	for i, e := range m.Links {
		name := fmt.Sprintf("links[%d]", i)
		if e.Mode != "" {
			return nil, stage.Sections{}, fmt.Errorf("%s: links carry no mode", name)
		}
		r, err := e.render(engine, name, "")
		if err != nil {
			return nil, stage.Sections{}, err
		}
		s.Links = append(s.Links, stage.Link{StagedLocation: r.Path, Owner: r.Owner, Group: r.Group})
	}

	if s.Dependencies, err = engine.renderAll("dependencies", m.Dependencies); err != nil {
		return nil, stage.Sections{}, err
	}
	return vars, s, nil
}

// variables applies overrides and renders every value once against the
// unrendered set.
func (m *Manifest) variables(overrides map[string]string) (stage.Variables, error) {
	engine := newTemplateEngine(m.Variables).sub(overrides)

	keys := make([]string, 0, len(engine.defines))
	for k := range engine.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make(stage.Variables, len(keys))
	for _, k := range keys {
		v, err := engine.render("variables."+k, engine.defines[k])
		if err != nil {
			return nil, fmt.Errorf("rendering variable %s: %w", k, err)
		}
		vars[k] = v
	}
	return vars, nil
}

func (m *Manifest) loadScript(engine *templateEngine, i int, sc Script) ([]string, error) {
	src, err := engine.render(fmt.Sprintf("scripts[%d].src", i), sc.Src)
	if err != nil {
		return nil, err
	}
	resolved := m.resolve(src)
	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", resolved, err)
	}
	text := string(content)
	if !sc.Raw {
		if text, err = engine.render(src, text); err != nil {
			return nil, err
		}
	}
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// render returns a copy of e with templates rendered and defaults applied.
func (e Entry) render(engine *templateEngine, name, defaultMode string) (Entry, error) {
	fields := []struct {
		key string
		val *string
		def string
	}{
		{"path", &e.Path, ""},
		{"owner", &e.Owner, DefaultOwner},
		{"group", &e.Group, DefaultGroup},
		{"mode", &e.Mode, defaultMode},
		{"type", &e.Type, ""},
	}
	for _, f := range fields {
		v, err := engine.render(name+"."+f.key, *f.val)
		if err != nil {
			return Entry{}, err
		}
		if v == "" {
			v = f.def
		}
		*f.val = v
	}
	if !strings.HasPrefix(e.Path, "/") {
		return Entry{}, fmt.Errorf("%s: path %q must start with /", name, e.Path)
	}
	if strings.Contains("/"+e.Path+"/", "/../") {
		return Entry{}, fmt.Errorf("%s: path %q leaves the staging directory", name, e.Path)
	}
	return e, nil
}
