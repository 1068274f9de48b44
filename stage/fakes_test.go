package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type ownershipCall struct {
	Op    string
	Owner string
	Group string
	Mode  Permissions
	Paths []string
}

// fakeOwnership records calls and applies modes for real, so that tests can
// run unprivileged.
type fakeOwnership struct {
	mu    sync.Mutex
	calls []ownershipCall
	// failOn makes the named operation fail.
	failOn string
}

func (f *fakeOwnership) record(c ownershipCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.failOn == c.Op {
		return fmt.Errorf("%s: operation not permitted", c.Op)
	}
	return nil
}

func (f *fakeOwnership) Chown(_ context.Context, owner, group string, paths ...string) error {
	return f.record(ownershipCall{Op: "chown", Owner: owner, Group: group, Paths: paths})
}

func (f *fakeOwnership) Lchown(_ context.Context, owner, group string, paths ...string) error {
	return f.record(ownershipCall{Op: "lchown", Owner: owner, Group: group, Paths: paths})
}

func (f *fakeOwnership) Chmod(_ context.Context, mode Permissions, paths ...string) error {
	if err := f.record(ownershipCall{Op: "chmod", Mode: mode, Paths: paths}); err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Chmod(p, os.FileMode(mode)); err != nil {
			return err
		}
	}
	return nil
}

// callsFor returns the calls touching p.
func (f *fakeOwnership) callsFor(p string) []ownershipCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ownershipCall
	for _, c := range f.calls {
		for _, cp := range c.Paths {
			if cp == p {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

type fakeSizer struct {
	size int64
	err  error
	dirs []string
}

func (f *fakeSizer) Size(_ context.Context, dir string) (int64, error) {
	f.dirs = append(f.dirs, dir)
	return f.size, f.err
}

type archiveCall struct {
	StagingDir string
	TargetDir  string
	Filename   string
}

type fakeArchiver struct {
	calls []archiveCall
	err   error
}

func (f *fakeArchiver) Build(_ context.Context, stagingDir, targetDir, filename string) error {
	f.calls = append(f.calls, archiveCall{stagingDir, targetDir, filename})
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(filepath.Join(targetDir, filename), []byte("!<arch>\n"), 0644)
}

// stageTree creates files under dir. Keys ending in "/" are directories.
func stageTree(t *testing.T, dir string, entries ...string) {
	t.Helper()
	for _, e := range entries {
		p := filepath.Join(dir, filepath.FromSlash(e))
		if e[len(e)-1] == '/' {
			require.NoError(t, os.MkdirAll(p, 0700))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0700))
		require.NoError(t, os.WriteFile(p, []byte(e+"\n"), 0600))
	}
}

func baseVariables() Variables {
	return Variables{
		VarShortName:   "foo",
		VarLongName:    "Foo agent",
		VarDescription: "Collects foo events.",
		VarMaintainer:  "Foo Maintainers <foo@example.com>",
		VarVersion:     "1.0",
		VarRelease:     "2",
		VarArch:        "x86_64",
	}
}

type harness struct {
	staging   string
	target    string
	ownership *fakeOwnership
	sizer     *fakeSizer
	archiver  *fakeArchiver
	events    []fmt.Stringer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		staging:   t.TempDir(),
		target:    t.TempDir(),
		ownership: &fakeOwnership{},
		sizer:     &fakeSizer{size: 1234},
		archiver:  &fakeArchiver{},
	}
}

func (h *harness) builder(t *testing.T, vars Variables, sections Sections) *Builder {
	t.Helper()
	b, err := NewBuilder(Options{
		StagingDir: h.staging,
		TargetDir:  h.target,
		Variables:  vars,
		Sections:   sections,
		Ownership:  h.ownership,
		Sizer:      h.sizer,
		Archiver:   h.archiver,
		Listener:   func(e fmt.Stringer) { h.events = append(h.events, e) },
	})
	require.NoError(t, err)
	return b
}
