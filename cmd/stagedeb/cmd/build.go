package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/etnz/stagedeb/deb"
	"github.com/etnz/stagedeb/internal/logger"
	"github.com/etnz/stagedeb/manifest"
	"github.com/etnz/stagedeb/stage"
)

// Port implementations selectable with --archiver, --ownership and --sizer.
const (
	implProcess = "process"
	implNative  = "native"
	implDpkg    = "dpkg"
)

// buildOptions are the flags shared by build and describe.
type buildOptions struct {
	staging string
	target  string
	defines map[string]string
	// archive enables the archiver selection; describe never archives.
	archive bool
}

func (o *buildOptions) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&o.staging, "staging", "s", "", "populated staging directory")
	fs.StringVarP(&o.target, "target", "t", ".", "directory receiving the package and the package_filename file")
	fs.StringToStringVarP(&o.defines, "define", "D", nil, "override a build variable (KEY=VALUE, repeatable)")
	addPortFlags(fs)
	_ = cmd.MarkFlagRequired("staging")
}

// addPortFlags registers the implementation selectors read by newBuilder.
func addPortFlags(fs *pflag.FlagSet) {
	fs.String("ownership", implProcess, "ownership implementation: process (chown/chmod) or native")
	fs.String("sizer", implProcess, "installed size implementation: process (du) or native")
}

var buildOpts buildOptions

var buildCmd = &cobra.Command{
	Use:   "build MANIFEST",
	Short: "Write the package description files and build the package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newConfig(cmd)
		if err != nil {
			return err
		}
		ctx := logger.WithName(cmd.Context(), "build")
		b, err := newBuilder(ctx, v, args[0], buildOpts)
		if err != nil {
			return err
		}
		if err := b.GeneratePackageDescriptionFiles(ctx); err != nil {
			return err
		}
		name, err := b.BuildPackage(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), name)
		return err
	},
}

// newBuilder loads the manifest and wires the configured port
// implementations into a stage.Builder.
func newBuilder(ctx context.Context, v *viper.Viper, manifestPath string, o buildOptions) (*stage.Builder, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	vars, sections, err := m.Resolve(o.defines)
	if err != nil {
		return nil, err
	}

	opts := stage.Options{
		StagingDir: o.staging,
		TargetDir:  o.target,
		Variables:  vars,
		Sections:   sections,
		Listener: func(e fmt.Stringer) {
			logger.DebugKV(ctx, "Build event", "event", e.String())
		},
	}

	switch impl := v.GetString("ownership"); impl {
	case implProcess:
		opts.Ownership = stage.ChownTool{}
	case implNative:
		opts.Ownership = stage.NativeOwnership{}
	default:
		return nil, fmt.Errorf("unknown ownership implementation %q", impl)
	}

	switch impl := v.GetString("sizer"); impl {
	case implProcess:
		opts.Sizer = stage.DiskUsage{}
	case implNative:
		opts.Sizer = stage.BlockSizer{}
	default:
		return nil, fmt.Errorf("unknown sizer implementation %q", impl)
	}

	if o.archive {
		switch impl := v.GetString("archiver"); impl {
		case "", implDpkg:
			// The builder runs dpkg-deb, honoring DPKG_LOCATION.
		case implNative:
			opts.Archiver = &deb.Archiver{}
		default:
			return nil, fmt.Errorf("unknown archiver %q", impl)
		}
	}

	b, err := stage.NewBuilder(opts)
	if err != nil {
		return nil, err
	}
	id := b.Identity()
	logger.InfoKV(ctx, "Building package",
		"package", id.Name, "version", id.FullVersion, "architecture", id.Architecture, "staging", b.StagingDir())
	return b, nil
}

func init() {
	buildOpts.register(buildCmd)
	buildOpts.archive = true
	buildCmd.Flags().String("archiver", implDpkg, "archive implementation: dpkg (dpkg-deb) or native")
	rootCmd.AddCommand(buildCmd)
}
