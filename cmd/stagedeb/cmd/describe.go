package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/etnz/stagedeb/internal/logger"
)

var describeOpts buildOptions

var describeCmd = &cobra.Command{
	Use:   "describe MANIFEST",
	Short: "Write the package description files without building the package",
	Long: `Describe writes the lifecycle scripts, normalizes the staging directory and
writes DEBIAN/control and DEBIAN/conffiles, then prints the name the package
would have. Nothing is written to the target directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newConfig(cmd)
		if err != nil {
			return err
		}
		ctx := logger.WithName(cmd.Context(), "describe")
		b, err := newBuilder(ctx, v, args[0], describeOpts)
		if err != nil {
			return err
		}
		if err := b.GeneratePackageDescriptionFiles(ctx); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), b.PackageFilename())
		return err
	},
}

func init() {
	describeOpts.register(describeCmd)
	rootCmd.AddCommand(describeCmd)
}
