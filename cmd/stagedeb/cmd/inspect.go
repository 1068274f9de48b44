package cmd

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/etnz/stagedeb/deb"
)

var inspectContents bool

var inspectCmd = &cobra.Command{
	Use:   "inspect PACKAGE.deb",
	Short: "Print the control information of a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		a, err := deb.ReadArchive(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		return printArchive(cmd.OutOrStdout(), a, inspectContents)
	},
}

func printArchive(w io.Writer, a *deb.Archive, contents bool) error {
	if _, err := io.WriteString(w, a.RawControl); err != nil {
		return err
	}
	fmt.Fprintln(w, "Conffiles:")
	for _, c := range a.Conffiles {
		fmt.Fprintf(w, " %s\n", c)
	}
	fmt.Fprintln(w, "Scripts:")
	for _, name := range []deb.ControlFile{deb.FilePreinst, deb.FilePostinst, deb.FilePrerm, deb.FilePostrm} {
		if body, ok := a.Scripts[name]; ok {
			fmt.Fprintf(w, " %s (%d bytes)\n", name, len(body))
		}
	}
	if !contents {
		return nil
	}
	fmt.Fprintln(w, "Contents:")
	for _, e := range a.Entries {
		name := e.Path
		if e.Dir && name != "/" {
			name = path.Clean(name) + "/"
		}
		if e.Linkname != "" {
			name += " -> " + e.Linkname
		}
		_, err := fmt.Fprintf(w, " %04o %d/%d %s\n", e.Mode&0o7777, e.Uid, e.Gid, name)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	inspectCmd.Flags().BoolVarP(&inspectContents, "contents", "c", false, "also list the data archive entries")
	rootCmd.AddCommand(inspectCmd)
}
