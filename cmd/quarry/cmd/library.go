package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Manage index libraries",
		Long: `Libraries are independent indexes. Register one per document
collection and switch between them with --library or 'library use'.`,
	}

	cmd.AddCommand(newLibraryAddCmd())
	cmd.AddCommand(newLibraryRemoveCmd())
	cmd.AddCommand(newLibraryListCmd())
	cmd.AddCommand(newLibraryUseCmd())
	cmd.AddCommand(newLibraryEnableCmd())
	cmd.AddCommand(newLibraryDisableCmd())

	return cmd
}

func newLibraryAddCmd() *cobra.Command {
	var storagePath string
	var color string
	var makeDefault bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if storagePath == "" {
				storagePath = filepath.Join(defaultStoreDir(), name+".db")
			}
			abs, err := filepath.Abs(storagePath)
			if err != nil {
				return err
			}

			lib, err := openRegistry().Add(name, abs, color, makeDefault)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added library %q at %s\n", lib.Name, lib.StoragePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&storagePath, "path", "", "Store file path (default: ~/.quarry/stores/<name>.db)")
	cmd.Flags().StringVar(&color, "color", "", "Display color, e.g. #4CAF50")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "Make this library the default")

	return cmd
}

func newLibraryRemoveCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()
			lib, err := reg.Get(args[0])
			if err != nil {
				return err
			}
			if err := reg.Remove(args[0]); err != nil {
				return err
			}
			if purge {
				if err := os.Remove(lib.StoragePath); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("library unregistered but store not removed: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed library %q\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the store file from disk")

	return cmd
}

func newLibraryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered libraries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := openRegistry()
			libs, err := reg.List()
			if err != nil {
				return err
			}
			if len(libs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No libraries registered. Add one with 'quarry library add <name>'.")
				return nil
			}

			def, _ := reg.Default()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDOCS\tSIZE\tENABLED\tPATH")
			for _, lib := range libs {
				name := lib.Name
				if def != nil && def.Name == lib.Name {
					name += " *"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%v\t%s\n",
					name, lib.DocCount, formatBytes(lib.SizeBytes), lib.Enabled, lib.StoragePath)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			summary, err := reg.SelectionSummary()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", summary)
			return nil
		},
	}
}

func newLibraryUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Set the default library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openRegistry().SetDefault(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default library is now %q\n", args[0])
			return nil
		},
	}
}

func newLibraryEnableCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "enable [name]",
		Short: "Enable a library for multi-library search",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()
			if all {
				return reg.EnableAll()
			}
			if len(args) == 0 {
				return fmt.Errorf("library name required (or use --all)")
			}
			return reg.SetEnabled(args[0], true)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Enable every library")
	return cmd
}

func newLibraryDisableCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "disable [name]",
		Short: "Exclude a library from multi-library search",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := openRegistry()
			if all {
				return reg.DisableAll()
			}
			if len(args) == 0 {
				return fmt.Errorf("library name required (or use --all)")
			}
			return reg.SetEnabled(args[0], false)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Disable every library")
	return cmd
}

func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".quarry", "stores")
	}
	return filepath.Join(home, ".quarry", "stores")
}
