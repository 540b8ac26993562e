package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMaintainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Store maintenance operations",
	}

	cmd.AddCommand(newMaintainCheckCmd())
	cmd.AddCommand(newMaintainVacuumCmd())
	cmd.AddCommand(newMaintainBackupCmd())

	return cmd
}

func newMaintainCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify store integrity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, lib, err := openLibraryStore(openRegistry())
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.CheckIntegrity(cmd.Context()); err != nil {
				return err
			}
			info, err := st.Info(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Library %q: integrity ok\n", lib.Name)
			fmt.Fprintf(out, "Database: %s (%s)\n", info.Path, formatBytes(info.SizeBytes))
			fmt.Fprintf(out, "Journal:  %s, page size %d, %d pages\n",
				info.JournalMode, info.PageSize, info.PageCount)
			return nil
		},
	}
}

func newMaintainVacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Reclaim unused space in the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := openRegistry()
			st, lib, err := openLibraryStore(reg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.Vacuum(cmd.Context()); err != nil {
				return err
			}
			syncLibraryStats(reg, lib, st, cmd)
			fmt.Fprintf(cmd.OutOrStdout(), "Library %q: vacuum complete\n", lib.Name)
			return nil
		},
	}
}

func newMaintainBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <destination>",
		Short: "Write a consistent copy of the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, lib, err := openLibraryStore(openRegistry())
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.Backup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Library %q backed up to %s\n", lib.Name, args[0])
			return nil
		},
	}
}
