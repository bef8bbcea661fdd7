package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reflecthealth/callsim/internal/script"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect and validate call templates",
	}

	var file string
	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in templates, plus those in --file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib := script.NewLibrary(slog.Default())
			if file != "" {
				if err := lib.LoadFile(file); err != nil {
					return err
				}
			}
			for _, b := range lib.Blueprints() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-34s %-9s conf %d-%d%%  %d lines\n",
					b.Name, b.CallerType, b.Confidence.Min, b.Confidence.Max, len(b.Lines))
			}
			return nil
		},
	}
	list.Flags().StringVar(&file, "file", "", "Extra YAML template file")

	validate := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a YAML template file against the schema and phase rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extras, err := script.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := script.NewLibrary(slog.Default()).SetExtras(extras); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d templates\n", len(extras))
			return nil
		},
	}

	cmd.AddCommand(list, validate)
	return cmd
}
