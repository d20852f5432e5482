package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/khryptorgraphics/mxtasking/internal/config"
)

func configInitCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "config-init",
		Short: "Write a mxtasking.yaml populated with the built-in defaults",
		Long:  "Writes the default Config, marshaled to YAML, to --out so an operator has a starting point to edit rather than reconstructing the file's shape from documentation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(out); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, color.GreenString("wrote default configuration to %s", out))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "mxtasking.yaml", "output path")
	return cmd
}
