package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Versifine/mcclient/internal/codec"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:          %s\n", version)
			fmt.Fprintf(out, "Commit:           %s\n", commit)
			fmt.Fprintf(out, "Built:            %s\n", date)
			fmt.Fprintf(out, "Protocol default: %d\n", codec.DefaultVersion)
			fmt.Fprintf(out, "Go version:       %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch:          %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
