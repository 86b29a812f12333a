package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/kiln/internal/version"
)

// versionCmd implements the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of kiln",
	Run: func(_ *cobra.Command, _ []string) {
		info := version.Get()
		fmt.Printf("kiln version %s\n", info.Full())
		fmt.Printf("bakefile format %d\n", info.BakefileFormat)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
