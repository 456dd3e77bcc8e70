package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/mipimipi/mpdgo/src/internal/server"
)

// runCmd represents the start command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run mpdgo",
	Long:  "Run the mpdgo playback core",
	Run: func(cmd *cobra.Command, args []string) {
		if err := server.Run(Version); err != nil {
			fmt.Printf("mpdgo cannot be run: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
