package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/mipimipi/mpdgo/src/internal/config"
)

var cfgPath string

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify mpdgo configuration",
	Long:  "Check the mpdgo configuration file for completeness and consistency",
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.Test(cfgPath); err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	testCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to configuration file")
	rootCmd.AddCommand(testCmd)
}
