package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var preamble = `mpdgo ` + Version + `

mpdgo is a Music Player Daemon compatible playback core.

Web site: https://gitlab.com/mipimipi/mpdgo/

mpdgo comes with ABSOLUTELY NO WARRANTY. This is free software, and you
are welcome to redistribute it under certain conditions.  See the GNU
General Public Licence for details.`

var rootCmd = &cobra.Command{
	Use:     "mpdgo",
	Short:   "mpdgo music player daemon",
	Long:    preamble,
	Version: Version,
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}
