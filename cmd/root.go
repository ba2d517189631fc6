package cmd

import (
	"os"

	"github.com/keiu-jiyu/VideoChat/internal/ui"
	"github.com/keiu-jiyu/VideoChat/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshroom",
	Short: "Multi-party video rooms over a WebRTC mesh",
	Long: `meshroom connects every participant of a room directly to every other
participant using WebRTC. A small relay introduces participants and forwards
their negotiation messages; media never passes through it.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
