package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apkhub/apkhub-server/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "apkhub-server",
	Short: "ApkHub Server - self-hosted APK catalog and distribution",
	Long: `ApkHub Server hosts a private catalog of Android packages.
Administrators upload APK or AAB artifacts; clients browse the catalog and
download installable APKs with resumable range requests.`,
	Version: version.Short(),
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
}
