package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apkhub/apkhub-server/internal/config"
	"github.com/apkhub/apkhub-server/pkg/apk"
	"github.com/apkhub/apkhub-server/pkg/bundle"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check external tool availability",
	Long: `The doctor command verifies that the external tools the server depends
on can be found: aapt2 for package inspection and java plus bundletool for
AAB conversion. Configured paths take precedence over auto-detection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ok := true
		ok = checkTool("aapt2", cfg.Aapt2Path, apk.DetectAapt2) && ok
		ok = checkTool("java", cfg.JavaPath, bundle.DetectJava) && ok

		if cfg.BundletoolPath == "" {
			fmt.Println("✗ bundletool: not configured (AAB uploads disabled)")
		} else if _, err := os.Stat(cfg.BundletoolPath); err != nil {
			fmt.Printf("✗ bundletool: %s not found\n", cfg.BundletoolPath)
			ok = false
		} else {
			fmt.Printf("✓ bundletool: %s\n", cfg.BundletoolPath)
		}

		if !ok {
			return fmt.Errorf("some checks failed")
		}
		fmt.Println("All checks passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func checkTool(name, configured string, detect func() (string, error)) bool {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			fmt.Printf("✗ %s: configured path %s not found\n", name, configured)
			return false
		}
		fmt.Printf("✓ %s: %s (configured)\n", name, configured)
		return true
	}

	path, err := detect()
	if err != nil {
		fmt.Printf("✗ %s: %v\n", name, err)
		return false
	}
	fmt.Printf("✓ %s: %s (detected)\n", name, path)
	return true
}
