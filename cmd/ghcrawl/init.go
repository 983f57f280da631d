package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/ghcrawl/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/ghcrawl.yaml
var configTemplate embed.FS

// templatePath is the path of the config template in configTemplate.
const templatePath = "templates/ghcrawl.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new ghcrawl configuration file",
		Long: `Initialize creates a new .ghcrawl.yaml configuration file in the current directory.

The generated file includes:
- Every crawl setting a fresh run requires, with working defaults
- The optional runtime settings, commented out
- Documentation for all available options

Examples:
  # Create .ghcrawl.yaml in current directory
  ghcrawl init

  # Create config file at a specific path
  ghcrawl init -o users.yaml

  # Force overwrite existing file
  ghcrawl init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit the crawl settings, then start a run with:")
	fmt.Fprintf(out, "  ghcrawl crawl --config %s\n", outputPath)

	return nil
}
