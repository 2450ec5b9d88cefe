package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/loom/internal/config"
)

var (
	initForce      bool
	initWithConfig bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a Loom project",
	Long: `Initialize a directory for use with Loom.

This command sets up everything needed to record workflow runs:
  - Creates the .loom directory structure
  - Adds Loom entries to .gitignore when a git repo is present
  - Optionally writes a .loom.yaml project configuration

The directory argument is optional and defaults to the current directory.

Examples:
  loom init                 # Initialize current directory
  loom init ./myproject     # Initialize specific directory
  loom init --force         # Reinitialize even if already set up
  loom init --with-config   # Write a .loom.yaml template`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initWithConfig, "with-config", false, "Write a .loom.yaml project configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing Loom in %s...\n\n", absPath)

	loomDir := filepath.Join(absPath, ".loom")
	if _, err := os.Stat(loomDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	logsDir := filepath.Join(loomDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating .loom directory: %w", err)
	}
	printStatus("✓", "Created .loom directory structure", color.FgGreen)

	if _, err := os.Stat(filepath.Join(absPath, ".git")); err == nil {
		if err := updateGitignore(absPath); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		printStatus("✓", "Updated .gitignore with Loom entries", color.FgGreen)
	}

	if initWithConfig {
		if err := createProjectConfig(absPath); err != nil {
			return fmt.Errorf("creating project config: %w", err)
		}
		printStatus("✓", "Created .loom.yaml", color.FgGreen)
	}

	fmt.Printf("\n%s Loom initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  loom run \"your goal here\"")
	fmt.Println("  loom status")
	fmt.Println("  loom --help")
	return nil
}

// updateGitignore adds Loom entries to .gitignore if not present.
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	loomEntries := []string{
		".loom/loom.db*",
		".loom/logs/",
	}

	needsUpdate := false
	for _, entry := range loomEntries {
		if !strings.Contains(existingContent, entry) {
			needsUpdate = true
			break
		}
	}
	if !needsUpdate {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}
	newContent.WriteString("\n# Loom\n")
	for _, entry := range loomEntries {
		if !strings.Contains(existingContent, entry) {
			newContent.WriteString(entry + "\n")
		}
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

// createProjectConfig writes .loom.yaml from the defaults.
func createProjectConfig(repoPath string) error {
	configPath := filepath.Join(repoPath, ".loom.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	defaults := config.Default()
	doc := map[string]any{
		"storage": map[string]any{
			"backend": defaults.Storage.Backend,
			"path":    defaults.Storage.Path,
		},
		"stream": map[string]any{
			"queue_size": defaults.Stream.QueueSize,
		},
		"logging": map[string]any{
			"debug": defaults.Logging.Debug,
		},
		"tui": map[string]any{
			"refresh_rate": defaults.TUI.RefreshRate.String(),
		},
		"review": map[string]any{
			"require_human": defaults.Review.RequireHuman,
		},
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := "# Loom project configuration\n# Overrides defaults from ~/.config/loom/config.yaml\n\n"
	return os.WriteFile(configPath, []byte(header+string(data)), 0644)
}

// printStatus prints a status line with color.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
