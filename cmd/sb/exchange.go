package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "data",
	Short:   "Export every project with its tasks",
	Long: `Write every project and its tasks as JSON or YAML. The format follows the
file extension unless --format is given; without a file the export goes to stdout.

  sb export projects.yaml
  sb export --format json > backup.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		format, err := exchangeFormat(formatFlag, path)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()
		a, err := openCLI(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		var w io.Writer = os.Stdout
		if path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			defer f.Close()
			w = f
		}
		if err := a.manager.Export(w, format); err != nil {
			return err
		}
		if path != "" {
			fmt.Fprintf(os.Stderr, "%s Exported %d projects to %s\n",
				ui.SuccessStyle.Render("✓"), len(a.manager.Projects()), path)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Import projects from an export file",
	Long: `Create the projects and tasks in an export file. Projects whose name matches
an existing project are skipped. Use - to read from stdin.

  sb import projects.yaml
  cat backup.json | sb import - --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		path := args[0]
		format, err := exchangeFormat(formatFlag, path)
		if err != nil {
			return err
		}

		var r io.Reader = os.Stdin
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()
			r = f
		}

		ctx, cancel := commandContext()
		defer cancel()
		a, err := openCLI(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.manager.Import(r, format)
		if err != nil {
			return err
		}
		a.manager.Wait()

		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("%s %s\n", ui.SuccessStyle.Render("✓"), res.Message())
		for _, name := range res.Skipped {
			fmt.Printf("   %s %s\n", ui.MutedStyle.Render("skipped"), name)
		}
		return nil
	},
}

// exchangeFormat picks the format from the flag, else the file extension.
func exchangeFormat(flag, path string) (schema.Format, error) {
	if flag != "" {
		return schema.ParseFormat(flag)
	}
	if path == "" || path == "-" {
		return schema.FormatJSON, nil
	}
	return schema.ParseFormat(filepath.Ext(path))
}

func init() {
	exportCmd.Flags().String("format", "", "json or yaml")
	importCmd.Flags().String("format", "", "json or yaml")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
