package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitebook/sitebook/internal/dashboard"
	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/types"
	"github.com/sitebook/sitebook/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects", "p"},
	GroupID: "work",
	Short:   "List and change projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Long: `List every project with its progress and sync state.

  sb project list                 # all projects
  sb project list --filter depot  # name or description contains "depot"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := openCLI(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		query, _ := cmd.Flags().GetString("filter")
		projects := a.manager.FilterProjects(query)
		if jsonOutput {
			return printJSON(dashboard.NewProjectViews(projects))
		}
		ui.RenderProjects(os.Stdout, projects)
		return nil
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Show a project with its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := openCLI(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.findProject(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			summary, _ := a.manager.Summary(p.ID)
			return printJSON(struct {
				Project dashboard.ProjectView `json:"project"`
				Summary manager.Summary       `json:"summary"`
			}{dashboard.NewProjectView(p), summary})
		}
		ui.RenderProject(os.Stdout, p)
		return nil
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a project",
	Long: `Create a project. Without --name in a terminal, a form asks for the fields.

  sb project add --name "North Depot" --status Active --finish "next friday" --cost 125000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values := projectValuesFromFlags(cmd)
		if values.Name == "" {
			if !ui.IsInteractive() {
				return fmt.Errorf("--name is required")
			}
			if err := ui.ProjectForm(&values); err != nil {
				return err
			}
		}
		in, err := values.Input(time.Now())
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

		p, err := a.manager.NewProject(in)
		if errors.Is(err, manager.ErrDuplicateName) {
			return fmt.Errorf("a project named %q already exists", in.Name)
		}
		if err != nil {
			return err
		}
		a.manager.Wait()
		return reportProject(a, p.ID, "Created")
	},
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <project>",
	Short: "Change project fields",
	Long: `Change the fields given as flags; others keep their values.

  sb project update "North Depot" --status Finished
  sb project update 3f2c... --finish 2025-11-30 --cost 98000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := projectPatchFromFlags(cmd)
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

		p, err := a.findProject(args[0])
		if err != nil {
			return err
		}
		a.manager.UpdateProject(p.ID, patch)
		a.manager.Wait()
		return reportProject(a, p.ID, "Updated")
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := openCLI(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.findProject(args[0])
		if err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := ui.Confirm(fmt.Sprintf("Delete %s and its %d tasks?", p.Name, len(p.Todos)), false)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("not deleted; pass --yes to skip the prompt")
			}
		}
		a.manager.DeleteProject(p.ID)
		a.manager.Wait()
		fmt.Printf("%s Deleted %s\n", ui.SuccessStyle.Render("✓"), p.Name)
		return nil
	},
}

var projectRetryCmd = &cobra.Command{
	Use:   "retry <project>",
	Short: "Write a project that failed to sync again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		a, err := openCLI(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.findProject(args[0])
		if err != nil {
			return err
		}
		if !a.manager.RetryProject(p.ID) {
			return fmt.Errorf("%s has no failed sync to retry", p.Name)
		}
		a.manager.Wait()
		return reportProject(a, p.ID, "Retried")
	},
}

func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "project name")
	cmd.Flags().String("description", "", "project description")
	cmd.Flags().String("status", "", "Pending, Active or Finished")
	cmd.Flags().String("role", "", "your role: Architect, Engineer or Developer")
	cmd.Flags().String("finish", "", "finish date (2025-06-30, next friday, in 3 weeks)")
	cmd.Flags().String("cost", "", "estimated cost")
}

func projectValuesFromFlags(cmd *cobra.Command) ui.ProjectValues {
	var v ui.ProjectValues
	v.Name, _ = cmd.Flags().GetString("name")
	v.Description, _ = cmd.Flags().GetString("description")
	v.Status, _ = cmd.Flags().GetString("status")
	v.UserRole, _ = cmd.Flags().GetString("role")
	v.FinishDate, _ = cmd.Flags().GetString("finish")
	v.Cost, _ = cmd.Flags().GetString("cost")
	return v
}

func projectPatchFromFlags(cmd *cobra.Command) (types.ProjectPatch, error) {
	var patch types.ProjectPatch
	flags := cmd.Flags()
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		s, _ := flags.GetString(name)
		return &s
	}
	patch.Name = str("name")
	patch.Description = str("description")
	patch.Status = str("status")
	patch.UserRole = str("role")

	if flags.Changed("finish") || flags.Changed("cost") {
		in, err := projectValuesFromFlags(cmd).Input(time.Now())
		if err != nil {
			return patch, err
		}
		if flags.Changed("finish") {
			patch.FinishDate = in.FinishDate
		}
		if flags.Changed("cost") {
			patch.Cost = in.Cost
		}
	}
	if patch == (types.ProjectPatch{}) {
		return patch, fmt.Errorf("nothing to update; pass at least one field flag")
	}
	return patch, nil
}

// reportProject prints the outcome of a write once it has settled.
func reportProject(a *app, id, verb string) error {
	p, ok := a.manager.GetProject(id)
	if !ok {
		return fmt.Errorf("project %s disappeared", id)
	}
	if jsonOutput {
		return printJSON(dashboard.NewProjectView(p))
	}
	if p.Sync == types.SyncError {
		fmt.Printf("%s %s %s locally; the store write failed (retry with 'sb project retry %s')\n",
			ui.WarningStyle.Render("!"), verb, p.Name, p.ID)
		return nil
	}
	fmt.Printf("%s %s %s %s\n", ui.SuccessStyle.Render("✓"), verb, p.Name, ui.MutedStyle.Render(p.ID))
	return nil
}

func init() {
	projectListCmd.Flags().String("filter", "", "only projects whose name or description contains this text")
	addProjectFlags(projectAddCmd)
	addProjectFlags(projectUpdateCmd)
	projectDeleteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectUpdateCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	projectCmd.AddCommand(projectRetryCmd)
	rootCmd.AddCommand(projectCmd)
}
