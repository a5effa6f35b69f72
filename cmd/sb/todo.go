package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitebook/sitebook/internal/dashboard"
	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/types"
	"github.com/sitebook/sitebook/internal/ui"
)

var todoCmd = &cobra.Command{
	Use:     "todo",
	Aliases: []string{"todos", "task", "t"},
	GroupID: "work",
	Short:   "List and change the tasks of a project",
}

var todoListCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List a project's tasks",
	Long: `List the tasks of a project, latest finish date first.

  sb todo list "North Depot"
  sb todo list "North Depot" --filter hvac`,
	Args: cobra.ExactArgs(1),
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
		query, _ := cmd.Flags().GetString("filter")
		todos, _ := a.manager.FilterTodos(p.ID, query)
		manager.SortTodosByFinishDate(todos)

		if jsonOutput {
			return printJSON(dashboard.NewTodoViews(todos))
		}
		ui.RenderTodos(os.Stdout, todos)
		return nil
	},
}

var todoAddCmd = &cobra.Command{
	Use:   "add <project>",
	Short: "Add a task to a project",
	Long: `Add a task. Without --title in a terminal, a form asks for the fields.

  sb todo add "North Depot" --title "Pour slab" --type "Concrete Works" --finish "in 2 weeks"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := todoValuesFromFlags(cmd)
		if values.Title == "" {
			if !ui.IsInteractive() {
				return fmt.Errorf("--title is required")
			}
			if err := ui.TodoForm(&values); err != nil {
				return err
			}
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
		in, err := values.Input(p.ID, time.Now())
		if err != nil {
			return err
		}
		t, ok := a.manager.AddTodo(p.ID, in)
		if !ok {
			return fmt.Errorf("project not found: %s", args[0])
		}
		a.manager.Wait()
		return reportTodo(a, p.ID, t.ID, "Added")
	},
}

var todoUpdateCmd = &cobra.Command{
	Use:   "update <project> <task>",
	Short: "Change task fields",
	Long: `Change the fields given as flags; others keep their values.

  sb todo update "North Depot" "Pour slab" --status "In Progress"
  sb todo update "North Depot" "Pour slab" --clear-finish`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := todoPatchFromFlags(cmd)
		if err != nil {
			return err
		}
		return updateTodo(args[0], args[1], patch, "Updated")
	},
}

var todoDoneCmd = &cobra.Command{
	Use:   "done <project> <task>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := string(types.TodoCompleted)
		done := true
		return updateTodo(args[0], args[1], types.TodoPatch{Status: &status, Done: &done}, "Completed")
	},
}

var todoDeleteCmd = &cobra.Command{
	Use:   "delete <project> <task>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(2),
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
		t, err := findTodo(p, args[1])
		if err != nil {
			return err
		}
		a.manager.DeleteTodo(p.ID, t.ID)
		a.manager.Wait()
		fmt.Printf("%s Deleted %s from %s\n", ui.SuccessStyle.Render("✓"), t.Title, p.Name)
		return nil
	},
}

var todoRetryCmd = &cobra.Command{
	Use:   "retry <project> <task>",
	Short: "Write a task that failed to sync again",
	Args:  cobra.ExactArgs(2),
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
		t, err := findTodo(p, args[1])
		if err != nil {
			return err
		}
		if !a.manager.RetryTodo(p.ID, t.ID) {
			return fmt.Errorf("%s has no failed sync to retry", t.Title)
		}
		a.manager.Wait()
		return reportTodo(a, p.ID, t.ID, "Retried")
	},
}

func updateTodo(projectRef, todoRef string, patch types.TodoPatch, verb string) error {
	ctx, cancel := commandContext()
	defer cancel()
	a, err := openCLI(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.findProject(projectRef)
	if err != nil {
		return err
	}
	t, err := findTodo(p, todoRef)
	if err != nil {
		return err
	}
	a.manager.UpdateTodo(p.ID, t.ID, patch)
	a.manager.Wait()
	return reportTodo(a, p.ID, t.ID, verb)
}

func addTodoFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "task title")
	cmd.Flags().String("description", "", "task description")
	cmd.Flags().String("type", "", "trade, e.g. Plumbing or \"Concrete Works\"")
	cmd.Flags().String("status", "", "Pending, Assigned, In Progress or Completed")
	cmd.Flags().String("finish", "", "finish date (2025-06-30, next friday, in 3 weeks)")
}

func todoValuesFromFlags(cmd *cobra.Command) ui.TodoValues {
	var v ui.TodoValues
	v.Title, _ = cmd.Flags().GetString("title")
	v.Description, _ = cmd.Flags().GetString("description")
	v.Type, _ = cmd.Flags().GetString("type")
	v.Status, _ = cmd.Flags().GetString("status")
	v.FinishDate, _ = cmd.Flags().GetString("finish")
	return v
}

func todoPatchFromFlags(cmd *cobra.Command) (types.TodoPatch, error) {
	var patch types.TodoPatch
	flags := cmd.Flags()
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		s, _ := flags.GetString(name)
		return &s
	}
	patch.Title = str("title")
	patch.Description = str("description")
	patch.Type = str("type")
	patch.Status = str("status")

	if flags.Changed("done") {
		done, _ := flags.GetBool("done")
		patch.Done = &done
	}
	if unset, _ := flags.GetBool("clear-finish"); unset {
		patch.ClearFinishDate = true
	} else if flags.Changed("finish") {
		s, _ := flags.GetString("finish")
		t, err := ui.ParseHumanDate(s, time.Now())
		if err != nil {
			return patch, err
		}
		patch.FinishDate = t
	}

	if patch == (types.TodoPatch{}) {
		return patch, fmt.Errorf("nothing to update; pass at least one field flag")
	}
	return patch, nil
}

// reportTodo prints the outcome of a task write once it has settled.
func reportTodo(a *app, projectID, todoID, verb string) error {
	p, ok := a.manager.GetProject(projectID)
	if !ok {
		return fmt.Errorf("project %s disappeared", projectID)
	}
	t, err := findTodo(p, a.manager.ResolveID(todoID))
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(dashboard.NewTodoView(t))
	}
	if t.Sync == types.SyncError {
		fmt.Printf("%s %s %s locally; the store write failed (retry with 'sb todo retry %s %s')\n",
			ui.WarningStyle.Render("!"), verb, t.Title, p.ID, t.ID)
		return nil
	}
	fmt.Printf("%s %s %s %s %s\n", ui.SuccessStyle.Render("✓"), verb, t.Title,
		ui.MutedStyle.Render("in "+p.Name), ui.ProgressBar(p.Progress(), 10))
	return nil
}

func init() {
	todoListCmd.Flags().String("filter", "", "only tasks whose title or description contains this text")
	addTodoFlags(todoAddCmd)
	addTodoFlags(todoUpdateCmd)
	todoUpdateCmd.Flags().Bool("done", false, "set the legacy done flag")
	todoUpdateCmd.Flags().Bool("clear-finish", false, "remove the finish date")

	todoCmd.AddCommand(todoListCmd)
	todoCmd.AddCommand(todoAddCmd)
	todoCmd.AddCommand(todoUpdateCmd)
	todoCmd.AddCommand(todoDoneCmd)
	todoCmd.AddCommand(todoDeleteCmd)
	todoCmd.AddCommand(todoRetryCmd)
	rootCmd.AddCommand(todoCmd)
}
