package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/stillpointapp/stillpoint/internal/orchestrator"
	"github.com/stillpointapp/stillpoint/internal/ui"
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Add a task to the local store. In cloud-sync mode the task is also
queued for the cloud replica.

The --due flag accepts natural language, e.g. "tomorrow at 9am" or
"next friday".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetInt("priority")
		dueText, _ := cmd.Flags().GetString("due")

		var deadline *time.Time
		if dueText != "" {
			w := when.New(nil)
			w.Add(en.All...)
			w.Add(common.All...)
			r, err := w.Parse(dueText, time.Now())
			if err != nil {
				return fmt.Errorf("failed to parse due date: %w", err)
			}
			if r == nil {
				return fmt.Errorf("could not understand due date %q", dueText)
			}
			deadline = &r.Time
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		o, err := newOrchestrator(cmd.Context(), st)
		if err != nil {
			return err
		}
		defer o.Teardown()

		task, receipt, err := o.AddTask(cmd.Context(), orchestrator.TaskInput{
			Title:       args[0],
			Description: description,
			Deadline:    deadline,
			Priority:    priority,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Added %s (%s)\n", ui.RenderPass("✓"), task.Title, task.ID)
		if receipt.Remote == orchestrator.RemotePending {
			fmt.Printf("  %s\n", ui.RenderDim("queued for cloud sync"))
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		o, err := newOrchestrator(cmd.Context(), st)
		if err != nil {
			return err
		}
		defer o.Teardown()

		tasks, err := o.GetTasks(cmd.Context())
		if err != nil {
			return err
		}

		shown := 0
		for _, t := range tasks {
			if t.Completed && !all {
				continue
			}
			marker := " "
			if t.Completed {
				marker = ui.RenderPass("✓")
			}
			line := fmt.Sprintf("[%s] P%d %s  %s", marker, t.Priority, t.ID, t.Title)
			if t.Deadline != nil {
				line += ui.RenderDim(fmt.Sprintf("  due %s", t.Deadline.Format("2006-01-02 15:04")))
			}
			fmt.Println(line)
			shown++
		}
		if shown == 0 {
			fmt.Println(ui.RenderDim("no tasks"))
		}
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		o, err := newOrchestrator(cmd.Context(), st)
		if err != nil {
			return err
		}
		defer o.Teardown()

		completed := true
		task, _, err := o.UpdateTask(cmd.Context(), args[0], orchestrator.TaskPatch{Completed: &completed})
		if err != nil {
			return err
		}

		fmt.Printf("%s Completed %s\n", ui.RenderPass("✓"), task.Title)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		o, err := newOrchestrator(cmd.Context(), st)
		if err != nil {
			return err
		}
		defer o.Teardown()

		if _, err := o.DeleteTask(cmd.Context(), args[0]); err != nil {
			return err
		}

		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	addCmd.Flags().StringP("description", "d", "", "task description")
	addCmd.Flags().IntP("priority", "p", 2, "priority (1=high, 3=low)")
	addCmd.Flags().String("due", "", "deadline in natural language")
	listCmd.Flags().BoolP("all", "a", false, "include completed tasks")

	rootCmd.AddCommand(addCmd, listCmd, doneCmd, rmCmd)

	// Keep usage errors on stderr.
	rootCmd.SetOut(os.Stdout)
}
