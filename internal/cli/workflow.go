package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mcdaddytn/patentgraph/internal/models"
	"github.com/mcdaddytn/patentgraph/internal/workflow"
)

var (
	planPatentsFile string
	planPatents     []string
	planConfigFile  string
	planPerPatent   string
	planSynthesis   string
	planSortField   string
	planMaxRetries  int
	startWatch      bool
	statusJSON      bool
)

// customPlanFile is the YAML shape accepted by "workflow plan custom".
type customPlanFile struct {
	Name       string            `yaml:"name"`
	MaxRetries int               `yaml:"max_retries"`
	Jobs       []workflow.JobSpec `yaml:"jobs"`
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Plan, run, and inspect scoring workflows",
}

var workflowPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a workflow without starting it",
}

var workflowPlanTournamentCmd = &cobra.Command{
	Use:   "tournament <name>",
	Short: "Plan a multi-round elimination tournament",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		population, err := resolvePopulation()
		if err != nil {
			exitWithError("%v", err)
		}

		data, err := os.ReadFile(planConfigFile)
		if err != nil {
			exitWithError("read config file: %v", err)
		}
		var cfg workflow.TournamentConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			exitWithError("parse config file: %v", err)
		}

		svc, err := getWorkflowService(false)
		if err != nil {
			exitWithError("%v", err)
		}
		wf, err := svc.CreateTournament(context.Background(), args[0], population, cfg)
		if err != nil {
			exitWithError("plan tournament: %v", err)
		}

		fmt.Printf("Planned tournament workflow %s (%d patents, %d rounds)\n",
			wf.ID, len(population), len(cfg.Rounds))
		fmt.Printf("Start it with: patentgraph workflow start %s\n", wf.ID)
	},
}

var workflowPlanTwoStageCmd = &cobra.Command{
	Use:   "two-stage <name>",
	Short: "Plan one scoring job per patent plus a synthesis job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		population, err := resolvePopulation()
		if err != nil {
			exitWithError("%v", err)
		}

		cfg := workflow.TwoStageConfig{
			PerPatentTemplateID: planPerPatent,
			SynthesisTemplateID: planSynthesis,
			SortScoreField:      planSortField,
			MaxRetries:          planMaxRetries,
		}

		svc, err := getWorkflowService(false)
		if err != nil {
			exitWithError("%v", err)
		}
		wf, err := svc.CreateTwoStage(context.Background(), args[0], population, cfg)
		if err != nil {
			exitWithError("plan two-stage: %v", err)
		}

		fmt.Printf("Planned two-stage workflow %s (%d patents + synthesis)\n", wf.ID, len(population))
		fmt.Printf("Start it with: patentgraph workflow start %s\n", wf.ID)
	},
}

var workflowPlanCustomCmd = &cobra.Command{
	Use:   "custom <plan.yaml>",
	Short: "Plan a workflow from an explicit job DAG file",
	Long: `Plan a workflow from a YAML file with the shape:

  name: my-analysis
  max_retries: 2
  jobs:
    - handle: score-a
      template_id: patent-score
      target: {type: patent, patent_id: US1234567}
    - handle: summary
      template_id: synthesis
      target: {type: synthesis, upstream_refs: [score-a]}
      depends_on: [score-a]`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			exitWithError("read plan file: %v", err)
		}
		var plan customPlanFile
		if err := yaml.Unmarshal(data, &plan); err != nil {
			exitWithError("parse plan file: %v", err)
		}
		if plan.Name == "" {
			exitWithError("plan file must set a name")
		}

		svc, err := getWorkflowService(false)
		if err != nil {
			exitWithError("%v", err)
		}
		wf, err := svc.CreateCustom(context.Background(), plan.Name, plan.Jobs, plan.MaxRetries)
		if err != nil {
			exitWithError("plan workflow: %v", err)
		}

		fmt.Printf("Planned custom workflow %s (%d jobs)\n", wf.ID, len(plan.Jobs))
		fmt.Printf("Start it with: patentgraph workflow start %s\n", wf.ID)
	},
}

var workflowStartCmd = &cobra.Command{
	Use:   "start <workflow-id>",
	Short: "Start executing a planned workflow",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := getWorkflowService(true)
		if err != nil {
			exitWithError("%v", err)
		}

		if err := svc.Start(context.Background(), args[0]); err != nil {
			exitWithError("start workflow: %v", err)
		}

		if startWatch {
			if err := RunWorkflowProgress(svc, args[0]); err != nil {
				exitWithError("watch workflow: %v", err)
			}
			return
		}

		fmt.Printf("Workflow %s started\n", args[0])
		fmt.Printf("Check progress with: patentgraph workflow status %s\n", args[0])
	},
}

var workflowResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Relaunch execution for workflows left in the running state",
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := getWorkflowService(true)
		if err != nil {
			exitWithError("%v", err)
		}
		if err := svc.Resume(context.Background()); err != nil {
			exitWithError("resume workflows: %v", err)
		}
		fmt.Println("Interrupted workflows resumed")
	},
}

var workflowStatusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show workflow and per-job status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := getWorkflowService(false)
		if err != nil {
			exitWithError("%v", err)
		}
		st, err := svc.Status(context.Background(), args[0])
		if err != nil {
			exitWithError("get status: %v", err)
		}

		if statusJSON {
			out, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				exitWithError("encode status: %v", err)
			}
			fmt.Println(string(out))
			return
		}

		printStatus(st)
	},
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workflows",
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := getWorkflowService(false)
		if err != nil {
			exitWithError("%v", err)
		}
		workflows, err := svc.List(context.Background())
		if err != nil {
			exitWithError("list workflows: %v", err)
		}

		if len(workflows) == 0 {
			fmt.Println("No workflows found")
			return
		}

		fmt.Printf("%-10s %-12s %-10s %-8s %-20s %s\n", "ID", "TYPE", "STATUS", "SCOPE", "CREATED", "NAME")
		for _, wf := range workflows {
			fmt.Printf("%-10s %-12s %-10s %-8d %-20s %s\n",
				wf.ID, wf.Type, wf.Status, len(wf.Scope),
				wf.CreatedAt.Format("2006-01-02 15:04:05"), wf.Name)
		}
	},
}

var workflowRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Reset a failed job so execution can pick it up again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := getWorkflowService(false)
		if err != nil {
			exitWithError("%v", err)
		}
		if err := svc.RetryJob(context.Background(), args[0]); err != nil {
			exitWithError("retry job: %v", err)
		}
		fmt.Printf("Job %s queued for retry\n", args[0])
	},
}

var workflowCancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "Cancel a workflow and its unfinished jobs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := getWorkflowService(false)
		if err != nil {
			exitWithError("%v", err)
		}
		if err := svc.Cancel(context.Background(), args[0]); err != nil {
			exitWithError("cancel workflow: %v", err)
		}
		fmt.Printf("Workflow %s cancelled\n", args[0])
	},
}

var workflowDeleteCmd = &cobra.Command{
	Use:   "delete <workflow-id>",
	Short: "Delete a workflow and all its jobs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, err := getWorkflowService(false)
		if err != nil {
			exitWithError("%v", err)
		}
		if err := svc.Delete(context.Background(), args[0]); err != nil {
			exitWithError("delete workflow: %v", err)
		}
		fmt.Printf("Workflow %s deleted\n", args[0])
	},
}

func printStatus(st *workflow.Status) {
	wf := st.Workflow
	fmt.Printf("Workflow:  %s (%s)\n", wf.ID, wf.Name)
	fmt.Printf("Type:      %s\n", wf.Type)
	fmt.Printf("Status:    %s\n", wf.Status)
	if wf.Error != nil {
		fmt.Printf("Error:     %s\n", *wf.Error)
	}
	fmt.Printf("Tokens:    %d\n", st.TokensUsed)

	fmt.Printf("Jobs:      ")
	parts := make([]string, 0, len(st.Counts))
	for _, status := range []models.JobStatus{
		models.JobPending, models.JobRunning, models.JobComplete,
		models.JobError, models.JobCancelled,
	} {
		if n := st.Counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	fmt.Println(strings.Join(parts, ", "))

	if len(st.BlockedIDs) > 0 {
		fmt.Printf("Blocked:   %s\n", strings.Join(st.BlockedIDs, ", "))
	}

	fmt.Println()
	fmt.Printf("%-10s %-18s %-10s %-6s %-8s %s\n", "ID", "TEMPLATE", "STATUS", "ROUND", "RETRIES", "NOTES")
	for _, jv := range st.Jobs {
		notes := ""
		if jv.Blocked {
			notes = "blocked"
		}
		if jv.Error != nil {
			if notes != "" {
				notes += "; "
			}
			notes += *jv.Error
		}
		fmt.Printf("%-10s %-18s %-10s %-6d %-8s %s\n",
			jv.ID, jv.TemplateID, jv.Status, jv.Round,
			fmt.Sprintf("%d/%d", jv.RetryCount, jv.MaxRetries), notes)
	}
}

// resolvePopulation merges the --patent flags and --patents-file contents.
func resolvePopulation() ([]string, error) {
	ids := append([]string(nil), planPatents...)
	if planPatentsFile != "" {
		data, err := os.ReadFile(planPatentsFile)
		if err != nil {
			return nil, fmt.Errorf("read patents file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ids = append(ids, line)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no patents given: use --patent or --patents-file")
	}
	return ids, nil
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowPlanCmd)
	workflowCmd.AddCommand(workflowStartCmd)
	workflowCmd.AddCommand(workflowResumeCmd)
	workflowCmd.AddCommand(workflowStatusCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowRetryCmd)
	workflowCmd.AddCommand(workflowCancelCmd)
	workflowCmd.AddCommand(workflowDeleteCmd)

	workflowPlanCmd.AddCommand(workflowPlanTournamentCmd)
	workflowPlanCmd.AddCommand(workflowPlanTwoStageCmd)
	workflowPlanCmd.AddCommand(workflowPlanCustomCmd)

	for _, cmd := range []*cobra.Command{workflowPlanTournamentCmd, workflowPlanTwoStageCmd} {
		cmd.Flags().StringSliceVar(&planPatents, "patent", nil, "patent id to include (repeatable)")
		cmd.Flags().StringVar(&planPatentsFile, "patents-file", "", "file with one patent id per line")
	}

	workflowPlanTournamentCmd.Flags().StringVar(&planConfigFile, "config", "", "tournament config YAML file")
	workflowPlanTournamentCmd.MarkFlagRequired("config")

	workflowPlanTwoStageCmd.Flags().StringVar(&planPerPatent, "template", "patent-score", "per-patent template id")
	workflowPlanTwoStageCmd.Flags().StringVar(&planSynthesis, "synthesis-template", "synthesis", "synthesis template id")
	workflowPlanTwoStageCmd.Flags().StringVar(&planSortField, "sort-field", "", "score field used to order synthesis input")
	workflowPlanTwoStageCmd.Flags().IntVar(&planMaxRetries, "max-retries", 0, "retries per job")

	workflowStartCmd.Flags().BoolVarP(&startWatch, "watch", "w", false, "show live progress until the workflow finishes")
	workflowStatusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}
