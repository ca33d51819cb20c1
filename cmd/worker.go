package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/righthand-talent/placement-cli/internal/pipeline"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline worker",
	Long:  "Polls the Temporal task queue and executes the extract, company-search, decision-maker, and campaign stages.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		activities, err := initActivities(st)
		if err != nil {
			return err
		}

		tc, err := initTemporal()
		if err != nil {
			return err
		}
		defer tc.Close()

		wf := pipeline.NewWorkflows(cfg.Pipeline.StageTimeoutSecs, cfg.Pipeline.StageMaxAttempts)

		w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
		w.RegisterWorkflowWithOptions(wf.IntakeWorkflow,
			workflow.RegisterOptions{Name: pipeline.IntakeWorkflowName})
		w.RegisterWorkflowWithOptions(wf.DecisionMakersWorkflow,
			workflow.RegisterOptions{Name: pipeline.DecisionMakersWorkflowName})
		w.RegisterWorkflowWithOptions(wf.CampaignWorkflow,
			workflow.RegisterOptions{Name: pipeline.CampaignWorkflowName})
		w.RegisterActivity(activities)

		zap.L().Info("worker starting",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.String("namespace", cfg.Temporal.Namespace))

		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "worker run")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
