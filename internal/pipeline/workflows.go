package pipeline

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow and activity registration names live here so the worker and the
// HTTP triggers agree on them.
const (
	IntakeWorkflowName         = "IntakeWorkflow"
	DecisionMakersWorkflowName = "DecisionMakersWorkflow"
	CampaignWorkflowName       = "CampaignWorkflow"
)

const (
	defaultStageTimeout     = 5 * time.Minute
	defaultStageMaxAttempts = 3
)

// IntakeWorkflowID returns the deterministic workflow id for a candidate's
// intake run, so duplicate external triggers collapse onto one execution.
func IntakeWorkflowID(candidateID int64) string {
	return fmt.Sprintf("intake-%d", candidateID)
}

// DecisionMakersWorkflowID returns the workflow id for the decision-maker
// phase of a candidate.
func DecisionMakersWorkflowID(candidateID int64) string {
	return fmt.Sprintf("decision-makers-%d", candidateID)
}

// CampaignWorkflowID returns the workflow id for the campaign phase of a
// candidate.
func CampaignWorkflowID(candidateID int64) string {
	return fmt.Sprintf("campaign-%d", candidateID)
}

// Workflows holds the per-stage retry settings. The fields are fixed at
// worker start, so the workflow code stays deterministic.
type Workflows struct {
	StageTimeout     time.Duration
	StageMaxAttempts int32
}

// NewWorkflows builds the workflow set from the configured stage timeout
// (seconds) and retry budget, falling back to defaults for non-positive
// values.
func NewWorkflows(stageTimeoutSecs, stageMaxAttempts int) *Workflows {
	wf := &Workflows{
		StageTimeout:     defaultStageTimeout,
		StageMaxAttempts: defaultStageMaxAttempts,
	}
	if stageTimeoutSecs > 0 {
		wf.StageTimeout = time.Duration(stageTimeoutSecs) * time.Second
	}
	if stageMaxAttempts > 0 {
		wf.StageMaxAttempts = int32(stageMaxAttempts)
	}
	return wf
}

func (wf *Workflows) stageActivityOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: wf.StageTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    wf.StageMaxAttempts,
		},
	})
}

// IntakeWorkflow runs extraction and company search for a freshly created
// (or reset) candidate. Each stage is a separate activity so a retry of the
// search never re-runs extraction.
func (wf *Workflows) IntakeWorkflow(ctx workflow.Context, in SearchInput) error {
	ctx = wf.stageActivityOptions(ctx)
	logger := workflow.GetLogger(ctx)

	var a *Activities
	var res StageResult
	if err := workflow.ExecuteActivity(ctx, a.ExtractActivity, in.CandidateID).Get(ctx, &res); err != nil {
		return failCandidate(ctx, in.CandidateID, err)
	}
	if res.Skipped {
		logger.Info("intake stopped, extraction skipped", "candidate_id", in.CandidateID)
		return nil
	}

	if err := workflow.ExecuteActivity(ctx, a.SearchCompaniesActivity, in).Get(ctx, &res); err != nil {
		return failCandidate(ctx, in.CandidateID, err)
	}
	logger.Info("intake complete",
		"candidate_id", in.CandidateID,
		"companies_matched", res.Matched,
		"skipped", res.Skipped)
	return nil
}

// DecisionMakersWorkflow runs decision-maker discovery after the candidate
// has approved companies.
func (wf *Workflows) DecisionMakersWorkflow(ctx workflow.Context, candidateID int64) error {
	ctx = wf.stageActivityOptions(ctx)

	var a *Activities
	var res StageResult
	if err := workflow.ExecuteActivity(ctx, a.FindDecisionMakersActivity, candidateID).Get(ctx, &res); err != nil {
		return failCandidate(ctx, candidateID, err)
	}
	workflow.GetLogger(ctx).Info("decision-maker discovery complete",
		"candidate_id", candidateID,
		"assignable_companies", res.Matched,
		"skipped", res.Skipped)
	return nil
}

// CampaignWorkflow creates the outreach campaign once an admin requests it.
func (wf *Workflows) CampaignWorkflow(ctx workflow.Context, candidateID int64) error {
	ctx = wf.stageActivityOptions(ctx)

	var a *Activities
	var res StageResult
	if err := workflow.ExecuteActivity(ctx, a.CreateCampaignActivity, candidateID).Get(ctx, &res); err != nil {
		return failCandidate(ctx, candidateID, err)
	}
	workflow.GetLogger(ctx).Info("campaign stage complete",
		"candidate_id", candidateID,
		"leads_created", res.Matched,
		"skipped", res.Skipped)
	return nil
}

// failCandidate marks the candidate failed after a stage exhausted its
// retries, then surfaces the original stage error.
func failCandidate(ctx workflow.Context, candidateID int64, stageErr error) error {
	var a *Activities
	if err := workflow.ExecuteActivity(ctx, a.MarkFailedActivity, candidateID).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("failed to mark candidate failed",
			"candidate_id", candidateID, "error", err)
	}
	return stageErr
}
