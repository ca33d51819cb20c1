package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/righthand-talent/placement-cli/internal/model"
	"github.com/righthand-talent/placement-cli/internal/pipeline"
	"github.com/righthand-talent/placement-cli/internal/store"
	"github.com/righthand-talent/placement-cli/pkg/lemlist"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for intake and approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tc, err := initTemporal()
		if err != nil {
			return err
		}
		defer tc.Close()

		api := &apiServer{
			store:     st,
			temporal:  tc,
			taskQueue: cfg.Temporal.TaskQueue,
			lemlist: lemlist.NewClient(cfg.Lemlist.Key,
				lemlist.WithBaseURL(cfg.Lemlist.BaseURL)),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.routes(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer carries the handler dependencies. Workflows are started here;
// all pipeline work happens on the worker.
type apiServer struct {
	store     store.Store
	temporal  client.Client
	taskQueue string
	lemlist   lemlist.Client
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/candidates", func(r chi.Router) {
		r.Post("/", s.createCandidate)
		r.Get("/", s.listCandidates)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getCandidate)
			r.Put("/", s.updateCandidate)
			r.Delete("/", s.deleteCandidate)
			r.Put("/extracted-data", s.editExtractedData)
			r.Post("/approval-request", s.requestApproval)
			r.Get("/selections", s.listSelections)
			r.Put("/selections/{companyID}", s.setSelectionApproval)
			r.Post("/approve", s.confirmApproval)
			r.Post("/campaign", s.requestCampaign)
		})
	})

	return r
}

type candidateRequest struct {
	FirstName          string   `json:"first_name"`
	LastName           string   `json:"last_name"`
	Email              string   `json:"email"`
	LinkedInURL        string   `json:"linkedin_url"`
	Role               string   `json:"role"`
	AdditionalInfo     string   `json:"additional_info"`
	ResumeSource       string   `json:"resume_source"`
	ResumeFilename     string   `json:"resume_filename"`
	TranscriptSource   string   `json:"call_transcript_source"`
	TranscriptFilename string   `json:"call_transcript_filename"`
	SearchStrategy     string   `json:"search_strategy"`
	ManualDomains      []string `json:"manual_domains"`
}

func (s *apiServer) createCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FirstName == "" || req.LastName == "" || req.Email == "" {
		respondError(w, http.StatusBadRequest, "first_name, last_name, and email are required")
		return
	}

	strategy := model.SearchStrategy(req.SearchStrategy)
	if strategy == "" {
		strategy = model.StrategySmart
	}
	if strategy != model.StrategySmart && strategy != model.StrategyHybrid && strategy != model.StrategyManual {
		respondError(w, http.StatusBadRequest, "unknown search_strategy")
		return
	}

	candidate := &model.Candidate{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Email:              req.Email,
		LinkedInURL:        req.LinkedInURL,
		Role:               req.Role,
		AdditionalInfo:     req.AdditionalInfo,
		ResumeSource:       model.ResumeSource(req.ResumeSource),
		ResumeFilename:     req.ResumeFilename,
		TranscriptSource:   model.TranscriptSource(req.TranscriptSource),
		TranscriptFilename: req.TranscriptFilename,
	}
	id, err := s.store.CreateCandidate(r.Context(), candidate)
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.startIntake(r.Context(), pipeline.IntakeWorkflowID(id), pipeline.SearchInput{
		CandidateID: id,
		Strategy:    strategy,
		Domains:     req.ManualDomains,
	}); err != nil {
		s.fail(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *apiServer) listCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.store.ListCandidates(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, candidates)
}

func (s *apiServer) getCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	candidate, err := s.store.GetCandidate(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, candidate)
}

// updateCandidate edits the candidate profile. Changing either document
// resets the candidate to not_started and re-runs intake with the default
// strategy, since existing extraction and matches are stale.
func (s *apiServer) updateCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing, err := s.store.GetCandidate(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}

	documentsChanged := req.ResumeFilename != existing.ResumeFilename ||
		req.TranscriptFilename != existing.TranscriptFilename

	existing.FirstName = req.FirstName
	existing.LastName = req.LastName
	existing.Email = req.Email
	existing.LinkedInURL = req.LinkedInURL
	existing.Role = req.Role
	existing.AdditionalInfo = req.AdditionalInfo
	existing.ResumeSource = model.ResumeSource(req.ResumeSource)
	existing.ResumeFilename = req.ResumeFilename
	existing.TranscriptSource = model.TranscriptSource(req.TranscriptSource)
	existing.TranscriptFilename = req.TranscriptFilename

	if err := s.store.UpdateCandidateProfile(r.Context(), existing); err != nil {
		s.fail(w, err)
		return
	}

	if documentsChanged {
		if err := s.store.ResetStatus(r.Context(), id); err != nil {
			s.fail(w, err)
			return
		}
		// The original intake workflow id may still be taken by the finished
		// run, so re-triggers get a salted id.
		workflowID := fmt.Sprintf("%s-%s", pipeline.IntakeWorkflowID(id), uuid.NewString()[:8])
		if err := s.startIntake(r.Context(), workflowID, pipeline.SearchInput{
			CandidateID: id,
			Strategy:    model.StrategySmart,
		}); err != nil {
			s.fail(w, err)
			return
		}
		zap.L().Info("candidate documents changed, pipeline restarted",
			zap.Int64("candidate_id", id))
	}

	respondJSON(w, http.StatusOK, map[string]bool{"restarted": documentsChanged})
}

type extractedDataRequest struct {
	ExtractedData      json.RawMessage           `json:"extracted_data"`
	CompanyPreferences *model.CompanyPreferences `json:"company_preferences"`
}

// editExtractedData accepts a manual correction of the extraction output.
// It is rejected before extraction has produced anything to correct.
func (s *apiServer) editExtractedData(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	var req extractedDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	candidate, err := s.store.GetCandidate(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	switch candidate.ProcessingStatus {
	case model.StatusNotStarted, model.StatusExtractingData, model.StatusFailed:
		respondError(w, http.StatusConflict,
			fmt.Sprintf("extracted data cannot be edited while %s", candidate.ProcessingStatus))
		return
	}

	if err := s.store.SetExtractedData(r.Context(), id, req.ExtractedData, req.CompanyPreferences); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// requestApproval marks the candidate as awaiting their company approval.
// A second request while already pending is a conflict, which keeps the
// approval email from being sent twice.
func (s *apiServer) requestApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	err := s.store.TransitionStatus(r.Context(), id,
		[]model.Status{model.StatusCompaniesMatched}, model.StatusApprovalPending)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(model.StatusApprovalPending)})
}

type selectionView struct {
	model.Selection
	Company *model.Company `json:"company,omitempty"`
}

func (s *apiServer) listSelections(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	selections, err := s.store.ListSelections(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]selectionView, 0, len(selections))
	for _, sel := range selections {
		company, err := s.store.GetCompany(r.Context(), sel.CompanyID)
		if err != nil {
			s.fail(w, err)
			return
		}
		views = append(views, selectionView{Selection: sel, Company: company})
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *apiServer) setSelectionApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	companyID, err := strconv.ParseInt(chi.URLParam(r, "companyID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var req struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.SetSelectionApproval(r.Context(), id, companyID, req.Approved); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"approved": req.Approved})
}

// confirmApproval finalizes the candidate's company choices and kicks off
// decision-maker discovery.
func (s *apiServer) confirmApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	err := s.store.TransitionStatus(r.Context(), id,
		[]model.Status{model.StatusApprovalPending}, model.StatusCandidateApproved)
	if err != nil {
		s.fail(w, err)
		return
	}

	_, err = s.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        pipeline.DecisionMakersWorkflowID(id),
		TaskQueue: s.taskQueue,
	}, pipeline.DecisionMakersWorkflowName, id)
	if err != nil {
		s.fail(w, eris.Wrap(err, "start decision-makers workflow"))
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": string(model.StatusCandidateApproved)})
}

// requestCampaign starts campaign creation for a candidate whose decision
// makers are in place.
func (s *apiServer) requestCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	candidate, err := s.store.GetCandidate(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if candidate.ProcessingStatus != model.StatusDecisionMakersFound {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("campaign requires decision_makers_found, candidate is %s", candidate.ProcessingStatus))
		return
	}

	_, err = s.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        pipeline.CampaignWorkflowID(id),
		TaskQueue: s.taskQueue,
	}, pipeline.CampaignWorkflowName, id)
	if err != nil {
		s.fail(w, eris.Wrap(err, "start campaign workflow"))
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// deleteCandidate removes a candidate and its dependent rows. A linked
// outreach campaign is paused first so no emails fire for a deleted record.
func (s *apiServer) deleteCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := candidateID(w, r)
	if !ok {
		return
	}
	link, err := s.store.GetCampaignLink(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if link != nil {
		if err := s.lemlist.PauseCampaign(r.Context(), link.CampaignID); err != nil {
			s.fail(w, eris.Wrap(err, "pause linked campaign"))
			return
		}
		zap.L().Info("paused linked campaign before delete",
			zap.Int64("candidate_id", id),
			zap.String("campaign_id", link.CampaignID))
	}
	if err := s.store.DeleteCandidate(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *apiServer) startIntake(ctx context.Context, workflowID string, in pipeline.SearchInput) error {
	_, err := s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.taskQueue,
	}, pipeline.IntakeWorkflowName, in)
	if err != nil {
		return eris.Wrap(err, "start intake workflow")
	}
	return nil
}

// fail maps store sentinels onto HTTP statuses.
func (s *apiServer) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrStatusConflict), errors.Is(err, model.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "candidate is not in the required state")
	case errors.Is(err, store.ErrCampaignExists):
		respondError(w, http.StatusConflict, "campaign already exists")
	default:
		zap.L().Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func candidateID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid candidate id")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// shutdown grace period for in-flight requests.
const shutdownTimeout = 10 * time.Second
