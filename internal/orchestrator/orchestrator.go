// Package orchestrator runs the certificate pipeline for one case: fetch every
// catalog category, merge the documents into a dossier and commit the owner
// slots together with the case status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/certdossier/internal/certificate"
	"github.com/dharsanguruparan/certdossier/internal/model"
)

// Store is the case and owner persistence the pipeline needs.
type Store interface {
	GetCase(ctx context.Context, id int64) (*model.Case, error)
	GetFirstOwnerByCase(ctx context.Context, caseID int64) (*model.Owner, error)
	CommitCase(ctx context.Context, commit model.CaseCommit) error
}

// Ledger records run progress.
type Ledger interface {
	SaveRun(ctx context.Context, run *model.Run) error
}

// Fetcher issues one certificate. It reports failures in the result.
type Fetcher interface {
	Fetch(ctx context.Context, ep certificate.Endpoint, req certificate.Request) certificate.Result
}

// Merger builds the dossier from stored document names.
type Merger interface {
	Merge(ctx context.Context, names []string) (string, error)
}

// Linker turns a stored file name into its public URL.
type Linker interface {
	URL(name string) string
}

// Archiver copies stored files somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, names ...string) error
}

// Observer is told when runs start and end.
type Observer interface {
	RunStarted()
	RunFinished(state string, elapsed time.Duration)
}

// Request starts one run. It is also the background task payload.
type Request struct {
	RunID       string `json:"run_id"`
	CaseID      int64  `json:"case_id"`
	SubjectID   string `json:"subject_id"`
	MotherName  string `json:"mother_name"`
	SubjectType string `json:"subject_type"`
}

// Dependencies wires an Orchestrator. Archiver and Observer are optional.
type Dependencies struct {
	Store       Store
	Ledger      Ledger
	Catalog     *certificate.Catalog
	Fetcher     Fetcher
	Merger      Merger
	Links       Linker
	Archiver    Archiver
	Observer    Observer
	Electoral   certificate.ElectoralMode
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Orchestrator executes pipeline runs. It is safe for concurrent use by runs
// of different cases.
type Orchestrator struct {
	deps Dependencies
}

// New validates deps and fills defaults.
func New(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	case deps.Ledger == nil:
		return nil, errors.New("orchestrator: ledger is required")
	case deps.Catalog == nil:
		return nil, errors.New("orchestrator: catalog is required")
	case deps.Fetcher == nil:
		return nil, errors.New("orchestrator: fetcher is required")
	case deps.Merger == nil:
		return nil, errors.New("orchestrator: merger is required")
	case deps.Links == nil:
		return nil, errors.New("orchestrator: linker is required")
	}
	if deps.Electoral == "" {
		deps.Electoral = certificate.ElectoralAuto
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 4
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{deps: deps}, nil
}

// NewRun is the ledger entry a trigger records before scheduling req.
func NewRun(req Request, now time.Time) *model.Run {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	return &model.Run{
		ID:          req.RunID,
		CaseID:      req.CaseID,
		SubjectType: req.SubjectType,
		State:       model.RunScheduled,
		Outcomes:    []model.RunOutcome{},
		Errors:      []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Run executes the pipeline for req and returns the final ledger entry. A
// missing case or an unknown subject type ends the run without error; only
// infrastructure failures while loading or committing the case are returned.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*model.Run, error) {
	start := o.deps.Now()
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	run := NewRun(req, start)
	logger := o.deps.Logger.With("run_id", run.ID, "case_id", req.CaseID, "subject_type", req.SubjectType)

	if o.deps.Observer != nil {
		o.deps.Observer.RunStarted()
		defer func() {
			o.deps.Observer.RunFinished(string(run.State), o.deps.Now().Sub(start))
		}()
	}

	o.advance(ctx, logger, run, model.RunStarted)
	c, err := o.deps.Store.GetCase(ctx, req.CaseID)
	if err != nil {
		run.Errors = append(run.Errors, err.Error())
		o.finish(ctx, logger, run, model.RunAborted)
		if errors.Is(err, model.ErrNotFound) {
			logger.WarnContext(ctx, "case not found, run aborted")
			return run, nil
		}
		return run, fmt.Errorf("load case %d: %w", req.CaseID, err)
	}

	endpoints := o.deps.Catalog.EndpointsFor(req.SubjectType)
	if len(endpoints) == 0 {
		logger.InfoContext(ctx, "no certificates for subject type, run skipped")
		o.finish(ctx, logger, run, model.RunSkipped)
		return run, nil
	}

	results := o.fetchAll(ctx, endpoints, certificate.Request{SubjectID: req.SubjectID, MotherName: req.MotherName})
	run.Outcomes = outcomes(results)
	o.advance(ctx, logger, run, model.RunResultsCollected)

	var stored []string
	for _, res := range results {
		if res.OK() {
			stored = append(stored, res.FileName)
		}
	}
	var link *string
	dossier, err := o.deps.Merger.Merge(ctx, stored)
	switch {
	case err != nil:
		logger.ErrorContext(ctx, "dossier merge failed", "error", err)
		run.Errors = append(run.Errors, err.Error())
	case dossier != "":
		run.DossierName = dossier
		url := o.deps.Links.URL(dossier)
		link = &url
	}
	o.advance(ctx, logger, run, model.RunMerged)

	commit := model.CaseCommit{
		CaseID:      c.ID,
		Slots:       map[model.Slot]string{},
		Status:      c.Status.Advance(model.StatusCompleted),
		DossierLink: link,
	}
	owner, err := o.deps.Store.GetFirstOwnerByCase(ctx, c.ID)
	switch {
	case err == nil:
		commit.OwnerID = owner.ID
		commit.Slots = o.slots(results, o.deps.Electoral.Resolve(categories(endpoints)))
	case errors.Is(err, model.ErrNotFound):
		logger.WarnContext(ctx, "case has no owner, document slots left untouched")
		run.Errors = append(run.Errors, "case has no owner")
	default:
		run.Errors = append(run.Errors, err.Error())
		o.finish(ctx, logger, run, model.RunAborted)
		return run, fmt.Errorf("load owner of case %d: %w", c.ID, err)
	}

	if err := o.deps.Store.CommitCase(ctx, commit); err != nil {
		run.Errors = append(run.Errors, err.Error())
		o.finish(ctx, logger, run, model.RunAborted)
		return run, fmt.Errorf("commit case %d: %w", c.ID, err)
	}

	if o.deps.Archiver != nil && len(stored) > 0 {
		names := stored
		if dossier != "" {
			names = append(append([]string(nil), stored...), dossier)
		}
		if err := o.deps.Archiver.Archive(ctx, names...); err != nil {
			logger.WarnContext(ctx, "archive failed", "error", err)
			run.Errors = append(run.Errors, err.Error())
		}
	}

	o.finish(ctx, logger, run, model.RunCompleted)
	logger.InfoContext(ctx, "certificate run completed",
		"fetched", len(stored),
		"requested", len(results),
		"dossier", dossier,
	)
	return run, nil
}

// fetchAll issues every endpoint with bounded concurrency. Results keep the
// catalog order whatever the completion order.
func (o *Orchestrator) fetchAll(ctx context.Context, endpoints []certificate.Endpoint, req certificate.Request) []certificate.Result {
	results := make([]certificate.Result, len(endpoints))
	var g errgroup.Group
	g.SetLimit(o.deps.Concurrency)
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = o.deps.Fetcher.Fetch(ctx, ep, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// slots maps successful results onto owner slots. When two categories share
// a slot the later one in catalog order wins.
func (o *Orchestrator) slots(results []certificate.Result, mode certificate.ElectoralMode) map[model.Slot]string {
	out := make(map[model.Slot]string)
	for _, res := range results {
		if !res.OK() {
			continue
		}
		slot, ok := mode.SlotFor(res.Category)
		if !ok {
			continue
		}
		out[slot] = res.FileURL
	}
	return out
}

func (o *Orchestrator) advance(ctx context.Context, logger *slog.Logger, run *model.Run, state model.RunState) {
	run.State = state
	run.UpdatedAt = o.deps.Now()
	if err := o.deps.Ledger.SaveRun(ctx, run); err != nil {
		logger.ErrorContext(ctx, "save run", "state", state, "error", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, run *model.Run, state model.RunState) {
	now := o.deps.Now()
	run.FinishedAt = &now
	o.advance(ctx, logger, run, state)
}

func categories(endpoints []certificate.Endpoint) []certificate.Category {
	out := make([]certificate.Category, len(endpoints))
	for i, ep := range endpoints {
		out[i] = ep.Category
	}
	return out
}

func outcomes(results []certificate.Result) []model.RunOutcome {
	out := make([]model.RunOutcome, 0, len(results))
	for _, res := range results {
		out = append(out, model.RunOutcome{
			Category:   string(res.Category),
			Status:     string(res.Outcome),
			FileName:   res.FileName,
			FileURL:    res.FileURL,
			Pendency:   res.Pendency,
			HolderName: res.HolderName,
			Message:    res.Message,
		})
	}
	return out
}
