package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/certdossier/internal/certificate"
	"github.com/dharsanguruparan/certdossier/internal/docstore"
	"github.com/dharsanguruparan/certdossier/internal/model"
	pdfutil "github.com/dharsanguruparan/certdossier/internal/pdf"
	"github.com/dharsanguruparan/certdossier/internal/pdf/pdftest"
	"github.com/dharsanguruparan/certdossier/internal/storage"
)

// stubFetcher stores a one-page PDF per category unless the category is
// listed in fail.
type stubFetcher struct {
	docs *docstore.Dir
	fail map[certificate.Category]error

	mu    sync.Mutex
	calls []certificate.Category
}

func (f *stubFetcher) Fetch(_ context.Context, ep certificate.Endpoint, req certificate.Request) certificate.Result {
	f.mu.Lock()
	f.calls = append(f.calls, ep.Category)
	f.mu.Unlock()

	if err := f.fail[ep.Category]; err != nil {
		return certificate.Result{Category: ep.Category, Outcome: certificate.OutcomeError, Message: err.Error(), Err: err}
	}
	name := f.docs.NewName(req.SubjectID + "_" + ep.Category.Slug() + ".pdf")
	if err := f.docs.Write(name, pdftest.Document("certidao "+string(ep.Category))); err != nil {
		return certificate.Result{Category: ep.Category, Outcome: certificate.OutcomeError, Message: err.Error(), Err: err}
	}
	return certificate.Result{
		Category: ep.Category,
		Outcome:  certificate.OutcomeFinished,
		FileName: name,
		FileURL:  f.docs.URL(name),
	}
}

func (f *stubFetcher) called() []certificate.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]certificate.Category(nil), f.calls...)
}

type recordingArchiver struct {
	names []string
	err   error
}

func (a *recordingArchiver) Archive(_ context.Context, names ...string) error {
	a.names = append(a.names, names...)
	return a.err
}

type harness struct {
	store   *storage.MemoryStore
	docs    *docstore.Dir
	fetcher *stubFetcher
	owner   *model.Owner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	docs, err := docstore.New(t.TempDir(), "http://localhost:8080/files")
	require.NoError(t, err)
	h := &harness{
		store:   storage.NewMemoryStore(),
		docs:    docs,
		fetcher: &stubFetcher{docs: docs, fail: map[certificate.Category]error{}},
	}
	h.store.PutCase(&model.Case{ID: 42, Status: model.StatusInProgress})
	h.owner, err = h.store.PutOwner(&model.Owner{CaseID: 42, Name: "FULANO DE TAL", TaxID: "12345678900"})
	require.NoError(t, err)
	return h
}

func (h *harness) orchestrator(t *testing.T, mutate func(*Dependencies)) *Orchestrator {
	t.Helper()
	deps := Dependencies{
		Store:   h.store,
		Ledger:  h.store,
		Catalog: certificate.DefaultCatalog("http://upstream.test"),
		Fetcher: h.fetcher,
		Merger:  pdfutil.NewMerger(h.docs, nil),
		Links:   h.docs,
	}
	if mutate != nil {
		mutate(&deps)
	}
	o, err := New(deps)
	require.NoError(t, err)
	return o
}

func (h *harness) currentOwner(t *testing.T) *model.Owner {
	t.Helper()
	owner, err := h.store.GetFirstOwnerByCase(context.Background(), 42)
	require.NoError(t, err)
	return owner
}

func individual() Request {
	return Request{RunID: "run-1", CaseID: 42, SubjectID: "12345678900", MotherName: "MARIA", SubjectType: "CPF"}
}

func TestRunIndividualAllSucceed(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, nil)

	run, err := o.Run(context.Background(), individual())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.State)
	assert.Empty(t, run.Errors)
	require.Len(t, run.Outcomes, 5)

	docs := h.currentOwner(t).Documents
	slots := []model.Slot{model.SlotRevenue, model.SlotSpecialRecord, model.SlotCivilRecord, model.SlotCriminalRecord, model.SlotCourtElectoral}
	seen := map[string]bool{}
	for _, slot := range slots {
		url, ok := docs.Get(slot)
		require.True(t, ok, slot)
		seen[url] = true
	}
	assert.Len(t, seen, 5)

	c, err := h.store.GetCase(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, c.Status)
	require.NotNil(t, c.DossierLink)
	assert.False(t, seen[*c.DossierLink])
	assert.Equal(t, h.docs.URL(run.DossierName), *c.DossierLink)

	path, err := h.docs.Path(run.DossierName)
	require.NoError(t, err)
	pages, err := pdfutil.PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 5, pages)

	stored, err := h.store.LatestRun(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "run-1", stored.ID)
	assert.Equal(t, model.RunCompleted, stored.State)
	assert.NotNil(t, stored.FinishedAt)
}

func TestRunSharedElectoralSlot(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, func(d *Dependencies) { d.Electoral = certificate.ElectoralShared })

	run, err := o.Run(context.Background(), individual())
	require.NoError(t, err)

	var electoral string
	for _, out := range run.Outcomes {
		if out.Category == string(certificate.Electoral) {
			electoral = out.FileURL
		}
	}
	docs := h.currentOwner(t).Documents
	civil, ok := docs.Get(model.SlotCivilRecord)
	require.True(t, ok)
	assert.Equal(t, electoral, civil)
	_, ok = docs.Get(model.SlotCourtElectoral)
	assert.False(t, ok)
}

func TestRunCriminalFailureKeepsPreviousSlot(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.CommitCase(context.Background(), model.CaseCommit{
		CaseID:  42,
		OwnerID: h.owner.ID,
		Slots:   map[model.Slot]string{model.SlotCriminalRecord: "http://old/criminal.pdf"},
		Status:  model.StatusInProgress,
	}))
	h.fetcher.fail[certificate.Criminal] = &certificate.StatusError{Kind: certificate.ErrRemoteRequest, StatusCode: 502}
	o := h.orchestrator(t, func(d *Dependencies) { d.Electoral = certificate.ElectoralSeparate })

	run, err := o.Run(context.Background(), individual())
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.State)

	docs := h.currentOwner(t).Documents
	assert.Equal(t, "http://old/criminal.pdf", docs[model.SlotCriminalRecord])
	for _, slot := range []model.Slot{model.SlotRevenue, model.SlotSpecialRecord, model.SlotCivilRecord, model.SlotCourtElectoral} {
		_, ok := docs.Get(slot)
		assert.True(t, ok, slot)
	}

	c, err := h.store.GetCase(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, c.Status)
	path, err := h.docs.Path(run.DossierName)
	require.NoError(t, err)
	pages, err := pdfutil.PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 4, pages)

	var failed []model.RunOutcome
	for _, out := range run.Outcomes {
		if out.Status == string(certificate.OutcomeError) {
			failed = append(failed, out)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, string(certificate.Criminal), failed[0].Category)
}

func TestRunCompanySharesCivilSlotByDefault(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, nil)

	run, err := o.Run(context.Background(), Request{CaseID: 42, SubjectID: "11222333000181", SubjectType: "CNPJ"})
	require.NoError(t, err)

	urls := map[string]string{}
	for _, out := range run.Outcomes {
		urls[out.Category] = out.FileURL
	}
	docs := h.currentOwner(t).Documents
	assert.Equal(t, urls[string(certificate.Electoral)], docs[model.SlotCivilRecord])
	assert.Equal(t, urls[string(certificate.Criminal)], docs[model.SlotCriminalRecord])
	_, ok := docs.Get(model.SlotCourtElectoral)
	assert.False(t, ok)
}

func TestRunCompanyIssuesCourtCertificatesOnly(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, nil)

	run, err := o.Run(context.Background(), Request{CaseID: 42, SubjectID: "11222333000181", SubjectType: "cnpj"})
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.State)
	assert.ElementsMatch(t, []certificate.Category{certificate.Criminal, certificate.Civil, certificate.Electoral}, h.fetcher.called())

	docs := h.currentOwner(t).Documents
	_, ok := docs.Get(model.SlotRevenue)
	assert.False(t, ok)
	_, ok = docs.Get(model.SlotSpecialRecord)
	assert.False(t, ok)
}

func TestRunMissingCaseAborts(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, nil)

	req := individual()
	req.CaseID = 99
	run, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RunAborted, run.State)
	assert.NotEmpty(t, run.Errors)
	assert.Empty(t, h.fetcher.called())
}

func TestRunUnknownSubjectTypeSkips(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, nil)

	req := individual()
	req.SubjectType = "RG"
	run, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RunSkipped, run.State)
	assert.Empty(t, h.fetcher.called())

	c, err := h.store.GetCase(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, c.Status)
	assert.Nil(t, c.DossierLink)
	assert.Empty(t, h.currentOwner(t).Documents)
}

func TestRunNoSuccessStillCompletes(t *testing.T) {
	h := newHarness(t)
	for _, cat := range []certificate.Category{certificate.Criminal, certificate.Civil, certificate.Electoral} {
		h.fetcher.fail[cat] = certificate.ErrRemoteLogic
	}
	o := h.orchestrator(t, nil)

	run, err := o.Run(context.Background(), Request{CaseID: 42, SubjectID: "11222333000181", SubjectType: "CNPJ"})
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.State)
	assert.Empty(t, run.DossierName)

	c, err := h.store.GetCase(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, c.Status)
	assert.Nil(t, c.DossierLink)
}

func TestRunCaseWithoutOwner(t *testing.T) {
	h := newHarness(t)
	h.store.PutCase(&model.Case{ID: 7, Status: model.StatusPending})
	o := h.orchestrator(t, nil)

	run, err := o.Run(context.Background(), Request{CaseID: 7, SubjectID: "11222333000181", SubjectType: "CNPJ"})
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.State)
	assert.Contains(t, run.Errors, "case has no owner")

	c, err := h.store.GetCase(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, c.Status)
	assert.NotNil(t, c.DossierLink)
}

func TestRunArchivesStoredFiles(t *testing.T) {
	h := newHarness(t)
	archiver := &recordingArchiver{err: errors.New("bucket unavailable")}
	o := h.orchestrator(t, func(d *Dependencies) { d.Archiver = archiver })

	run, err := o.Run(context.Background(), Request{CaseID: 42, SubjectID: "11222333000181", SubjectType: "CNPJ"})
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.State)
	assert.Len(t, archiver.names, 4)
	assert.Contains(t, archiver.names, run.DossierName)
	assert.Contains(t, run.Errors, "bucket unavailable")
}

type failingCommitStore struct {
	*storage.MemoryStore
}

func (failingCommitStore) CommitCase(context.Context, model.CaseCommit) error {
	return errors.New("connection reset")
}

func TestRunCommitFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, func(d *Dependencies) { d.Store = failingCommitStore{h.store} })

	run, err := o.Run(context.Background(), individual())
	require.Error(t, err)
	assert.Equal(t, model.RunAborted, run.State)

	owner := h.currentOwner(t)
	assert.Empty(t, owner.Documents)
}

type countingObserver struct {
	started  int
	finished []string
}

func (c *countingObserver) RunStarted() { c.started++ }

func (c *countingObserver) RunFinished(state string, _ time.Duration) {
	c.finished = append(c.finished, state)
}

func TestRunReportsToObserver(t *testing.T) {
	h := newHarness(t)
	obs := &countingObserver{}
	o := h.orchestrator(t, func(d *Dependencies) { d.Observer = obs })

	_, err := o.Run(context.Background(), individual())
	require.NoError(t, err)
	assert.Equal(t, 1, obs.started)
	assert.Equal(t, []string{string(model.RunCompleted)}, obs.finished)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestFetchAllKeepsCatalogOrder(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, func(d *Dependencies) { d.Concurrency = 5 })

	run, err := o.Run(context.Background(), individual())
	require.NoError(t, err)
	var got []string
	for _, out := range run.Outcomes {
		got = append(got, out.Category)
		assert.Equal(t, filepath.Base(out.FileName), out.FileName)
	}
	assert.Equal(t, []string{"RECEITA", "ESPECIAL", "CIVEL", "CRIMINAL", "ELEITORAL"}, got)
}
