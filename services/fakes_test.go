package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deposit-bot/models"
	"deposit-bot/providers/semantic"
)

type trackerCall struct {
	Op     string
	Number int
	Arg    string
}

type fakeTracker struct {
	issues  map[string][]models.Submission // key: state/label
	users   map[string]int64
	calls   []trackerCall
	failOn  string
	userErr error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{issues: map[string][]models.Submission{}, users: map[string]int64{}}
}

func (f *fakeTracker) fail(op string) error {
	if f.failOn == op {
		return fmt.Errorf("%s: %w", op, errors.New("tracker unavailable"))
	}
	return nil
}

func (f *fakeTracker) ListIssues(_ context.Context, state, label string) ([]models.Submission, error) {
	if err := f.fail("list"); err != nil {
		return nil, err
	}
	return f.issues[state+"/"+label], nil
}

func (f *fakeTracker) GetUserID(_ context.Context, login string) (int64, bool, error) {
	if f.userErr != nil {
		return 0, false, f.userErr
	}
	id, ok := f.users[login]
	return id, ok, nil
}

func (f *fakeTracker) AddLabels(_ context.Context, n int, labels ...string) error {
	f.calls = append(f.calls, trackerCall{"label", n, strings.Join(labels, ",")})
	return f.fail("label")
}

func (f *fakeTracker) RemoveLabel(_ context.Context, n int, label string) error {
	f.calls = append(f.calls, trackerCall{"unlabel", n, label})
	return f.fail("unlabel")
}

func (f *fakeTracker) AddComment(_ context.Context, n int, body string) error {
	f.calls = append(f.calls, trackerCall{"comment", n, body})
	return f.fail("comment")
}

func (f *fakeTracker) CloseIssue(_ context.Context, n int) error {
	f.calls = append(f.calls, trackerCall{"close", n, ""})
	return f.fail("close")
}

func (f *fakeTracker) callsFor(n int) []trackerCall {
	var out []trackerCall
	for _, c := range f.calls {
		if c.Number == n {
			out = append(out, c)
		}
	}
	return out
}

// fakeTier ist ein Langzeitarchiv im Speicher mit einstellbarem Fehler.
type fakeTier struct {
	failStep    string
	failAfter   int
	uploads     int
	collections int
	published   []string
	files       map[string][]byte
	metadata    []map[string]any
}

func newFakeTier() *fakeTier {
	return &fakeTier{files: map[string][]byte{}}
}

func (f *fakeTier) Name() string { return "fake" }

func (f *fakeTier) CreateCollection(_ context.Context, md map[string]any) (*models.Collection, error) {
	if f.failStep == "create" {
		return nil, errors.New("create failed")
	}
	f.collections++
	f.metadata = append(f.metadata, md)
	id := fmt.Sprintf("%d", f.collections)
	return &models.Collection{ID: id, UploadURL: "https://cold.example/bucket/" + id}, nil
}

func (f *fakeTier) Upload(_ context.Context, col *models.Collection, name string, data []byte) error {
	if f.failStep == "upload" && f.uploads >= f.failAfter {
		return errors.New("upload failed")
	}
	f.uploads++
	f.files[col.ID+"/"+name] = data
	return nil
}

func (f *fakeTier) Publish(_ context.Context, col *models.Collection) (*models.Publication, error) {
	if f.failStep == "publish" {
		return nil, errors.New("publish failed")
	}
	f.published = append(f.published, col.ID)
	return &models.Publication{PersistentID: "10.5281/zenodo." + col.ID}, nil
}

func (f *fakeTier) FileURL(col *models.Collection, _ *models.Publication, name string) string {
	return "https://cold.example/record/" + col.ID + "/files/" + name
}

// fakeSemantic gibt ein festes Ergebnis zurück und legt Berichte im Ausgabeverzeichnis ab.
type fakeSemantic struct {
	metaErrors bool
	citsErrors bool
	err        error
	calls      int
}

func (f *fakeSemantic) Validate(_ context.Context, in semantic.Input) (semantic.Result, error) {
	f.calls++
	if f.err != nil {
		return semantic.Result{}, f.err
	}
	return writeFakeOutput(in.OutputDir, f.metaErrors, f.citsErrors)
}

type fakeRegistry struct {
	names []string
	urls  []string
	err   error
}

func (f *fakeRegistry) Register(_ context.Context, name, liveURL string) error {
	f.names = append(f.names, name)
	f.urls = append(f.urls, liveURL)
	return f.err
}

type memSink struct {
	batches []models.Batch
	err     error
}

func (m *memSink) WriteBatch(b models.Batch) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, b)
	return nil
}

type fakeDepositor struct {
	items [][]models.DepositItem
	err   error
}

func (f *fakeDepositor) Deposit(_ context.Context, items []models.DepositItem) (string, error) {
	f.items = append(f.items, items)
	if f.err != nil {
		return "", f.err
	}
	return "https://doi.org/10.5281/zenodo.1", nil
}

type allowAll map[int64]bool

func (a allowAll) IsAllowed(id int64) bool { return a[id] }

const metadataHeader = `"id","title","author","pub_date","venue","volume","issue","page","type","publisher","editor"`
const citationsHeader = `"citing_id","citing_publication_date","cited_id","cited_publication_date"`

// depositBody baut einen Body mit n Metadatenzeilen und m Zitationen.
func depositBody(n, m int) string {
	var b strings.Builder
	b.WriteString(metadataHeader + "\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "\"doi:10.1007/s42835-022-%05d\",\"Title %d\",\"Kärner, Tobias\",\"2022\",\"Journal [issn:1975-0102]\",\"17\",\"4\",\"%d-%d\",\"journal article\",\"Springer\",\"\"\n", i, i, i*10, i*10+9)
	}
	b.WriteString(models.Separator + "\n")
	b.WriteString(citationsHeader + "\n")
	for i := 0; i < m; i++ {
		fmt.Fprintf(&b, "\"doi:10.1007/s42835-022-01029-y\",\"2022\",\"doi:10.1007/s42835-022-%05d\",\"\"\n", i)
	}
	return b.String()
}
