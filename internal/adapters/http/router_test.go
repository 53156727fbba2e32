package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/kirillkom/adtrack-console/internal/config"
	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

type batchServiceFake struct {
	mu       sync.Mutex
	started  []domain.StagedInput
	startErr error
	snapshot domain.BatchSnapshot
	resets   int
	updates  chan domain.BatchSnapshot
}

func (f *batchServiceFake) Start(_ context.Context, input domain.StagedInput) (*domain.BatchSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, input)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if len(input.RequestUnits()) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch", errors.New("nothing staged"))
	}
	return &domain.BatchSnapshot{
		BatchID:  "batch-1",
		Model:    input.Model,
		State:    domain.BatchSubmitting,
		Loading:  true,
		Progress: domain.Progress{Total: len(input.RequestUnits())},
		Results:  []domain.Result{},
	}, nil
}

func (f *batchServiceFake) Submit(ctx context.Context, input domain.StagedInput) (*domain.BatchSnapshot, error) {
	return f.Start(ctx, input)
}

func (f *batchServiceFake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.snapshot = domain.BatchSnapshot{State: domain.BatchIdle}
}

func (f *batchServiceFake) Snapshot() domain.BatchSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *batchServiceFake) Result(index int) (domain.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.snapshot.Results) {
		return domain.Result{}, domain.WrapError(domain.ErrResultNotFound, "get result", errors.New("out of range"))
	}
	return f.snapshot.Results[index], nil
}

func (f *batchServiceFake) Subscribe() (<-chan domain.BatchSnapshot, func()) {
	if f.updates == nil {
		f.updates = make(chan domain.BatchSnapshot, 4)
	}
	f.updates <- f.Snapshot()
	return f.updates, func() {}
}

func (f *batchServiceFake) lastStarted() domain.StagedInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[len(f.started)-1]
}

type catalogFake struct {
	models []domain.ModelDescriptor
	loads  int
	loaded []domain.ModelDescriptor
}

func (f *catalogFake) Load(context.Context) []domain.ModelDescriptor {
	f.loads++
	if len(f.models) == 0 {
		f.models = f.loaded
	}
	return f.models
}

func (f *catalogFake) Models() []domain.ModelDescriptor { return f.models }

func (f *catalogFake) Default() (domain.ModelDescriptor, bool) {
	if len(f.models) == 0 {
		return domain.ModelDescriptor{}, false
	}
	return f.models[0], true
}

func (f *catalogFake) Lookup(name string) (domain.ModelDescriptor, bool) {
	for _, m := range f.models {
		if m.Name == name {
			return m, true
		}
	}
	return domain.ModelDescriptor{}, false
}

type settingsFake struct {
	flags   domain.FeatureFlags
	err     error
	toggled []string
}

func (f *settingsFake) Get(context.Context) (domain.FeatureFlags, error) {
	return f.flags, f.err
}

func (f *settingsFake) Toggle(_ context.Context, key string) (domain.FeatureFlags, error) {
	f.toggled = append(f.toggled, key)
	if key != domain.FlagMultipleFiles {
		return domain.FeatureFlags{}, domain.WrapError(domain.ErrInvalidInput, "toggle setting", errors.New("unknown key"))
	}
	f.flags.MultipleFiles = !f.flags.MultipleFiles
	return f.flags, nil
}

func (f *settingsFake) Update(_ context.Context, key string, value any) (domain.FeatureFlags, error) {
	s, ok := value.(string)
	if key != domain.FlagAccuracyValue || !ok {
		return domain.FeatureFlags{}, domain.WrapError(domain.ErrInvalidInput, "update setting", errors.New("bad value"))
	}
	f.flags.AccuracyValue = s
	return f.flags, nil
}

type testDeps struct {
	batch    *batchServiceFake
	catalog  *catalogFake
	settings *settingsFake
}

func newTestDeps() *testDeps {
	return &testDeps{
		batch:    &batchServiceFake{snapshot: domain.BatchSnapshot{State: domain.BatchIdle}},
		catalog:  &catalogFake{models: []domain.ModelDescriptor{{Name: "hybrid_v1"}, {Name: "multimodal_v3", SupportsAudio: true}}},
		settings: &settingsFake{flags: domain.DefaultFeatureFlags()},
	}
}

func (d *testDeps) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, d.batch, d.catalog, d.settings, nil).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestDeps().handler(cfg)
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}
