package pipeline_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"subguard/internal/config"
	"subguard/internal/ensemble"
	"subguard/internal/pipeline"
	"subguard/internal/services"
	"subguard/internal/status"
	"subguard/internal/testsupport"
)

type fakeTranscoder struct {
	calls   atomic.Int32
	fail    error
	block   bool
	partial bool

	mu      sync.Mutex
	active  int
	maxSeen int
	hold    time.Duration
}

func (f *fakeTranscoder) Name() string      { return "fake" }
func (f *fakeTranscoder) Extension() string { return ".mp4" }

func (f *fakeTranscoder) Transcode(ctx context.Context, src, dst string) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.partial || f.block {
		if err := os.WriteFile(dst, []byte("partial"), 0o644); err != nil {
			return err
		}
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.fail != nil {
		return f.fail
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

type countingJudge struct {
	calls   atomic.Int32
	verdict pipeline.Verdict
	err     error
	block   bool
}

func (j *countingJudge) Judge(ctx context.Context, _ string) (pipeline.Verdict, error) {
	j.calls.Add(1)
	if j.block {
		<-ctx.Done()
		return pipeline.Verdict{}, ctx.Err()
	}
	return j.verdict, j.err
}

type failingStore struct {
	pipeline.Store
	err error
}

func (s failingStore) AddApproved(context.Context, status.Approval) (status.Record, error) {
	return status.Record{}, s.err
}

type fixture struct {
	cfg        *config.Config
	store      *status.Store
	transcoder *fakeTranscoder
	judge      *countingJudge
	pipeline   *pipeline.Pipeline
	source     string
}

func newFixture(t *testing.T, verdict pipeline.Verdict) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	f := &fixture{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		transcoder: &fakeTranscoder{},
		judge:      &countingJudge{verdict: verdict},
		source:     filepath.Join(testsupport.BaseDir(cfg), "raw", "clip.mov"),
	}
	testsupport.WriteFile(t, f.source, 2048)
	f.pipeline = f.build(t, pipeline.OptionsFromConfig(cfg), f.store)
	return f
}

func (f *fixture) build(t *testing.T, opts pipeline.Options, store pipeline.Store) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(opts, pipeline.Deps{
		Store:      store,
		Transcoder: f.transcoder,
		Judge:      f.judge,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return p
}

func clean() pipeline.Verdict {
	return pipeline.Verdict{Confidence: 0.9, Reason: "no text detected", Source: "classifier:rule"}
}

func subtitled() pipeline.Verdict {
	return pipeline.Verdict{HasSubtitles: true, Confidence: 0.8, Reason: "1 subtitle track", Source: "classifier:rule"}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewRequiresDirectories(t *testing.T) {
	f := newFixture(t, clean())
	opts := pipeline.OptionsFromConfig(f.cfg)
	opts.ValidateDir = "  "

	_, err := pipeline.New(opts, pipeline.Deps{Store: f.store, Transcoder: f.transcoder, Judge: f.judge})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "paths.validate_dir") {
		t.Fatalf("error should name the missing key, got %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	f := newFixture(t, clean())
	_, err := pipeline.New(pipeline.OptionsFromConfig(f.cfg), pipeline.Deps{Store: f.store})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "transcoder") || !strings.Contains(err.Error(), "judge") {
		t.Fatalf("error should list missing deps, got %v", err)
	}
}

func TestProcessApprovesCleanClip(t *testing.T) {
	f := newFixture(t, clean())
	ctx := context.Background()

	out, err := f.pipeline.Process(ctx, pipeline.Request{VideoID: "clip-1", SourcePath: f.source, Title: "Clip"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.State != pipeline.StateApproved || out.Cached || out.HasSubtitles {
		t.Fatalf("unexpected outcome %+v", out)
	}
	want := filepath.Join(f.cfg.Paths.ApprovedDir, "clip-1.mp4")
	if out.Path != want {
		t.Fatalf("approved path = %q, want %q", out.Path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("approved file missing: %v", err)
	}
	if _, err := os.Stat(f.source); err != nil {
		t.Fatalf("raw source must be kept: %v", err)
	}
	if left := dirEntries(t, f.cfg.Paths.TransformDir); len(left) != 0 {
		t.Fatalf("transform dir not empty: %v", left)
	}
	if left := dirEntries(t, f.cfg.Paths.ValidateDir); len(left) != 0 {
		t.Fatalf("validate dir not empty: %v", left)
	}

	rec, err := f.store.Lookup(ctx, "clip-1")
	if err != nil || rec == nil {
		t.Fatalf("Lookup = %v, %v", rec, err)
	}
	if rec.Verdict != status.VerdictApproved || rec.FilePath != want || rec.Title != "Clip" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Metadata["job_id"] != out.JobID {
		t.Fatalf("record job id = %v, want %s", rec.Metadata["job_id"], out.JobID)
	}
}

func TestProcessRejectsSubtitledClip(t *testing.T) {
	f := newFixture(t, subtitled())
	ctx := context.Background()

	out, err := f.pipeline.Process(ctx, pipeline.Request{VideoID: "clip-2", SourcePath: f.source})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.State != pipeline.StateRejected || !out.HasSubtitles || out.Path != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	for _, dir := range []string{f.cfg.Paths.TransformDir, f.cfg.Paths.ValidateDir, f.cfg.Paths.ApprovedDir} {
		if left := dirEntries(t, dir); len(left) != 0 {
			t.Fatalf("%s not empty: %v", dir, left)
		}
	}
	rejected, err := f.store.IsRejected(ctx, "clip-2")
	if err != nil || !rejected {
		t.Fatalf("IsRejected = %v, %v", rejected, err)
	}
	rec, _ := f.store.Lookup(ctx, "clip-2")
	if rec.Reason != "1 subtitle track" || rec.Confidence != 0.8 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestProcessServesStoredVerdictWithoutDetection(t *testing.T) {
	f := newFixture(t, clean())
	ctx := context.Background()

	if _, err := f.store.AddApproved(ctx, status.Approval{VideoID: "clip-3", Confidence: 0.9}); err != nil {
		t.Fatalf("AddApproved: %v", err)
	}
	if _, err := f.store.AddRejected(ctx, status.Rejection{VideoID: "clip-3", Reason: "subtitles", Confidence: 0.7}); err != nil {
		t.Fatalf("AddRejected: %v", err)
	}

	out, err := f.pipeline.Process(ctx, pipeline.Request{VideoID: "clip-3", SourcePath: f.source})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Cached || out.State != pipeline.StateRejected || !out.HasSubtitles || out.Reason != "subtitles" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if n := f.judge.calls.Load(); n != 0 {
		t.Fatalf("judge called %d times for a stored verdict", n)
	}
	if n := f.transcoder.calls.Load(); n != 0 {
		t.Fatalf("transcoder called %d times for a stored verdict", n)
	}
}

func TestProcessTwiceJudgesOnce(t *testing.T) {
	f := newFixture(t, clean())
	ctx := context.Background()
	req := pipeline.Request{VideoID: "clip-4", SourcePath: f.source}

	first, err := f.pipeline.Process(ctx, req)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	second, err := f.pipeline.Process(ctx, req)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if !second.Cached || second.State != first.State || second.Confidence != first.Confidence {
		t.Fatalf("second outcome %+v does not match first %+v", second, first)
	}
	if n := f.judge.calls.Load(); n != 1 {
		t.Fatalf("judge called %d times, want 1", n)
	}
}

func TestTransformFailureRemovesPartialOutput(t *testing.T) {
	f := newFixture(t, clean())
	f.transcoder.partial = true
	f.transcoder.fail = errors.New("exit status 1")

	out, err := f.pipeline.Process(context.Background(), pipeline.Request{VideoID: "clip-5", SourcePath: f.source})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatalf("transcode failure should be retryable")
	}
	if out.State != pipeline.StateFailed {
		t.Fatalf("state = %s, want failed", out.State)
	}
	if left := dirEntries(t, f.cfg.Paths.TransformDir); len(left) != 0 {
		t.Fatalf("partial output left behind: %v", left)
	}
	if rec, _ := f.store.Lookup(context.Background(), "clip-5"); rec != nil {
		t.Fatalf("failed clip must not be recorded, got %+v", rec)
	}
}

func TestTransformTimeout(t *testing.T) {
	f := newFixture(t, clean())
	f.transcoder.block = true
	opts := pipeline.OptionsFromConfig(f.cfg)
	opts.TranscodeTimeout = 50 * time.Millisecond
	p := f.build(t, opts, f.store)

	_, err := p.Transform(context.Background(), "clip-6", f.source)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if left := dirEntries(t, f.cfg.Paths.TransformDir); len(left) != 0 {
		t.Fatalf("partial output left behind: %v", left)
	}
}

func TestTransformMissingSource(t *testing.T) {
	f := newFixture(t, clean())
	_, err := f.pipeline.Transform(context.Background(), "clip-7", filepath.Join(t.TempDir(), "gone.mov"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if n := f.transcoder.calls.Load(); n != 0 {
		t.Fatalf("transcoder should not run, ran %d times", n)
	}
}

func TestTransformRespectsConcurrencyCap(t *testing.T) {
	f := newFixture(t, clean())
	f.transcoder.hold = 20 * time.Millisecond
	opts := pipeline.OptionsFromConfig(f.cfg)
	opts.MaxConcurrentTranscodes = 2
	p := f.build(t, opts, f.store)

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := range 6 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "cap-" + string(rune('a'+i))
			if _, err := p.Transform(context.Background(), id, f.source); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Transform: %v", err)
	}
	if f.transcoder.maxSeen > 2 {
		t.Fatalf("saw %d concurrent transcodes, cap is 2", f.transcoder.maxSeen)
	}
}

func TestMoveToValidationTagsFileName(t *testing.T) {
	f := newFixture(t, clean())
	src := filepath.Join(f.cfg.Paths.TransformDir, "clip-8.mp4")
	testsupport.WriteFile(t, src, 64)

	dst, err := f.pipeline.MoveToValidation(context.Background(), "clip-8", src, "job123")
	if err != nil {
		t.Fatalf("MoveToValidation: %v", err)
	}
	if filepath.Dir(dst) != f.cfg.Paths.ValidateDir {
		t.Fatalf("moved to %s, want validate dir", dst)
	}
	marker, ok := pipeline.ParseMarker(dst)
	if !ok || marker.JobID != "job123" || marker.VideoID != "clip-8" || marker.Ext != ".mp4" {
		t.Fatalf("ParseMarker(%s) = %+v, %v", dst, marker, ok)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be gone, stat err %v", err)
	}
}

func TestMoveToValidationMissingSource(t *testing.T) {
	f := newFixture(t, clean())
	_, err := f.pipeline.MoveToValidation(context.Background(), "clip-9",
		filepath.Join(f.cfg.Paths.TransformDir, "missing.mp4"), "job1")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApproveRestoresFileWhenStoreFails(t *testing.T) {
	f := newFixture(t, clean())
	p := f.build(t, pipeline.OptionsFromConfig(f.cfg), failingStore{Store: f.store, err: errors.New("database is locked")})
	path := filepath.Join(f.cfg.Paths.ValidateDir, pipeline.MarkerName("job1", "clip-10", ".mp4"))
	testsupport.WriteFile(t, path, 64)

	_, err := p.Approve(context.Background(), "clip-10", path, pipeline.Decision{Confidence: 0.9})
	if !errors.Is(err, services.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should be back in validation: %v", err)
	}
	if left := dirEntries(t, f.cfg.Paths.ApprovedDir); len(left) != 0 {
		t.Fatalf("approved dir should be empty: %v", left)
	}
}

func TestJudgeFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t, clean())
	f.judge.err = errors.New("engine crashed")

	out, err := f.pipeline.Process(context.Background(), pipeline.Request{VideoID: "clip-11", SourcePath: f.source})
	if !errors.Is(err, services.ErrDetector) {
		t.Fatalf("expected detector error, got %v", err)
	}
	if out.State != pipeline.StateFailed {
		t.Fatalf("state = %s, want failed", out.State)
	}
	if left := dirEntries(t, f.cfg.Paths.ValidateDir); len(left) != 0 {
		t.Fatalf("validation file left behind: %v", left)
	}
	if rec, _ := f.store.Lookup(context.Background(), "clip-11"); rec != nil {
		t.Fatalf("failed clip must not be recorded")
	}
}

func TestNaNConfidenceIsRejected(t *testing.T) {
	f := newFixture(t, pipeline.Verdict{Confidence: math.NaN(), Reason: "broken", Source: "classifier:rule"})

	out, err := f.pipeline.Process(context.Background(), pipeline.Request{VideoID: "clip-12", SourcePath: f.source})
	if !errors.Is(err, services.ErrDetector) {
		t.Fatalf("expected detector error, got %v", err)
	}
	if out.State != pipeline.StateFailed {
		t.Fatalf("state = %s, want failed", out.State)
	}
	if rec, _ := f.store.Lookup(context.Background(), "clip-12"); rec != nil {
		t.Fatalf("clip with invalid confidence must not be recorded")
	}
}

func TestCancelledProcessLeavesNoRecord(t *testing.T) {
	f := newFixture(t, clean())
	f.judge.block = true
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for f.judge.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := f.pipeline.Process(ctx, pipeline.Request{VideoID: "clip-12", SourcePath: f.source})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if rec, _ := f.store.Lookup(context.Background(), "clip-12"); rec != nil {
		t.Fatalf("cancelled clip must not be recorded")
	}
	for _, dir := range []string{f.cfg.Paths.TransformDir, f.cfg.Paths.ValidateDir} {
		if left := dirEntries(t, dir); len(left) != 0 {
			t.Fatalf("%s not empty after cancel: %v", dir, left)
		}
	}
}

func TestCleanupToleratesMissingDirectories(t *testing.T) {
	f := newFixture(t, clean())
	res := f.pipeline.CleanupOrphanedFiles(context.Background(), time.Hour)
	if len(res.Errors) != 0 || len(res.Removed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCleanupRemovesAgedFiles(t *testing.T) {
	f := newFixture(t, clean())
	oldTransform := filepath.Join(f.cfg.Paths.TransformDir, ".clip-a.123.partial.mp4")
	oldValidate := filepath.Join(f.cfg.Paths.ValidateDir, pipeline.MarkerName("job9", "clip-b", ".mp4"))
	fresh := filepath.Join(f.cfg.Paths.ValidateDir, pipeline.MarkerName("job10", "clip-c", ".mp4"))
	testsupport.WriteAged(t, oldTransform, 3*time.Hour)
	testsupport.WriteAged(t, oldValidate, 3*time.Hour)
	testsupport.WriteFile(t, fresh, 16)

	res := f.pipeline.CleanupOrphanedFiles(context.Background(), time.Hour)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors %+v", res.Errors)
	}
	if len(res.Removed) != 2 {
		t.Fatalf("removed %v, want 2 files", res.Removed)
	}
	if len(res.Abandoned) != 1 || res.Abandoned[0].JobID != "job9" || res.Abandoned[0].VideoID != "clip-b" {
		t.Fatalf("abandoned = %+v", res.Abandoned)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file should survive: %v", err)
	}

	again := f.pipeline.CleanupOrphanedFiles(context.Background(), time.Hour)
	if len(again.Removed) != 0 || len(again.Errors) != 0 {
		t.Fatalf("second sweep should be a no-op, got %+v", again)
	}
}

func TestCleanupRemovesAgedScratchDirectories(t *testing.T) {
	f := newFixture(t, clean())
	stale := filepath.Join(f.cfg.Paths.TransformDir, ".drapto-123")
	busy := filepath.Join(f.cfg.Paths.TransformDir, ".drapto-456")
	other := filepath.Join(f.cfg.Paths.TransformDir, "keep")
	testsupport.WriteAged(t, filepath.Join(stale, "clip.mkv"), 3*time.Hour)
	testsupport.WriteFile(t, filepath.Join(busy, "clip.mkv"), 16)
	testsupport.WriteAged(t, filepath.Join(other, "clip.mkv"), 3*time.Hour)
	old := time.Now().Add(-3 * time.Hour)
	for _, dir := range []string{stale, busy, other} {
		if err := os.Chtimes(dir, old, old); err != nil {
			t.Fatalf("chtimes %s: %v", dir, err)
		}
	}

	res := f.pipeline.CleanupOrphanedFiles(context.Background(), time.Hour)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors %+v", res.Errors)
	}
	if len(res.Removed) != 1 || res.Removed[0] != stale {
		t.Fatalf("removed %v, want [%s]", res.Removed, stale)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale scratch dir should be gone, stat err = %v", err)
	}
	for _, dir := range []string{busy, other} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("%s should survive: %v", dir, err)
		}
	}
	if len(res.Abandoned) != 0 {
		t.Fatalf("abandoned = %+v", res.Abandoned)
	}
}

func TestParseMarker(t *testing.T) {
	tests := []struct {
		name string
		want pipeline.Marker
		ok   bool
	}{
		{"abc_PROCESSING_clip-1.mp4", pipeline.Marker{JobID: "abc", VideoID: "clip-1", Ext: ".mp4"}, true},
		{"/tmp/v/abc_PROCESSING_clip.v2.mkv", pipeline.Marker{JobID: "abc", VideoID: "clip.v2", Ext: ".mkv"}, true},
		{"_PROCESSING_clip.mp4", pipeline.Marker{}, false},
		{"abc_PROCESSING_.mp4", pipeline.Marker{}, false},
		{"clip.mp4", pipeline.Marker{}, false},
		{".abc_PROCESSING_clip.mp4.partial", pipeline.Marker{}, false},
		{"abc_PROCESSING_clip.mp4.partial", pipeline.Marker{}, false},
	}
	for _, tt := range tests {
		got, ok := pipeline.ParseMarker(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseMarker(%q) = %+v, %v; want %+v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEnsembleJudgeSummarizesVotes(t *testing.T) {
	reg := ensemble.NewRegistry()
	engines := []struct {
		name   string
		weight float64
		vote   bool
		conf   float64
	}{
		{"ocr", 0.35, true, 0.95},
		{"vision", 0.30, false, 0.60},
		{"remote", 0.25, false, 0.55},
	}
	for _, e := range engines {
		if err := reg.Register(ensemble.Member{
			Name:   e.name,
			Weight: e.weight,
			Engine: ensemble.EngineFunc(func(context.Context, string) (ensemble.Vote, error) {
				return ensemble.Vote{HasSubtitles: e.vote, Confidence: e.conf}, nil
			}),
		}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	voter, err := ensemble.NewVoter(reg, ensemble.Options{Strategy: ensemble.StrategyWeighted}, nil)
	if err != nil {
		t.Fatalf("NewVoter: %v", err)
	}

	verdict, err := pipeline.EnsembleJudge(voter).Judge(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if !verdict.HasSubtitles || verdict.Confidence <= 0.5 {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
	if verdict.Source != "ensemble:weighted" {
		t.Fatalf("source = %q", verdict.Source)
	}
	if votes, ok := verdict.Metadata["votes"].([]map[string]any); !ok || len(votes) != 3 {
		t.Fatalf("votes metadata = %#v", verdict.Metadata["votes"])
	}
}
