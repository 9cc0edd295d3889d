package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history", "state.db")
	store, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return store
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	store := openStore(t)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second ensure schema: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	if err := store.StartRun(ctx, Run{RunID: "run-1", SuiteID: "bathymetry-ex2", SuiteVersion: "1.0.0", WorkDir: "/w", StartTS: start}); err != nil {
		t.Fatalf("start run: %v", err)
	}
	checks := []CheckRecord{
		{CheckID: "dataset-exists", Status: "pass", Required: true, DurationMS: 3},
		{CheckID: "function-probe", Status: "fail", Kind: "assertion_mismatch", Required: true, Message: "1 of 3 locations off"},
		{CheckID: "edge-lookup", Status: "skip", Kind: "missing_artifact"},
	}
	for _, c := range checks {
		if err := store.RecordCheck(ctx, "run-1", c); err != nil {
			t.Fatalf("record %s: %v", c.CheckID, err)
		}
	}
	if err := store.FinishRun(ctx, "run-1", Outcome{Pass: 1, Fail: 1, Skip: 1, Earned: 5, Possible: 15, Fingerprint: "abc", Engine: "mock", FinishTS: start.Add(2 * time.Second)}); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := store.LastRuns(ctx, 5)
	if err != nil {
		t.Fatalf("last runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if !r.Finished || r.Outcome.Passed || r.Outcome.Fail != 1 || r.Engine != "mock" {
		t.Fatalf("unexpected run summary: %+v", r)
	}
	if !r.StartTS.Equal(start) {
		t.Fatalf("start ts = %v, want %v", r.StartTS, start)
	}

	got, err := store.RunChecks(ctx, "run-1")
	if err != nil {
		t.Fatalf("run checks: %v", err)
	}
	if len(got) != len(checks) {
		t.Fatalf("expected %d checks, got %d", len(checks), len(got))
	}
	for i := range checks {
		if got[i] != checks[i] {
			t.Fatalf("check %d = %+v, want %+v", i, got[i], checks[i])
		}
	}
}

func TestStartRunRequiresID(t *testing.T) {
	store := openStore(t)
	if err := store.StartRun(context.Background(), Run{SuiteID: "s"}); err == nil {
		t.Fatalf("expected error for empty run id")
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := openStore(t)
	if err := store.FinishRun(context.Background(), "nope", Outcome{}); err == nil {
		t.Fatalf("expected error finishing unknown run")
	}
}

func TestLastFingerprintScopesBySuiteAndDir(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	if _, ok, err := store.LastFingerprint(ctx, "s", "/a"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	add := func(id, dir, fp string, at time.Time, finish bool) {
		t.Helper()
		if err := store.StartRun(ctx, Run{RunID: id, SuiteID: "s", WorkDir: dir, Inputs: "in-" + id, StartTS: at}); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
		if finish {
			if err := store.FinishRun(ctx, id, Outcome{Passed: true, Fingerprint: fp, FinishTS: at.Add(time.Second)}); err != nil {
				t.Fatalf("finish %s: %v", id, err)
			}
		}
	}
	add("r1", "/a", "fp-old", base, true)
	add("r2", "/a", "fp-new", base.Add(time.Minute), true)
	add("r3", "/b", "fp-other", base.Add(2*time.Minute), true)
	add("r4", "/a", "", base.Add(3*time.Minute), false)

	fp, ok, err := store.LastFingerprint(ctx, "s", "/a")
	if err != nil {
		t.Fatalf("last fingerprint: %v", err)
	}
	if !ok || fp.Result != "fp-new" || fp.RunID != "r2" || fp.Inputs != "in-r2" {
		t.Fatalf("fingerprint = %+v ok=%v, want fp-new from r2", fp, ok)
	}

	sum, err := store.GetSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Runs != 4 || sum.Passed != 3 || sum.Fingerprints != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	runs, err := store.LastRuns(ctx, 2)
	if err != nil {
		t.Fatalf("last runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "r4" || runs[0].Finished {
		t.Fatalf("unexpected newest runs: %+v", runs)
	}
}
