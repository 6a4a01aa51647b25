package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskplan/internal/capability"
	"taskplan/internal/plan"
	"taskplan/internal/planstore"
	"taskplan/internal/scenario"
)

func buildAndInit(t *testing.T, dir, src string) *planstore.Store {
	t.Helper()
	ds, err := scenario.ParseReader("s.scenario", strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, err := plan.Build(ds, dir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	hash, err := plan.ScenarioHash(strings.NewReader(src))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	p.ScenarioSHA256 = hash
	p.CreatedAt = time.Now()

	store := planstore.New(filepath.Join(dir, "s.plan"), time.Hour, 3)
	if err := store.InitializeIfAbsent(p); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestPool_LinearChainCompletes(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir) // task paths are relative to the plan's workdir
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := `A : Cat
  in: a.txt
  out: b.txt

B : Cat
  in: b.txt
  out: c.txt
`
	store := buildAndInit(t, dir, src)
	pool := New(store, capability.DefaultRegistry(), capability.NopHooks, nil, 1, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Run(ctx); err != nil {
		t.Fatalf("pool run: %v", err)
	}

	counts, err := store.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if counts.Done != 2 || counts.Failed != 0 {
		t.Fatalf("expected 2 DONE, 0 FAILED, got %+v", counts)
	}
	got, err := os.ReadFile(filepath.Join(dir, "c.txt"))
	if err != nil {
		t.Fatalf("read c.txt: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
}

func TestPool_FailurePropagatesToDependent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "seed.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := `A : Fail
  in: seed.txt
  out: a.txt
  params:
    kind = IO_ERROR
    message = boom

B : Copy
  in: a.txt
  out: b.txt
`
	store := buildAndInit(t, dir, src)
	pool := New(store, capability.DefaultRegistry(), capability.NopHooks, nil, 2, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Run(ctx); err != nil {
		t.Fatalf("pool run: %v", err)
	}

	counts, err := store.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if counts.Failed != 2 {
		t.Fatalf("expected both A and B FAILED, got %+v", counts)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.txt")); err == nil {
		t.Errorf("expected b.txt to never be written")
	}
}
