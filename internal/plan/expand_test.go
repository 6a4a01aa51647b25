package plan

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"taskplan/internal/scenario"
)

func mustDescriptors(t *testing.T, src string) []scenario.TaskDescriptor {
	t.Helper()
	ds, err := scenario.ParseReader("t.scenario", strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return ds
}

func TestBuild_LinearChainDependencies(t *testing.T) {
	dir := t.TempDir()
	src := `A : Cat
  in: a.txt
  out: b.txt

B : Cat
  in: b.txt
  out: c.txt
`
	p, err := Build(mustDescriptors(t, src), dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(p.Tasks))
	}
	b := p.ByID("B")
	if len(b.Dependencies) != 1 || b.Dependencies[0] != "A" {
		t.Errorf("expected B to depend on A, got %v", b.Dependencies)
	}
	a := p.ByID("A")
	if len(a.Dependencies) != 0 {
		t.Errorf("expected A to have no dependencies, got %v", a.Dependencies)
	}
}

func TestBuild_WildcardExpansion(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"p.txt", "q.txt"} {
		if err := os.WriteFile(filepath.Join(dir, "data", name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	src := `X : Copy
  in: data/*.txt
  out: out/*.txt
`
	p, err := Build(mustDescriptors(t, src), dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(p.Tasks) != 2 {
		t.Fatalf("expected 2 expanded tasks, got %d", len(p.Tasks))
	}
	ids := []string{p.Tasks[0].ID, p.Tasks[1].ID}
	sort.Strings(ids)
	if ids[0] != "X#p" || ids[1] != "X#q" {
		t.Errorf("expected X#p, X#q, got %v", ids)
	}
	for _, task := range p.Tasks {
		if task.ID == "X#p" && task.Outputs[0] != "out/p.txt" {
			t.Errorf("expected out/p.txt, got %s", task.Outputs[0])
		}
	}
}

func TestBuild_WildcardChainsToDownstreamTask(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"p.txt", "q.txt"} {
		if err := os.WriteFile(filepath.Join(dir, "data", name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	src := `X : Copy
  in: data/*.txt
  out: out/*.txt

Merge : Cat
  in: out/p.txt
  out: final.txt
`
	p, err := Build(mustDescriptors(t, src), dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	merge := p.ByID("Merge")
	if len(merge.Dependencies) != 1 || merge.Dependencies[0] != "X#p" {
		t.Errorf("expected Merge to depend on X#p, got %v", merge.Dependencies)
	}
}

func TestBuild_UnmatchedPattern(t *testing.T) {
	dir := t.TempDir()
	src := `X : Copy
  in: missing/*.txt
  out: out/*.txt
`
	_, err := Build(mustDescriptors(t, src), dir)
	if !errors.Is(err, ErrUnmatchedPattern) {
		t.Fatalf("expected ErrUnmatchedPattern, got %v", err)
	}
}

func TestBuild_OutputCollision(t *testing.T) {
	dir := t.TempDir()
	src := `A : Cat
  in: a.txt
  out: shared.txt

B : Cat
  in: b.txt
  out: shared.txt
`
	_, err := Build(mustDescriptors(t, src), dir)
	if !errors.Is(err, ErrOutputCollision) {
		t.Fatalf("expected ErrOutputCollision, got %v", err)
	}
}

func TestBuild_CyclicPlan(t *testing.T) {
	dir := t.TempDir()
	src := `A : Cat
  in: b.out
  out: a.out

B : Cat
  in: a.out
  out: b.out
`
	_, err := Build(mustDescriptors(t, src), dir)
	if !errors.Is(err, ErrCyclicPlan) {
		t.Fatalf("expected ErrCyclicPlan, got %v", err)
	}
}

func TestBuild_CrossProductRejected(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "left"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "right"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "left", "p.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "right", "z.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := `X : Join
  in: left/*.txt, right/*.txt
  out: out/*.txt
`
	_, err := Build(mustDescriptors(t, src), dir)
	if !errors.Is(err, ErrCrossProduct) {
		t.Fatalf("expected ErrCrossProduct, got %v", err)
	}
}
