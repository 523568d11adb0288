package history_test

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pcastell/mend/internal/history"
	"github.com/pcastell/mend/internal/models"
)

func openStore(t *testing.T) (*history.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mend.db")
	store, err := history.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

func sampleTriple(iteration int) models.Triple {
	return models.Triple{
		Attempt: models.Attempt{
			Iteration: iteration,
			Code:      fmt.Sprintf("print(%d)", iteration),
			Rationale: "try again",
		},
		Result: models.ExecutionResult{
			Stdout:     fmt.Sprintf("%d\n", iteration),
			Stderr:     "",
			ExitStatus: 1,
			Duration:   42 * time.Millisecond,
		},
		Diagnosis: models.Diagnosis{
			Category: models.CodeError,
			Feedback: "NameError: name 'x' is not defined",
		},
	}
}

func TestBeginAppendReadRoundTrip(t *testing.T) {
	store, _ := openStore(t)

	started := time.Now()
	id, err := store.Begin("two-sum", started)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty episode ID")
	}

	for i := 0; i < 3; i++ {
		if err := store.Append(id, sampleTriple(i)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	ep, err := store.Read(id)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if ep.TaskName != "two-sum" {
		t.Errorf("expected task two-sum, got %s", ep.TaskName)
	}
	if ep.Status != models.StatusRunning {
		t.Errorf("expected running status, got %s", ep.Status)
	}
	if len(ep.Triples) != 3 {
		t.Fatalf("expected 3 triples, got %d", len(ep.Triples))
	}
	for i, tr := range ep.Triples {
		if tr.Attempt.Iteration != i {
			t.Errorf("triple %d: iteration %d, indices must be gap-free and ordered", i, tr.Attempt.Iteration)
		}
	}

	got := ep.Triples[1]
	want := sampleTriple(1)
	if got.Attempt != want.Attempt || got.Result != want.Result || got.Diagnosis != want.Diagnosis {
		t.Errorf("triple round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestAppendRejectsDuplicateIteration(t *testing.T) {
	store, _ := openStore(t)

	id, err := store.Begin("t", time.Now())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := store.Append(id, sampleTriple(0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(id, sampleTriple(0)); err == nil {
		t.Error("expected duplicate iteration to be rejected")
	}
}

func TestFinishIsOneWay(t *testing.T) {
	store, _ := openStore(t)

	id, err := store.Begin("t", time.Now())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	if err := store.Finish(id, models.StatusSucceeded, time.Now(), "print('ok')"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	err = store.Finish(id, models.StatusFailed, time.Now(), "")
	if err == nil {
		t.Fatal("expected second Finish to fail")
	}
	if !strings.Contains(err.Error(), "not running") {
		t.Errorf("unexpected error: %v", err)
	}

	ep, err := store.Read(id)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if ep.Status != models.StatusSucceeded {
		t.Errorf("status should stay succeeded, got %s", ep.Status)
	}
	if ep.FinalCode != "print('ok')" {
		t.Errorf("unexpected final code: %q", ep.FinalCode)
	}
}

func TestFinishRejectsNonTerminalStatus(t *testing.T) {
	store, _ := openStore(t)

	id, err := store.Begin("t", time.Now())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := store.Finish(id, models.StatusRunning, time.Now(), ""); err == nil {
		t.Error("expected error for non-terminal status")
	}
}

func TestInterruptedEpisodeReadsBack(t *testing.T) {
	store, path := openStore(t)

	id, err := store.Begin("t", time.Now())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Append(id, sampleTriple(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	// Abandon the episode without finishing, as a crash would.
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := history.NewStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	ep, err := reopened.Read(id)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(ep.Triples) != 2 {
		t.Errorf("expected both persisted triples, got %d", len(ep.Triples))
	}
	if ep.Status != models.StatusRunning {
		t.Errorf("an interrupted episode stays running, got %s", ep.Status)
	}
}

func TestConcurrentEpisodeAppends(t *testing.T) {
	store, _ := openStore(t)

	const episodes = 4
	const triplesPerEpisode = 5

	ids := make([]string, episodes)
	for i := range ids {
		id, err := store.Begin(fmt.Sprintf("task-%d", i), time.Now())
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		ids[i] = id
	}

	errs := make(chan error, episodes*triplesPerEpisode)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < triplesPerEpisode; i++ {
				if err := store.Append(id, sampleTriple(i)); err != nil {
					errs <- fmt.Errorf("episode %s: %w", id, err)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Append failed: %v", err)
	}

	for _, id := range ids {
		ep, err := store.Read(id)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(ep.Triples) != triplesPerEpisode {
			t.Errorf("episode %s: expected %d triples, got %d", id, triplesPerEpisode, len(ep.Triples))
		}
		for i, tr := range ep.Triples {
			if tr.Attempt.Iteration != i {
				t.Errorf("episode %s: triple %d has iteration %d", id, i, tr.Attempt.Iteration)
			}
		}
	}
}

func TestAppendRejectsUnknownEpisode(t *testing.T) {
	store, _ := openStore(t)

	if err := store.Append("no-such-episode", sampleTriple(0)); err == nil {
		t.Error("expected foreign key violation for unknown episode")
	}
}

func TestListEpisodes(t *testing.T) {
	store, _ := openStore(t)

	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Begin(fmt.Sprintf("task-%d", i), base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		ids = append(ids, id)
	}

	eps, err := store.ListEpisodes(2)
	if err != nil {
		t.Fatalf("ListEpisodes failed: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(eps))
	}
	if eps[0].ID != ids[2] {
		t.Errorf("expected newest episode first, got %s", eps[0].ID)
	}
}
