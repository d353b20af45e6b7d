package batch

import (
	"fmt"
	"testing"

	"github.com/fazhang/genomeqs/internal/layout"
)

func genomes(n int) []layout.GenomeFile {
	files := make([]layout.GenomeFile, n)
	for i := range files {
		files[i] = layout.GenomeFile{
			Name:       fmt.Sprintf("g%02d.fa", i),
			SourcePath: fmt.Sprintf("/in/g%02d.fa", i),
			Checksum:   fmt.Sprintf("%032d", i),
		}
	}
	return files
}

func TestByWorkerCount(t *testing.T) {
	t.Run("round robin distribution", func(t *testing.T) {
		tasks := ByWorkerCount(genomes(7), 3)
		if len(tasks) != 3 {
			t.Fatalf("got %d tasks, want 3", len(tasks))
		}
		wantSizes := []int{3, 2, 2}
		for i, task := range tasks {
			if task.ID != i {
				t.Errorf("tasks[%d].ID = %d", i, task.ID)
			}
			if len(task.Files) != wantSizes[i] {
				t.Errorf("tasks[%d] has %d files, want %d", i, len(task.Files), wantSizes[i])
			}
		}
		// File i goes to task i mod k.
		if tasks[1].Files[0].Name != "g01.fa" {
			t.Errorf("tasks[1].Files[0] = %s, want g01.fa", tasks[1].Files[0].Name)
		}
		if tasks[0].Files[2].Name != "g06.fa" {
			t.Errorf("tasks[0].Files[2] = %s, want g06.fa", tasks[0].Files[2].Name)
		}
	})

	t.Run("workers clamped to file count", func(t *testing.T) {
		tasks := ByWorkerCount(genomes(2), 8)
		if len(tasks) != 2 {
			t.Fatalf("got %d tasks, want 2", len(tasks))
		}
		for i, task := range tasks {
			if len(task.Files) != 1 {
				t.Errorf("tasks[%d] has %d files, want 1", i, len(task.Files))
			}
		}
	})

	t.Run("zero workers clamped up", func(t *testing.T) {
		tasks := ByWorkerCount(genomes(3), 0)
		if len(tasks) != 1 {
			t.Fatalf("got %d tasks, want 1", len(tasks))
		}
		if len(tasks[0].Files) != 3 {
			t.Errorf("task has %d files, want 3", len(tasks[0].Files))
		}
	})

	t.Run("no files no tasks", func(t *testing.T) {
		if tasks := ByWorkerCount(nil, 4); tasks != nil {
			t.Errorf("got %d tasks, want none", len(tasks))
		}
	})
}

func TestByBatchSize(t *testing.T) {
	t.Run("sequential chunks", func(t *testing.T) {
		tasks := ByBatchSize(genomes(7), 3)
		if len(tasks) != 3 {
			t.Fatalf("got %d tasks, want 3", len(tasks))
		}
		wantSizes := []int{3, 3, 1}
		for i, task := range tasks {
			if len(task.Files) != wantSizes[i] {
				t.Errorf("tasks[%d] has %d files, want %d", i, len(task.Files), wantSizes[i])
			}
		}
		if tasks[2].Files[0].Name != "g06.fa" {
			t.Errorf("tasks[2].Files[0] = %s, want g06.fa", tasks[2].Files[0].Name)
		}
	})

	t.Run("batch size clamped to file count", func(t *testing.T) {
		tasks := ByBatchSize(genomes(2), 100)
		if len(tasks) != 1 {
			t.Fatalf("got %d tasks, want 1", len(tasks))
		}
		if len(tasks[0].Files) != 2 {
			t.Errorf("task has %d files, want 2", len(tasks[0].Files))
		}
	})
}

func TestPartitionPolicies(t *testing.T) {
	files := genomes(10)

	if tasks := Partition(files, 4, 0); len(tasks) != 4 {
		t.Errorf("worker policy produced %d tasks, want 4", len(tasks))
	}
	if tasks := Partition(files, 4, 3); len(tasks) != 4 {
		t.Errorf("batch policy produced %d tasks, want 4 chunks", len(tasks))
	}
}

// Every genome must land in exactly one task regardless of policy.
func TestPartitionDisjointUnion(t *testing.T) {
	files := genomes(13)
	for _, tc := range []struct {
		name      string
		workers   int
		batchSize int
	}{
		{"by workers", 4, 0},
		{"by batch size", 4, 5},
		{"single worker", 1, 0},
		{"more workers than files", 50, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			seen := make(map[string]int)
			for _, task := range Partition(files, tc.workers, tc.batchSize) {
				if len(task.Files) == 0 {
					t.Errorf("task %d is empty", task.ID)
				}
				for _, f := range task.Files {
					seen[f.Name]++
				}
			}
			if len(seen) != len(files) {
				t.Errorf("saw %d distinct genomes, want %d", len(seen), len(files))
			}
			for name, count := range seen {
				if count != 1 {
					t.Errorf("genome %s assigned %d times", name, count)
				}
			}
		})
	}
}
