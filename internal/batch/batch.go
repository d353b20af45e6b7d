// Package batch partitions the collected genome set into disjoint tasks.
// One task corresponds to one invocation of the external classifier.
package batch

import (
	"github.com/fazhang/genomeqs/internal/layout"
)

// Task is one unit of classifier work. Tasks are disjoint: every genome
// belongs to exactly one task.
type Task struct {
	ID    int
	Files []layout.GenomeFile
}

// ByWorkerCount assigns file i to task i mod k (round-robin). k is clamped
// to the file count so no empty task is ever produced.
func ByWorkerCount(files []layout.GenomeFile, k int) []Task {
	k = clamp(k, len(files))
	if k == 0 {
		return nil
	}
	tasks := make([]Task, k)
	for i := range tasks {
		tasks[i].ID = i
	}
	for i, f := range files {
		t := &tasks[i%k]
		t.Files = append(t.Files, f)
	}
	return tasks
}

// ByBatchSize splits files into sequential chunks of size b, producing
// ceil(n/b) tasks. b is clamped to the file count.
func ByBatchSize(files []layout.GenomeFile, b int) []Task {
	b = clamp(b, len(files))
	if b == 0 {
		return nil
	}
	var tasks []Task
	for start := 0; start < len(files); start += b {
		end := start + b
		if end > len(files) {
			end = len(files)
		}
		tasks = append(tasks, Task{
			ID:    len(tasks),
			Files: files[start:end],
		})
	}
	return tasks
}

// Partition picks the policy: a positive batch size chunks sequentially,
// otherwise files are spread round-robin across the worker slots. Policy
// choice affects task topology only, never aggregation correctness.
func Partition(files []layout.GenomeFile, workers, batchSize int) []Task {
	if batchSize > 0 {
		return ByBatchSize(files, batchSize)
	}
	return ByWorkerCount(files, workers)
}

func clamp(n, limit int) int {
	if n < 1 {
		n = 1
	}
	if n > limit {
		n = limit
	}
	return n
}
