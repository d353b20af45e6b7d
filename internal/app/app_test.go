package app

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fazhang/genomeqs/internal/config"

	tea "github.com/charmbracelet/bubbletea"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testModel(t *testing.T) *AppModel {
	t.Helper()
	cfg := config.Config{
		InputDir:   t.TempDir(),
		Structure:  config.StructureAuto,
		Extension:  "fa",
		Workers:    1,
		Thresholds: config.DefaultThresholds(),
	}
	return NewAppModel(cfg, nil, nil, discardLogger())
}

func TestMenuSelectionStartsAction(t *testing.T) {
	m := testModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyDown}) // "Compute Assembly Stats"
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if m.State != ComputingStats {
		t.Errorf("state = %v, want ComputingStats", m.State)
	}
	if cmd == nil {
		t.Error("no command returned for the selected action")
	}
	if m.uiMsgChan == nil {
		t.Error("ui message channel not created")
	}
	m.mu.RLock()
	tag := m.currentTaskTag
	rows := len(m.taskRows)
	m.mu.RUnlock()
	if tag != "Stats" {
		t.Errorf("current tag = %q, want Stats", tag)
	}
	if rows != 0 {
		t.Errorf("task rows not reset, got %d", rows)
	}
}

// The background goroutines must see the tag and start time they were
// launched with, not whatever the model holds later.
func TestStatsTaskMessagesCarrySnapshot(t *testing.T) {
	m := testModel(t)

	ch := make(chan tea.Msg, 4)
	start := time.Now()
	cmd := m.startStatsTask("Stats", start, ch)

	m.mu.Lock()
	m.currentTaskTag = "clobbered"
	m.mu.Unlock()

	if msg := cmd(); msg != nil {
		t.Fatalf("cmd returned %v, want nil", msg)
	}

	prog, ok := (<-ch).(ProgressMsg)
	if !ok {
		t.Fatal("first message is not a ProgressMsg")
	}
	if prog.Tag != "Stats" {
		t.Errorf("progress tag = %q, want Stats", prog.Tag)
	}

	fin, ok := (<-ch).(TaskFinishedMsg)
	if !ok {
		t.Fatal("second message is not a TaskFinishedMsg")
	}
	if fin.Tag != "Stats" {
		t.Errorf("finished tag = %q, want Stats", fin.Tag)
	}
	if !fin.StartTime.Equal(start) {
		t.Errorf("start time = %v, want %v", fin.StartTime, start)
	}
	if fin.Err == nil {
		t.Error("stats run on an empty input directory should fail")
	}

	if _, open := <-ch; open {
		t.Error("ui message channel left open after finish")
	}
}

func TestTaskFinishedResetsModel(t *testing.T) {
	m := testModel(t)
	m.State = RunningQuality
	m.uiMsgChan = make(chan tea.Msg)

	m.Update(NewTaskProgress("task_0", "task_0 (2 genomes)", "Complete", time.Second, ""))
	m.Update(NewTaskFinished("Quality", time.Now(), nil, "done"))

	if m.State != ShowMenu {
		t.Errorf("state = %v, want ShowMenu", m.State)
	}
	if m.uiMsgChan != nil {
		t.Error("ui message channel not cleared")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.taskRows) != 0 || len(m.taskOrder) != 0 {
		t.Error("task rows not cleared after finish")
	}
	if m.currentTaskTag != "" {
		t.Errorf("current tag = %q, want empty", m.currentTaskTag)
	}
}
