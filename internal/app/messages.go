package app

import (
	"fmt"
	"time"
)

// ProgressMsg updates the overall progress bar.
type ProgressMsg struct {
	Tag      string
	Current  int64
	Total    int64
	Activity string
}

// TaskProgressMsg updates the row for one classification task.
type TaskProgressMsg struct {
	TaskID      string
	DisplayName string
	Status      string // "Queued", "Copying", "Classifying", "Parsing", "Complete", "Failed"
	ElapsedTime time.Duration
	ErrMsg      string
}

// TaskFinishedMsg signals the completion of a background action.
type TaskFinishedMsg struct {
	Tag       string
	Err       error
	StartTime time.Time
	EndTime   time.Time
	Message   string
}

// GeneralErrorMsg signals an error not tied to a specific action.
type GeneralErrorMsg struct {
	Err error
}

func NewProgress(tag string, current, total int64, activity string) ProgressMsg {
	return ProgressMsg{Tag: tag, Current: current, Total: total, Activity: activity}
}

func NewTaskProgress(taskID, displayName, status string, elapsed time.Duration, errMsg string) TaskProgressMsg {
	return TaskProgressMsg{
		TaskID:      taskID,
		DisplayName: displayName,
		Status:      status,
		ElapsedTime: elapsed,
		ErrMsg:      errMsg,
	}
}

func NewTaskFinished(tag string, start time.Time, err error, msg string) TaskFinishedMsg {
	return TaskFinishedMsg{
		Tag:       tag,
		StartTime: start,
		EndTime:   time.Now(),
		Err:       err,
		Message:   msg,
	}
}

func (e GeneralErrorMsg) Error() string {
	return e.Err.Error()
}

func (t TaskFinishedMsg) Error() string {
	if t.Err != nil {
		return t.Err.Error()
	}
	return ""
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress %s: %d/%d", p.Tag, p.Current, p.Total)
}
func (tp TaskProgressMsg) String() string {
	return fmt.Sprintf("TaskProgress %s: %s", tp.TaskID, tp.Status)
}
func (tf TaskFinishedMsg) String() string { return fmt.Sprintf("TaskFinished %s", tf.Tag) }
func (ge GeneralErrorMsg) String() string { return fmt.Sprintf("GeneralError: %s", ge.Err) }
