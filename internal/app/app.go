// Package app is the interactive terminal frontend. It drives the same
// actions as the subcommands (quality runs, assembly stats, reference
// database fetch, analysis) with live per-task progress.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fazhang/genomeqs/internal/analyser"
	"github.com/fazhang/genomeqs/internal/assembly"
	"github.com/fazhang/genomeqs/internal/classifier"
	"github.com/fazhang/genomeqs/internal/config"
	"github.com/fazhang/genomeqs/internal/orchestrator"
	"github.com/fazhang/genomeqs/internal/refdb"
	"github.com/fazhang/genomeqs/internal/util"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	menuStyle        = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle = lipgloss.NewStyle().Padding(0, 1)
	taskHeaderStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	taskStatusStyle  = map[string]lipgloss.Style{
		"Copying":     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"Classifying": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"Parsing":     lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"Complete":    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"Failed":      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"Queued":      lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
	}
)

// TaskRow tracks the displayed state of one classification task.
type TaskRow struct {
	DisplayName string
	Status      string
	ErrMsg      string
	Start       time.Time
	Elapsed     time.Duration
}

type AppModel struct {
	Cfg    config.Config
	DB     *sql.DB
	Runner classifier.Runner
	Logger *slog.Logger

	State            AppState
	menuChoices      []string
	menuCursor       int
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	mu             sync.RWMutex
	taskRows       map[string]*TaskRow
	taskOrder      []string
	overallTotal   int64
	overallCurrent int64
	currentTaskTag string
	lastActivity   string

	lastError error
	Quitting  bool

	termWidth  int
	termHeight int

	uiMsgChan chan tea.Msg
}

func NewAppModel(cfg config.Config, db *sql.DB, runner classifier.Runner, logger *slog.Logger) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	prog := progress.New(progress.WithDefaultGradient())

	return &AppModel{
		Cfg:             cfg,
		DB:              db,
		Runner:          runner,
		Logger:          logger,
		State:           ShowMenu,
		menuChoices:     []string{"Run Quality Assessment", "Compute Assembly Stats", "Fetch Reference Database", "Run Analysis", "Exit"},
		menuCursor:      0,
		spinner:         s,
		overallProgress: prog,
		taskRows:        make(map[string]*TaskRow),
		taskOrder:       make([]string, 0),
	}
}

func (m *AppModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.State {
		case ShowMenu:
			cmd = m.handleMenuKey(msg)
			cmds = append(cmds, cmd)
		case ShowError:
			if msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc || msg.String() == "q" {
				m.State = ShowMenu
				m.lastError = nil
			}
		case Exiting:
			return m, nil
		default:
			if msg.String() == "ctrl+c" || msg.String() == "q" {
				m.Quitting = true
				m.State = Exiting
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case ProgressMsg:
		m.mu.Lock()
		m.currentTaskTag = msg.Tag
		m.overallCurrent = msg.Current
		m.overallTotal = msg.Total
		m.lastActivity = msg.Activity
		m.mu.Unlock()
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmd = m.overallProgress.SetPercent(percent)
		cmds = append(cmds, cmd)
	case TaskProgressMsg:
		m.mu.Lock()
		if _, exists := m.taskRows[msg.TaskID]; !exists {
			m.taskRows[msg.TaskID] = &TaskRow{
				DisplayName: msg.DisplayName,
				Status:      "Queued",
				Start:       time.Now(),
			}
			m.taskOrder = append(m.taskOrder, msg.TaskID)
		}
		row := m.taskRows[msg.TaskID]
		row.Status = msg.Status
		row.ErrMsg = msg.ErrMsg
		if msg.ElapsedTime > 0 {
			row.Elapsed = msg.ElapsedTime
		} else if (msg.Status == "Complete" || msg.Status == "Failed") && !row.Start.IsZero() && row.Elapsed == 0 {
			row.Elapsed = time.Since(row.Start)
		}
		m.mu.Unlock()
	case TaskFinishedMsg:
		m.mu.Lock()
		m.State = ShowMenu
		m.taskRows = make(map[string]*TaskRow)
		m.taskOrder = make([]string, 0)
		m.overallCurrent = 0
		m.overallTotal = 0
		m.currentTaskTag = ""
		m.lastActivity = ""
		m.uiMsgChan = nil
		m.mu.Unlock()
		if msg.Err != nil {
			m.Logger.Error("Action failed.", slog.String("action", msg.Tag), "error", msg.Err)
			m.lastError = fmt.Errorf("action '%s' failed: %w", msg.Tag, msg.Err)
			m.State = ShowError
		} else {
			m.Logger.Info("Action finished.",
				slog.String("action", msg.Tag),
				slog.Duration("duration", msg.EndTime.Sub(msg.StartTime).Round(time.Millisecond)))
		}
	case GeneralErrorMsg:
		m.lastError = msg.Err
		m.State = ShowError
		m.uiMsgChan = nil
	case spinner.TickMsg:
		if m.State != ShowMenu && m.State != ShowError && m.State != Exiting {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		if m.State != ShowMenu && m.State != ShowError && m.State != Exiting {
			progModel, frameCmd := m.overallProgress.Update(msg)
			if newModel, ok := progModel.(progress.Model); ok {
				m.overallProgress = newModel
				cmds = append(cmds, frameCmd)
			}
		}
	}

	if m.uiMsgChan != nil {
		cmds = append(cmds, m.waitForActivityCmd(m.uiMsgChan))
	}

	return m, tea.Batch(cmds...)
}

func (m *AppModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- Genome Quality Assessment ---"))
	b.WriteString("\n\n")

	switch m.State {
	case ShowMenu:
		b.WriteString(m.viewMenu())
	case RunningQuality, ComputingStats, FetchingRefDB, AnalyzingData:
		b.WriteString(m.viewProgress())
	case ShowError:
		b.WriteString(m.viewError())
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}

	b.WriteString("\n\n")
	if m.State == ShowMenu {
		b.WriteString(infoStyle.Render("Use up/down arrows and Enter to select. 'q' or Ctrl+C to quit."))
	} else if m.State != Exiting && m.State != ShowError {
		b.WriteString(infoStyle.Render("Action running... 'q' or Ctrl+C to force quit."))
	} else if m.State == ShowError {
		b.WriteString(infoStyle.Render("Press Enter or Esc to return to menu. 'q' or Ctrl+C to quit."))
	}

	return b.String()
}

func (m *AppModel) viewMenu() string {
	var b strings.Builder
	b.WriteString("Select an action:\n")

	for i, choice := range m.menuChoices {
		var lineContent string
		if m.menuCursor == i {
			lineContent = "> " + selectedStyle.Render(choice)
		} else {
			lineContent = "  " + choice
		}
		b.WriteString(menuStyle.Render(lineContent))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *AppModel) viewProgress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s Running: %s %s\n", m.spinner.View(), m.currentTaskTag, m.lastActivity))
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.overallCurrent, m.overallTotal))

	maxLines := m.termHeight - 10
	if maxLines < 1 {
		maxLines = 1
	}
	startIdx := 0
	if len(m.taskOrder) > maxLines {
		startIdx = len(m.taskOrder) - maxLines
	}

	if len(m.taskOrder) > 0 {
		b.WriteString(taskHeaderStyle.Render(fmt.Sprintf("%-40s | %-15s | %s", "Task", "Status", "Elapsed")))
		b.WriteString("\n")
		b.WriteString(strings.Repeat("-", max(1, m.termWidth)))
		b.WriteString("\n")
		for i := startIdx; i < len(m.taskOrder); i++ {
			row := m.taskRows[m.taskOrder[i]]
			if row == nil {
				continue
			}
			statusStyled, ok := taskStatusStyle[row.Status]
			if !ok {
				statusStyled = infoStyle
			}
			elapsedStr := ""
			if row.Elapsed > 0 {
				elapsedStr = row.Elapsed.Round(time.Millisecond).String()
			} else if !row.Start.IsZero() && row.Status != "Queued" && row.Status != "Complete" && row.Status != "Failed" {
				elapsedStr = time.Since(row.Start).Round(time.Second).String() + "..."
			}
			name := row.DisplayName
			if len(name) > 40 {
				name = name[:37] + "..."
			}
			line := fmt.Sprintf("%-40s | %-15s | %s", name, statusStyled.Render(row.Status), elapsedStr)
			b.WriteString(line)
			if row.Status == "Failed" && row.ErrMsg != "" {
				b.WriteString("\n")
				b.WriteString(errorStyle.Render("  -> " + firstLine(row.ErrMsg)))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *AppModel) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("An error occurred:"))
	b.WriteString("\n\n")
	if m.lastError != nil {
		b.WriteString(wrapText(m.lastError.Error(), m.termWidth-4))
	} else {
		b.WriteString("Unknown error.")
	}
	b.WriteString("\n")
	return b.String()
}

func (m *AppModel) handleMenuKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(m.menuChoices)-1 {
			m.menuCursor++
		}
	case "enter":
		m.lastError = nil
		var tag string
		var state AppState
		switch m.menuChoices[m.menuCursor] {
		case "Run Quality Assessment":
			tag, state = "Quality", RunningQuality
		case "Compute Assembly Stats":
			tag, state = "Stats", ComputingStats
		case "Fetch Reference Database":
			tag, state = "FetchDB", FetchingRefDB
		case "Run Analysis":
			tag, state = "Analyse", AnalyzingData
		case "Exit":
			m.Quitting = true
			m.State = Exiting
			return tea.Quit
		default:
			return nil
		}
		startTime := time.Now()
		m.State = state
		m.uiMsgChan = make(chan tea.Msg)
		m.mu.Lock()
		m.taskRows = make(map[string]*TaskRow)
		m.taskOrder = make([]string, 0)
		m.overallCurrent = 0
		m.overallTotal = 0
		m.currentTaskTag = tag
		m.lastActivity = ""
		m.mu.Unlock()
		// The closures take tag and startTime by value: background
		// goroutines never read the model's fields.
		var taskCmd tea.Cmd
		switch tag {
		case "Quality":
			taskCmd = m.startQualityTask(tag, startTime, m.uiMsgChan)
		case "Stats":
			taskCmd = m.startStatsTask(tag, startTime, m.uiMsgChan)
		case "FetchDB":
			taskCmd = m.startFetchTask(tag, startTime, m.uiMsgChan)
		case "Analyse":
			taskCmd = m.startAnalyseTask(tag, startTime, m.uiMsgChan)
		}
		return tea.Batch(taskCmd, m.waitForActivityCmd(m.uiMsgChan))
	case "ctrl+c", "q":
		m.Quitting = true
		m.State = Exiting
		return tea.Quit
	}
	return nil
}

func (m *AppModel) waitForActivityCmd(uiMsgChan chan tea.Msg) tea.Cmd {
	if uiMsgChan == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-uiMsgChan
		if !ok {
			return nil
		}
		return msg
	}
}

// startQualityTask launches the orchestrator with a progress channel and a
// translator goroutine that maps its task updates onto UI messages. The
// worker goroutine closes uiMsgChan only after the translator has drained
// the progress channel.
func (m *AppModel) startQualityTask(tag string, startTime time.Time, uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		progressChan := make(chan orchestrator.TaskProgress)
		translatorDone := make(chan struct{})

		go func() {
			defer close(translatorDone)
			var finished int64
			for p := range progressChan {
				taskID := fmt.Sprintf("task_%d", p.TaskID)
				display := fmt.Sprintf("%s (%d genomes)", taskID, p.Genomes)
				if p.Status == "Complete" || p.Status == "Failed" {
					finished++
				}
				uiMsgChan <- NewProgress(tag, finished, int64(p.TotalTasks), "")
				uiMsgChan <- NewTaskProgress(taskID, display, p.Status, p.Elapsed, p.ErrMsg)
			}
		}()

		go func() {
			finalErr := orchestrator.Run(context.Background(), m.Cfg, m.DB, m.Logger, m.Runner, progressChan)
			<-translatorDone
			uiMsgChan <- NewTaskFinished(tag, startTime, finalErr, "Quality assessment finished.")
			close(uiMsgChan)
		}()
		return nil
	}
}

func (m *AppModel) startStatsTask(tag string, startTime time.Time, uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			uiMsgChan <- NewProgress(tag, 0, 1, "Computing assembly stats...")
			finalErr := assembly.Run(context.Background(), m.Cfg, m.Logger)
			uiMsgChan <- NewTaskFinished(tag, startTime, finalErr, "Assembly stats finished.")
			close(uiMsgChan)
		}()
		return nil
	}
}

func (m *AppModel) startFetchTask(tag string, startTime time.Time, uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			uiMsgChan <- NewProgress(tag, 0, 1, "Fetching reference database...")
			var finalErr error
			if len(m.Cfg.DataFeeds) == 0 {
				finalErr = errors.New("no reference database feed configured")
			} else {
				finalErr = refdb.Fetch(context.Background(), util.DefaultHTTPClient(), m.Logger, m.Cfg.DataFeeds[0], m.Cfg.CheckMData)
			}
			uiMsgChan <- NewTaskFinished(tag, startTime, finalErr, "Reference database fetch finished.")
			close(uiMsgChan)
		}()
		return nil
	}
}

func (m *AppModel) startAnalyseTask(tag string, startTime time.Time, uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			uiMsgChan <- NewProgress(tag, 0, 1, "Running analysis...")
			var finalErr error
			if m.DB == nil {
				finalErr = errors.New("no database configured, pass --db")
			} else {
				finalErr = analyser.RunAnalysis(context.Background(), m.DB, m.Logger, config.DefaultBasicTable, config.DefaultSupplyTable)
			}
			uiMsgChan <- NewTaskFinished(tag, startTime, finalErr, "Analysis finished.")
			close(uiMsgChan)
		}()
		return nil
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}
