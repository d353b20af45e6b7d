// Package classifier invokes the external genome-classification tool for one
// task workspace. The invocation point is a narrow interface so tests can
// simulate success, failure and malformed output without a real binary.
package classifier

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes the external tool against one task's workDir/outDir.
// A false ok means the task failed: the run continues and the task's genomes
// fall back to the sentinel label. The diagnostic carries whatever the tool
// said on its error stream.
type Runner interface {
	Run(ctx context.Context, workDir, outDir string) (ok bool, diagnostic string)
}

// CheckM runs the CheckM lineage workflow followed by the qa summary step.
// No timeout is enforced beyond context cancellation; a hung tool invocation
// holds its worker slot until it returns.
type CheckM struct {
	DataPath  string // reference database, exported as CHECKM_DATA_PATH
	Extension string // genome file extension the tool should match
	Threads   int
	Logger    *slog.Logger
}

// SummaryFileName is the tab-separated summary the qa step is told to write.
const SummaryFileName = "checkm_results.tsv"

// Run performs `checkm lineage_wf` then `checkm qa --tab_table` for one task.
func (c *CheckM) Run(ctx context.Context, workDir, outDir string) (bool, string) {
	threads := c.Threads
	if threads < 1 {
		threads = 1
	}
	pplacerThreads := threads / 4
	if pplacerThreads < 1 {
		pplacerThreads = 1
	}

	lineageArgs := []string{
		"lineage_wf",
		"-x", c.Extension,
		"-t", strconv.Itoa(threads),
		"--pplacer_threads", strconv.Itoa(pplacerThreads),
		workDir,
		outDir,
	}
	c.Logger.Info("Running CheckM lineage workflow.",
		slog.String("work_dir", workDir),
		slog.String("data_path", c.DataPath),
		slog.Int("threads", threads))

	if diag, err := c.runCommand(ctx, lineageArgs, nil); err != nil {
		return false, diag
	}

	qaArgs := []string{
		"qa",
		filepath.Join(outDir, "lineage.ms"),
		outDir,
		"-o", "2",
		"--tab_table",
	}
	summaryPath := filepath.Join(outDir, SummaryFileName)
	summary, err := os.Create(summaryPath)
	if err != nil {
		return false, fmt.Sprintf("create summary file %s: %v", summaryPath, err)
	}
	diag, runErr := c.runCommand(ctx, qaArgs, summary)
	closeErr := summary.Close()
	if runErr != nil {
		return false, diag
	}
	if closeErr != nil {
		return false, fmt.Sprintf("close summary file %s: %v", summaryPath, closeErr)
	}
	return true, ""
}

// runCommand executes one checkm subcommand, streaming its stdout to the
// debug log (or to a file when stdout is the tool's output) and capturing
// stderr for the diagnostic.
func (c *CheckM) runCommand(ctx context.Context, args []string, stdout *os.File) (string, error) {
	cmd := exec.CommandContext(ctx, "checkm", args...)
	cmd.Env = append(os.Environ(), "CHECKM_DATA_PATH="+c.DataPath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.Logger.Debug("Executing external command.", slog.String("cmd", "checkm "+strings.Join(args, " ")))

	if stdout != nil {
		cmd.Stdout = stdout
		if err := cmd.Run(); err != nil {
			return diagnostic(args, &stderr, err), err
		}
		return "", nil
	}

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Sprintf("checkm %s: stdout pipe: %v", args[0], err), err
	}
	if err := cmd.Start(); err != nil {
		return diagnostic(args, &stderr, err), err
	}
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		c.Logger.Debug("checkm: " + scanner.Text())
	}
	if err := cmd.Wait(); err != nil {
		return diagnostic(args, &stderr, err), err
	}
	return "", nil
}

func diagnostic(args []string, stderr *bytes.Buffer, err error) string {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Sprintf("checkm %s: %s", args[0], msg)
}
