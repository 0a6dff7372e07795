package ffmpeg

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// stderrTailLines is how many stderr lines are kept for error reports.
const stderrTailLines = 100

// ExitError reports a failed ffmpeg run together with its last stderr lines.
type ExitError struct {
	Command string
	Err     error
	Stderr  []string
}

func (e *ExitError) Error() string {
	if len(e.Stderr) == 0 {
		return fmt.Sprintf("ffmpeg failed: %v", e.Err)
	}
	// the last few lines normally hold the actual reason
	tail := e.Stderr[max(0, len(e.Stderr)-5):]
	return fmt.Sprintf("ffmpeg failed: %v: %s", e.Err, strings.Join(tail, "; "))
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Process is a running ffmpeg child. Stdin and Stdout are only set when the
// command reads from pipe:0 or writes to pipe:1.
type Process struct {
	command *Command
	cmd     *exec.Cmd
	started time.Time

	stdin  io.WriteCloser
	stdout io.ReadCloser
	in     io.Writer
	out    io.Reader

	stderr     *stderrBuffer
	stderrDone chan struct{}
	onLine     func(string)

	monitor *ProcessMonitor

	waitOnce sync.Once
	waitErr  error
}

// Stdin returns the writer feeding ffmpeg's input, or nil.
func (p *Process) Stdin() io.Writer {
	return p.in
}

// Stdout returns the reader draining ffmpeg's output, or nil.
func (p *Process) Stdout() io.Reader {
	return p.out
}

// CloseStdin signals end of input so ffmpeg flushes delayed output and exits.
func (p *Process) CloseStdin() error {
	if p.stdin == nil {
		return nil
	}
	return p.stdin.Close()
}

// Wait waits for ffmpeg to exit. Callers must have finished reading Stdout.
// It is safe to call more than once.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		<-p.stderrDone
		err := p.cmd.Wait()
		p.monitor.Stop()
		if err != nil {
			p.waitErr = &ExitError{
				Command: p.command.String(),
				Err:     err,
				Stderr:  p.stderr.Lines(),
			}
		}
	})
	return p.waitErr
}

// Kill terminates the process.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// PID returns the child's process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Duration returns how long the process has been running.
func (p *Process) Duration() time.Duration {
	return time.Since(p.started)
}

// Stats returns the latest resource sample.
func (p *Process) Stats() ProcessStats {
	return p.monitor.Stats()
}

// StderrLines returns the most recent stderr lines.
func (p *Process) StderrLines() []string {
	return p.stderr.Lines()
}

// String returns the command line.
func (p *Process) String() string {
	return p.command.String()
}

// captureStderr reads ffmpeg stderr into the ring buffer and optionally a log file.
func (p *Process) captureStderr(stderr io.Reader, logPath string) {
	defer close(p.stderrDone)

	var logFile *os.File
	if logPath != "" {
		var err error
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			p.stderr.Add(fmt.Sprintf("failed to open ffmpeg log file %s: %v", logPath, err))
		} else {
			defer logFile.Close()
			fmt.Fprintf(logFile, "\n=== FFmpeg session started at %s ===\n", time.Now().Format(time.RFC3339))
			fmt.Fprintf(logFile, "Command: %s\n\n", p.command.String())
		}
	}

	scanner := newStderrScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.stderr.Add(line)
		if p.onLine != nil {
			p.onLine(line)
		}
		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}
	}
	// keep draining so ffmpeg never blocks on a full stderr pipe
	_, _ = io.Copy(io.Discard, stderr)

	if logFile != nil {
		fmt.Fprintf(logFile, "\n=== FFmpeg session ended at %s ===\n", time.Now().Format(time.RFC3339))
	}
}

// stderrBuffer keeps the last max lines.
type stderrBuffer struct {
	mu    sync.RWMutex
	lines []string
	max   int
}

func newStderrBuffer(maxLines int) *stderrBuffer {
	return &stderrBuffer{lines: make([]string, 0, maxLines), max: maxLines}
}

// Add appends a line, dropping the oldest when full.
func (b *stderrBuffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.max {
		b.lines = b.lines[1:]
	}
	b.lines = append(b.lines, line)
}

// Lines returns a copy of the buffered lines.
func (b *stderrBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lines := make([]string, len(b.lines))
	copy(lines, b.lines)
	return lines
}
