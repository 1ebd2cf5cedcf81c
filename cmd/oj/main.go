// Command oj is the client: it connects to a running ojd daemon over its
// UNIX-domain socket, sends one framed request, prints the response, and
// exits. It never touches the write-ahead log directly.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/alfredjeanlab/oj/internal/daemon"
	"github.com/alfredjeanlab/oj/internal/event"
	"github.com/alfredjeanlab/oj/internal/fsutil"
	"github.com/alfredjeanlab/oj/internal/logging"
	"github.com/alfredjeanlab/oj/internal/protocol"
)

// CLI is the client's command-line interface.
type CLI struct {
	Run        RunCmd        `cmd:"" help:"Start a pipeline, or invoke a named command."`
	Pipeline   PipelineCmd   `cmd:"" help:"Inspect pipelines."`
	Done       DoneCmd       `cmd:"" help:"Signal completion of the current phase."`
	Checkpoint CheckpointCmd `cmd:"" help:"Force an immediate WAL snapshot."`
	Daemon     DaemonCmd     `cmd:"" help:"Start, stop, or tail the logs of the daemon."`

	ProjectRoot string `name:"project-root" help:"Project root; state lives under <root>/.oj." type:"path" env:"OJ_PROJECT_ROOT"`
	Format      string `help:"Output format: text or json." enum:"text,json" default:"text"`
	LogLevel    string `help:"Log level (debug, info, warn, error)." env:"OJ_LOG_LEVEL"`
}

func main() {
	_ = godotenv.Load(".env.local", ".env")

	var cli CLI
	kctx := kong.Parse(&cli, kong.Name("oj"), kong.Description("Workflow orchestrator client."))

	logging.Init(logging.ParseLevel(cli.LogLevel), os.Stderr, "simple")

	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "oj: %v\n", err)
		os.Exit(1)
	}
}

func stateDir(cli *CLI) (string, error) {
	root := cli.ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		root = wd
	}
	return fsutil.EnsureStateDir(root)
}

// roundTrip dials the daemon's socket, sends req, and returns its response.
func roundTrip(dir string, req protocol.Request) (protocol.Response, error) {
	sockPath := fsutil.SocketPath(dir)
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connect to daemon at %s: %w (is it running? try `oj daemon start`)", sockPath, err)
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, req); err != nil {
		return protocol.Response{}, fmt.Errorf("send request: %w", err)
	}
	resp, err := protocol.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// printResponse renders resp per the client's --format flag, returning an
// error (causing a nonzero exit) when the daemon reported one.
func printResponse(format string, resp protocol.Response) error {
	if format == "json" {
		b, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		fmt.Println(string(b))
	} else {
		printResponseText(resp)
	}
	if resp.Kind == protocol.ResponseError {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

func printResponseText(resp protocol.Response) {
	switch resp.Kind {
	case protocol.ResponseOk:
		fmt.Println("ok")
	case protocol.ResponseError:
		// handled by the caller's nonzero exit; nothing to print beyond the error itself.
	case protocol.ResponsePipelines:
		for _, p := range resp.Pipelines {
			fmt.Printf("%-36s %-16s %-12s %s\n", p.ID, p.Name, p.Phase, p.Status)
		}
	case protocol.ResponsePipeline:
		p := resp.Pipeline
		fmt.Printf("id:       %s\n", p.ID)
		fmt.Printf("name:     %s\n", p.Name)
		fmt.Printf("kind:     %s\n", p.Kind)
		fmt.Printf("phase:    %s\n", p.Phase)
		fmt.Printf("status:   %s\n", p.Status)
		if p.SessionID != "" {
			fmt.Printf("session:  %s\n", p.SessionID)
		}
		if p.WorkspacePath != "" {
			fmt.Printf("worktree: %s\n", p.WorkspacePath)
		}
		if p.Error != "" {
			fmt.Printf("error:    %s\n", p.Error)
		}
	case protocol.ResponseStatus:
		s := resp.Status
		fmt.Printf("uptime:            %ds\n", s.UptimeSecs)
		fmt.Printf("pipelines active:  %d\n", s.PipelinesActive)
		fmt.Printf("sessions active:   %d\n", s.SessionsActive)
		fmt.Printf("locks held/stale:  %d/%d\n", s.LocksHeld, s.LocksStale)
	}
}

// RunCmd starts a pipeline (or invokes a named top-level command) by name,
// with trailing key=value pairs passed through as inputs.
type RunCmd struct {
	Command string   `arg:"" help:"Pipeline kind or named command to invoke."`
	Inputs  []string `arg:"" optional:"" help:"key=value pairs passed as pipeline inputs."`
}

func (c *RunCmd) Run(cli *CLI) error {
	args, err := parseKV(c.Inputs)
	if err != nil {
		return err
	}
	dir, err := stateDir(cli)
	if err != nil {
		return err
	}
	resp, err := roundTrip(dir, protocol.NewEventRequest(event.CommandInvoked(c.Command, args)))
	if err != nil {
		return err
	}
	return printResponse(cli.Format, resp)
}

func parseKV(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid input %q: expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

// PipelineCmd groups read-only pipeline inspection subcommands.
type PipelineCmd struct {
	List PipelineListCmd `cmd:"" help:"List all pipelines."`
	Show PipelineShowCmd `cmd:"" help:"Show one pipeline's detail."`
}

// PipelineListCmd lists every pipeline the daemon knows about.
type PipelineListCmd struct{}

func (c *PipelineListCmd) Run(cli *CLI) error {
	dir, err := stateDir(cli)
	if err != nil {
		return err
	}
	resp, err := roundTrip(dir, protocol.NewQueryPipelinesRequest())
	if err != nil {
		return err
	}
	return printResponse(cli.Format, resp)
}

// PipelineShowCmd shows one pipeline, resolved by exact id or unique prefix.
type PipelineShowCmd struct {
	ID string `arg:"" help:"Pipeline id or unique prefix."`
}

func (c *PipelineShowCmd) Run(cli *CLI) error {
	dir, err := stateDir(cli)
	if err != nil {
		return err
	}
	resp, err := roundTrip(dir, protocol.NewQueryPipelineRequest(c.ID))
	if err != nil {
		return err
	}
	return printResponse(cli.Format, resp)
}

// DoneCmd signals that the phase running in this session has finished,
// resolving the owning pipeline from the agent session's own environment.
type DoneCmd struct {
	Error string `help:"Report failure with this message instead of success."`
}

func (c *DoneCmd) Run(cli *CLI) error {
	pipelineID := currentPipelineID()
	if pipelineID == "" {
		return fmt.Errorf("OJ_PIPELINE is not set; run `oj done` from inside an agent session")
	}

	var ev event.Event
	if c.Error != "" {
		ev = event.AgentError(pipelineID, c.Error)
	} else {
		ev = event.AgentDone(pipelineID)
	}

	dir, err := stateDir(cli)
	if err != nil {
		return err
	}
	resp, err := roundTrip(dir, protocol.NewEventRequest(ev))
	if err != nil {
		return err
	}
	return printResponse(cli.Format, resp)
}

// currentPipelineID resolves the pipeline bound to the calling agent
// session. OJ_PIPELINE is set by the executor on every spawned session;
// OTTER_PIPELINE is accepted too since some runbooks' agent commands expect
// the older variable name.
func currentPipelineID() string {
	if v := os.Getenv("OJ_PIPELINE"); v != "" {
		return v
	}
	return os.Getenv("OTTER_PIPELINE")
}

// CheckpointCmd forces an out-of-band WAL snapshot.
type CheckpointCmd struct{}

func (c *CheckpointCmd) Run(cli *CLI) error {
	dir, err := stateDir(cli)
	if err != nil {
		return err
	}
	resp, err := roundTrip(dir, protocol.NewCheckpointRequest())
	if err != nil {
		return err
	}
	return printResponse(cli.Format, resp)
}

// DaemonCmd groups daemon lifecycle subcommands: these manage the ojd
// process directly rather than talking over its socket.
type DaemonCmd struct {
	Start DaemonStartCmd `cmd:"" help:"Spawn ojd in the background."`
	Stop  DaemonStopCmd  `cmd:"" help:"Ask a running ojd to shut down."`
	Logs  DaemonLogsCmd  `cmd:"" help:"Tail the daemon's log file."`
}

// DaemonStartCmd spawns ojd as a detached background process.
type DaemonStartCmd struct {
	Runbook string `help:"Path to the runbook TOML file." default:"runbook.toml"`
}

func (c *DaemonStartCmd) Run(cli *CLI) error {
	dir, err := stateDir(cli)
	if err != nil {
		return err
	}
	if daemon.IsRunning(dir) {
		fmt.Println("daemon already running")
		return nil
	}

	ojdPath, err := exec.LookPath("ojd")
	if err != nil {
		return fmt.Errorf("find ojd binary: %w", err)
	}

	logPath := fsutil.LogFilePath(dir)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon log %s: %w", logPath, err)
	}
	defer logFile.Close()

	args := []string{"serve", "--runbook", c.Runbook}
	if cli.ProjectRoot != "" {
		args = append(args, "--project-root", cli.ProjectRoot)
	}
	cmd := exec.Command(ojdPath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ojd: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		slog.Warn("oj: release daemon process handle failed", "error", err)
	}

	fmt.Printf("daemon started, pid %d, logging to %s\n", cmd.Process.Pid, logPath)
	return nil
}

// DaemonStopCmd asks a running daemon to shut down gracefully.
type DaemonStopCmd struct{}

func (c *DaemonStopCmd) Run(cli *CLI) error {
	dir, err := stateDir(cli)
	if err != nil {
		return err
	}
	if !daemon.IsRunning(dir) {
		fmt.Println("daemon not running")
		return nil
	}
	resp, err := roundTrip(dir, protocol.NewShutdownRequest())
	if err != nil {
		return err
	}
	return printResponse(cli.Format, resp)
}

// DaemonLogsCmd tails the daemon's log file.
type DaemonLogsCmd struct {
	Follow bool `short:"f" help:"Keep reading as new lines are appended."`
	Lines  int  `short:"n" help:"Number of trailing lines to show first." default:"50"`
}

func (c *DaemonLogsCmd) Run(cli *CLI) error {
	dir, err := stateDir(cli)
	if err != nil {
		return err
	}
	logPath := fsutil.LogFilePath(dir)

	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open daemon log %s: %w", logPath, err)
	}
	defer f.Close()

	if err := printTail(f, c.Lines); err != nil {
		return err
	}
	if !c.Follow {
		return nil
	}

	for {
		b := make([]byte, 4096)
		n, err := f.Read(b)
		if n > 0 {
			os.Stdout.Write(b[:n])
		}
		if err == io.EOF {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		if err != nil {
			return fmt.Errorf("read daemon log: %w", err)
		}
	}
}

// printTail prints up to the last n lines of f, read from the start since
// log files are append-only and typically small enough to scan in full.
func printTail(f *os.File, n int) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lines := make([]string, 0, n)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan daemon log: %w", err)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
