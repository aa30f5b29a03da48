package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"

	"github.com/dshills/docindex-mcp/internal/logging"
)

// Placeholders substituted in command arguments
const (
	PlaceholderPath      = "{path}"
	PlaceholderName      = "{name}"
	PlaceholderOutput    = "{output}"
	PlaceholderRecursive = "{recursive}"
	PlaceholderExts      = "{extensions}"
)

// ErrCommandRequired is returned when the command engine has no argv
var ErrCommandRequired = errors.New("engine command is required")

// CommandEngine indexes documents by running a local program once per file.
// Exit status 0 means the document was indexed.
type CommandEngine struct {
	argv       []string
	folderArgv []string
	logger     *log.Logger
}

// commandResult is the captured output of one process run
type commandResult struct {
	stdout   []byte
	stderr   []byte
	exitCode int
}

// NewCommandEngine creates a CommandEngine. folderArgv is optional and enables
// whole-folder delegation.
func NewCommandEngine(argv, folderArgv []string, logger *log.Logger) (*CommandEngine, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrCommandRequired
	}
	return &CommandEngine{
		argv:       argv,
		folderArgv: folderArgv,
		logger:     logging.OrDiscard(logger),
	}, nil
}

// IndexDocument runs the configured command for one document
func (e *CommandEngine) IndexDocument(ctx context.Context, path, name, outputDir string) (*Response, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	r := strings.NewReplacer(
		PlaceholderPath, path,
		PlaceholderName, name,
		PlaceholderOutput, outputDir,
	)

	res, err := e.run(ctx, expand(e.argv, r))
	if err != nil {
		return nil, err
	}
	if res.exitCode != 0 {
		return &Response{Success: false, Error: failureMessage(res)}, nil
	}
	return &Response{Success: true}, nil
}

// IndexFolder runs the folder command, which must print a JSON summary with
// total_files, files_processed and files_failed on stdout.
func (e *CommandEngine) IndexFolder(ctx context.Context, req FolderRequest) (*FolderSummary, error) {
	if len(e.folderArgv) == 0 {
		return nil, ErrDelegationUnsupported
	}
	r := strings.NewReplacer(
		PlaceholderPath, req.RootPath,
		PlaceholderOutput, req.OutputDir,
		PlaceholderRecursive, strconv.FormatBool(req.Recursive),
		PlaceholderExts, strings.Join(req.Extensions, ","),
	)

	res, err := e.run(ctx, expand(e.folderArgv, r))
	if err != nil {
		return nil, err
	}
	if res.exitCode != 0 {
		return nil, fmt.Errorf("folder command failed: %s", failureMessage(res))
	}

	var summary FolderSummary
	if err := sonic.Unmarshal(bytes.TrimSpace(res.stdout), &summary); err != nil {
		return nil, fmt.Errorf("failed to decode folder summary: %w", err)
	}
	return &summary, nil
}

// run starts the process in its own process group and kills the group if ctx
// ends first
func (e *CommandEngine) run(ctx context.Context, argv []string) (*commandResult, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return nil, fmt.Errorf("command cancelled: %w", ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	e.logger.Debug("engine command finished", "cmd", argv[0], "exit", exitCode)
	return &commandResult{
		stdout:   stdout.Bytes(),
		stderr:   stderr.Bytes(),
		exitCode: exitCode,
	}, nil
}

func expand(argv []string, r *strings.Replacer) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = r.Replace(arg)
	}
	return out
}

// failureMessage returns the last non-empty stderr line, or the exit status
func failureMessage(res *commandResult) string {
	lines := strings.Split(strings.TrimSpace(string(res.stderr)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return fmt.Sprintf("exit status %d", res.exitCode)
}
