package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dshills/docindex-mcp/internal/engine"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// DefaultMaxErrorLen bounds the error text kept in an Outcome
const DefaultMaxErrorLen = 512

// FileTask indexes exactly one file. Run never returns an error and never
// panics; every failure is reported in the Outcome.
type FileTask struct {
	Engine      engine.Engine
	Path        string
	Name        string
	OutputDir   string
	MaxErrorLen int
}

// Run calls the engine and records the result
func (t FileTask) Run(ctx context.Context) (outcome types.Outcome) {
	name := t.Name
	if name == "" {
		name = filepath.Base(t.Path)
	}
	outcome = types.Outcome{Path: t.Path, Name: name}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome.Status = types.StatusFailed
			outcome.Error = SanitizeError(fmt.Sprintf("engine panic: %v", r), t.maxErrorLen())
		}
		outcome.Duration = types.Millis(time.Since(start))
	}()

	resp, err := t.Engine.IndexDocument(ctx, t.Path, name, t.OutputDir)
	switch {
	case err != nil:
		outcome.Status = types.StatusFailed
		outcome.Error = SanitizeError(err.Error(), t.maxErrorLen())
	case resp == nil:
		outcome.Status = types.StatusFailed
		outcome.Error = "engine returned no response"
	case !resp.Success:
		outcome.Status = types.StatusFailed
		msg := resp.Error
		if msg == "" {
			msg = "engine reported failure"
		}
		outcome.Error = SanitizeError(msg, t.maxErrorLen())
	default:
		outcome.Status = types.StatusSuccess
	}
	return outcome
}

func (t FileTask) maxErrorLen() int {
	if t.MaxErrorLen <= 0 {
		return DefaultMaxErrorLen
	}
	return t.MaxErrorLen
}

// SanitizeError collapses whitespace to single spaces and truncates msg to
// maxLen runes, marking truncation with "...".
func SanitizeError(msg string, maxLen int) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if maxLen <= 0 || utf8.RuneCountInString(msg) <= maxLen {
		return msg
	}
	const ellipsis = "..."
	if maxLen <= len(ellipsis) {
		return string([]rune(msg)[:maxLen])
	}
	return string([]rune(msg)[:maxLen-len(ellipsis)]) + ellipsis
}
