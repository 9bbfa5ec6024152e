package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"subguard/internal/ensemble"
	"subguard/internal/logging"
	"subguard/internal/services"
	"subguard/internal/transcode"
)

// VideoPlaceholder in a command engine's args is replaced with the clip
// path. When no arg contains it the path is appended.
const VideoPlaceholder = "{video}"

// OutputRunner runs a command and returns its stdout.
type OutputRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandEngine asks an external program for a verdict. The program must
// print a JSON object with has_subtitles, confidence, and optional metadata.
type CommandEngine struct {
	name    string
	command string
	args    []string
	run     OutputRunner
	logger  *slog.Logger
}

// NewCommandEngine constructs a CommandEngine.
func NewCommandEngine(name, command string, args []string, logger *slog.Logger) *CommandEngine {
	return &CommandEngine{
		name:    name,
		command: command,
		args:    append([]string(nil), args...),
		run:     transcode.CommandOutput,
		logger:  logging.NewComponentLogger(logger, "command-engine"),
	}
}

// WithRunner allows injecting a custom runner for tests.
func (e *CommandEngine) WithRunner(r OutputRunner) {
	if e != nil && r != nil {
		e.run = r
	}
}

type commandVerdict struct {
	HasSubtitles *bool          `json:"has_subtitles"`
	Confidence   *float64       `json:"confidence"`
	Metadata     map[string]any `json:"metadata"`
}

// Detect implements ensemble.Engine.
func (e *CommandEngine) Detect(ctx context.Context, videoPath string) (ensemble.Vote, error) {
	args := e.expandArgs(videoPath)
	e.logger.Debug("running command engine",
		logging.String(logging.FieldEngine, e.name),
		logging.String("command", e.command),
		logging.String("args", strings.Join(args, " ")),
	)
	out, err := e.run(ctx, e.command, args...)
	if err != nil {
		marker := services.ErrExternalTool
		if ctx.Err() != nil {
			marker = services.ErrTimeout
		}
		return ensemble.Vote{}, services.Wrap(marker, "validate", e.name, "command failed", err)
	}
	return parseVerdict(e.name, out)
}

func (e *CommandEngine) expandArgs(videoPath string) []string {
	args := make([]string, 0, len(e.args)+1)
	replaced := false
	for _, arg := range e.args {
		if strings.Contains(arg, VideoPlaceholder) {
			arg = strings.ReplaceAll(arg, VideoPlaceholder, videoPath)
			replaced = true
		}
		args = append(args, arg)
	}
	if !replaced {
		args = append(args, videoPath)
	}
	return args
}

// parseVerdict reads the last JSON object line on stdout so tools may print
// progress before their answer.
func parseVerdict(name string, out []byte) (ensemble.Vote, error) {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var v commandVerdict
		if err := json.Unmarshal(line, &v); err != nil {
			return ensemble.Vote{}, services.Wrap(services.ErrDetector, "validate", name, "decode verdict", err)
		}
		if v.HasSubtitles == nil || v.Confidence == nil {
			return ensemble.Vote{}, services.Wrap(services.ErrDetector, "validate", name,
				"verdict must include has_subtitles and confidence", nil)
		}
		if *v.Confidence < 0 || *v.Confidence > 1 {
			return ensemble.Vote{}, services.Wrap(services.ErrDetector, "validate", name,
				fmt.Sprintf("confidence %v outside [0,1]", *v.Confidence), nil)
		}
		return ensemble.Vote{HasSubtitles: *v.HasSubtitles, Confidence: *v.Confidence, Metadata: v.Metadata}, nil
	}
	return ensemble.Vote{}, services.Wrap(services.ErrDetector, "validate", name, "no JSON verdict on stdout", nil)
}
