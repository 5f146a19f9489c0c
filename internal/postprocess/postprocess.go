// Package postprocess spawns external artifact post-processors: a
// configured command receives an artifact's raw bytes on stdin and the
// run's name/url as environment variables, and its stdout is substituted
// for the artifact's contents before classification.
package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Run executes command with contents on stdin and runName/runURL exported
// as BUILD_PULSE_RUN_NAME and BUILD_PULSE_RUN_URL. The subprocess is killed
// if ctx is canceled before it exits, via exec.CommandContext.
//
// A failing post-processor (nonzero exit, spawn error) never aborts the
// pull: the caller gets an empty result plus the error, classified as
// bperrors.Subprocess so the entry point logs and continues rather than
// treating it as fatal.
func Run(ctx context.Context, command string, args []string, contents []byte, runName, runURL string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = bytes.NewReader(contents)
	cmd.Env = append(cmd.Environ(),
		"BUILD_PULSE_RUN_NAME="+runName,
		"BUILD_PULSE_RUN_URL="+runURL,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("postprocess: running %q: %w (stderr: %s)", command, err, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}
