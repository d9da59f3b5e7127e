// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Run starts spec, logs its output at debug level and blocks until it exits.
// A non-zero exit code is an error carrying the last stderr lines.
func Run(ctx context.Context, l Launcher, spec Spec, logger zerolog.Logger) error {
	_, err := RunCapture(ctx, l, spec, logger)
	return err
}

// RunCapture is Run that also returns the stderr lines it received.
func RunCapture(ctx context.Context, l Launcher, spec Spec, logger zerolog.Logger) ([]string, error) {
	p, err := l.Start(ctx, spec)
	if err != nil {
		return nil, err
	}

	var lines []string

	stdout, stderr := p.Stdout(), p.Stderr()
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			logger.Debug().Str("stream", "stdout").Msg(line)
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			lines = append(lines, line)
			logger.Debug().Str("stream", "stderr").Msg(line)
		}
	}
	<-p.Done()

	exit := p.Exit()
	if exit.Err != nil {
		return lines, fmt.Errorf("encoder failed: %w", exit.Err)
	}
	if exit.Code != 0 {
		diag := p.Diagnostics()
		if len(diag) > 5 {
			diag = diag[len(diag)-5:]
		}
		return lines, fmt.Errorf("encoder exited with code %d: %s", exit.Code, strings.Join(diag, " | "))
	}
	return lines, nil
}
