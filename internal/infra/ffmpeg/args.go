// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"regexp"
	"strings"
)

// ForwardArgs relays a live FLV input to an FLV output without re-encoding.
func ForwardArgs(input, output string) []string {
	return []string{"-f", "flv", "-i", input, "-c", "copy", "-f", "flv", output}
}

// LoopArgs plays a file forever at native rate into an FLV output.
func LoopArgs(input, output string) []string {
	return []string{"-stream_loop", "-1", "-re", "-i", input, "-c", "copy", "-f", "flv", output}
}

// TransmuxArgs remuxes an HLS playlist into a single container file.
func TransmuxArgs(playlist, output string) []string {
	return []string{"-i", playlist, "-c", "copy", "-y", output}
}

// InspectArgs opens input and copies zero seconds of it to the null muxer,
// which makes ffmpeg print the input banner and exit cleanly.
func InspectArgs(input string) []string {
	return []string{"-hide_banner", "-nostdin", "-i", input, "-map", "0", "-c", "copy", "-t", "0", "-f", "null", "-"}
}

var padded = regexp.MustCompile(`= +`)

// IsProgressLine reports whether line is a periodic encoder status line.
func IsProgressLine(line string) bool {
	return strings.Contains(line, "frame=")
}

// NormalizeProgress trims the line and removes the column padding ffmpeg
// puts after '=' in status lines.
func NormalizeProgress(line string) string {
	return padded.ReplaceAllString(strings.TrimSpace(line), "=")
}
