// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoMedia is returned by Inspect when the input has no video or audio stream.
var ErrNoMedia = errors.New("no audio or video stream")

// Format describes the container of an inspected input.
type Format struct {
	Name string `json:"format_name,omitempty"`
	// Duration is in seconds; empty when ffmpeg cannot tell.
	Duration string `json:"duration"`
	Bitrate  string `json:"bit_rate"`
	Streams  int    `json:"nb_streams"`
	HasVideo bool   `json:"has_video"`
	HasAudio bool   `json:"has_audio"`
}

// VideoStream is the first video stream of an inspected input.
type VideoStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Profile   string `json:"profile,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	PixFormat string `json:"pix_fmt,omitempty"`
	Bitrate   string `json:"bit_rate,omitempty"`
}

// AudioStream is the first audio stream of an inspected input.
type AudioStream struct {
	CodecType     string `json:"codec_type"`
	CodecName     string `json:"codec_name"`
	Profile       string `json:"profile,omitempty"`
	SampleFormat  string `json:"sample_fmt,omitempty"`
	SampleRate    string `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout,omitempty"`
	Bitrate       string `json:"bit_rate,omitempty"`
}

// MediaInfo is what Inspect learns about an input.
type MediaInfo struct {
	Format Format
	Video  *VideoStream
	Audio  *AudioStream
}

// Inspect runs ffmpeg against input and parses the banner it prints.
func Inspect(ctx context.Context, l Launcher, input string, logger zerolog.Logger) (MediaInfo, error) {
	lines, err := RunCapture(ctx, l, Spec{Args: InspectArgs(input)}, logger)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("inspect %s: %w", input, err)
	}
	info := ParseBanner(lines)
	if info.Video == nil && info.Audio == nil {
		return info, fmt.Errorf("inspect %s: %w", input, ErrNoMedia)
	}
	return info, nil
}

var (
	inputLine    = regexp.MustCompile(`^Input #0, (.+), from `)
	durationLine = regexp.MustCompile(`^\s*Duration: ([^,]+),.*bitrate: (\S+)`)
	streamLine   = regexp.MustCompile(`^\s*Stream #0:\d+\S*: (\w+): (.+)$`)
	dimensions   = regexp.MustCompile(`^(\d+)x(\d+)\b`)
	kbps         = regexp.MustCompile(`^(\d+) kb/s`)
	sampleRate   = regexp.MustCompile(`^(\d+) Hz$`)
	channelCount = regexp.MustCompile(`^(\d+) channels$`)
)

var layouts = map[string]int{
	"mono": 1, "stereo": 2, "2.1": 3, "3.0": 3, "quad": 4, "4.0": 4,
	"5.0": 5, "5.1": 6, "6.1": 7, "7.1": 8,
}

// ParseBanner reads the first input section of ffmpeg's stderr. Only the
// first video and the first audio stream are described.
func ParseBanner(lines []string) MediaInfo {
	var info MediaInfo
	in := false
	for _, line := range lines {
		if m := inputLine.FindStringSubmatch(line); m != nil {
			in = true
			info.Format.Name = m[1]
			continue
		}
		if !in {
			continue
		}
		if strings.HasPrefix(line, "Input #") || strings.HasPrefix(line, "Output #") || strings.HasPrefix(line, "Stream mapping:") {
			break
		}
		if m := durationLine.FindStringSubmatch(line); m != nil {
			info.Format.Duration = seconds(m[1])
			info.Format.Bitrate = bitsPerSecond(m[2])
			continue
		}
		m := streamLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		info.Format.Streams++
		switch m[1] {
		case "Video":
			if info.Video == nil {
				info.Video = parseVideo(m[2])
				info.Format.HasVideo = true
			}
		case "Audio":
			if info.Audio == nil {
				info.Audio = parseAudio(m[2])
				info.Format.HasAudio = true
			}
		}
	}
	return info
}

func parseVideo(desc string) *VideoStream {
	fields := splitFields(desc)
	v := &VideoStream{CodecType: "video"}
	v.CodecName, v.Profile = codec(fields[0])
	for i, f := range fields[1:] {
		if i == 0 && !dimensions.MatchString(f) {
			v.PixFormat, _, _ = strings.Cut(f, "(")
			continue
		}
		if m := dimensions.FindStringSubmatch(f); m != nil && v.Width == 0 {
			v.Width, _ = strconv.Atoi(m[1])
			v.Height, _ = strconv.Atoi(m[2])
			continue
		}
		if m := kbps.FindStringSubmatch(f); m != nil {
			v.Bitrate = m[1] + "000"
		}
	}
	return v
}

func parseAudio(desc string) *AudioStream {
	fields := splitFields(desc)
	a := &AudioStream{CodecType: "audio"}
	a.CodecName, a.Profile = codec(fields[0])
	// The sample format follows the channel layout.
	channels := false
	for _, f := range fields[1:] {
		if m := sampleRate.FindStringSubmatch(f); m != nil {
			a.SampleRate = m[1]
			continue
		}
		if m := kbps.FindStringSubmatch(f); m != nil {
			a.Bitrate = m[1] + "000"
			continue
		}
		if m := channelCount.FindStringSubmatch(f); m != nil && !channels {
			a.Channels, _ = strconv.Atoi(m[1])
			channels = true
			continue
		}
		layout, _, _ := strings.Cut(f, "(")
		if n, ok := layouts[layout]; ok && !channels {
			a.Channels = n
			a.ChannelLayout = f
			channels = true
			continue
		}
		if channels && a.SampleFormat == "" {
			a.SampleFormat, _, _ = strings.Cut(f, " ")
		}
	}
	return a
}

// codec splits "h264 (High) (avc1 / 0x31637661)" into its name and profile.
// The parenthesized tag with a slash is the container fourcc, not a profile.
func codec(field string) (name, profile string) {
	name, rest, _ := strings.Cut(field, " ")
	for rest != "" {
		open := strings.IndexByte(rest, '(')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], ')')
		if end < 0 {
			break
		}
		group := rest[open+1 : open+end]
		rest = rest[open+end+1:]
		if !strings.Contains(group, " / ") {
			return name, group
		}
	}
	return name, ""
}

// splitFields splits a stream description on the commas that are not inside
// parentheses or brackets.
func splitFields(desc string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range desc {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(desc[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(desc[start:]))
}

// seconds converts an HH:MM:SS.ff banner duration to seconds.
func seconds(hms string) string {
	parts := strings.Split(strings.TrimSpace(hms), ":")
	if len(parts) != 3 {
		return ""
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return ""
		}
		total = total*60 + v
	}
	return strconv.FormatFloat(total, 'f', 6, 64)
}

func bitsPerSecond(kb string) string {
	if _, err := strconv.Atoi(kb); err != nil {
		return ""
	}
	return kb + "000"
}
