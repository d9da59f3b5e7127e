// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ManuGH/livegate/internal/fsutil"
	"github.com/ManuGH/livegate/internal/infra/ffmpeg"
	"github.com/ManuGH/livegate/internal/log"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidSource rejects files a virtual-live platform cannot loop.
var ErrInvalidSource = errors.New("invalid source file")

// VideoExtensions are the upload suffixes accepted for looping.
var VideoExtensions = []string{".mp4", ".flv", ".ts"}

// Library keeps uploads for virtual-live platforms and owns the files the
// platforms have selected. Uploads are staged in one directory and moved to
// the library directory once a platform selects them.
type Library struct {
	uploadDir string
	dir       string
	configs   *ConfigStore
	launcher  ffmpeg.Launcher
	logger    zerolog.Logger
}

// NewLibrary creates both directories when missing.
func NewLibrary(uploadDir, dir string, configs *ConfigStore, launcher ffmpeg.Launcher) (*Library, error) {
	for _, d := range []*string{&uploadDir, &dir} {
		abs, err := filepath.Abs(*d)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(abs, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", abs, err)
		}
		*d = abs
	}
	return &Library{
		uploadDir: uploadDir,
		dir:       dir,
		configs:   configs,
		launcher:  launcher,
		logger:    log.WithComponent("task.library"),
	}, nil
}

// Kind returns the task family whose configs the library updates.
func (l *Library) Kind() Kind { return l.configs.Kind() }

// Upload stores r under a fresh uuid with the extension of name.
func (l *Library) Upload(name string, r io.Reader) (SourceFile, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(VideoExtensions, ext) {
		return SourceFile{}, fmt.Errorf("%w: extension %q not in %v", ErrInvalidSource, ext, VideoExtensions)
	}

	id := uuid.NewString()
	target := filepath.Join(l.uploadDir, id+ext)
	pf, err := renameio.NewPendingFile(target, renameio.WithPermissions(0o640))
	if err != nil {
		return SourceFile{}, err
	}
	defer func() { _ = pf.Cleanup() }()

	n, err := io.Copy(pf, r)
	if err != nil {
		return SourceFile{}, fmt.Errorf("write %s: %w", target, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return SourceFile{}, err
	}

	l.logger.Info().
		Str(log.FieldEvent, "library.uploaded").
		Str(log.FieldPath, target).
		Int64(log.FieldSize, n).
		Str("name", name).
		Msg("source uploaded")
	return SourceFile{UUID: id, Name: filepath.Base(name), Type: SourceUpload, Size: n, Target: target}, nil
}

// Select inspects files, moves uploads into the library and makes them the
// sources of platform. The uploads named in files are removed whether or not
// selection succeeds. Files the platform used before are deleted.
func (l *Library) Select(ctx context.Context, platform string, files []SourceFile) ([]SourceFile, error) {
	platform = strings.TrimSpace(platform)
	if platform == "" || strings.Contains(platform, "@") {
		return nil, fmt.Errorf("%w: no platform", ErrInvalidPlatformConfig)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidPlatformConfig)
	}

	selected := make([]SourceFile, 0, len(files))
	var uploads []string
	defer func() {
		for _, u := range uploads {
			if err := os.Remove(u); err != nil && !errors.Is(err, fs.ErrNotExist) {
				l.logger.Warn().Err(err).Str(log.FieldPath, u).Msg("remove upload")
			}
		}
	}()

	for _, f := range files {
		if _, err := uuid.Parse(f.UUID); err != nil {
			return nil, fmt.Errorf("%w: uuid %q", ErrInvalidSource, f.UUID)
		}
		if f.Target == "" {
			return nil, fmt.Errorf("%w: no target", ErrInvalidSource)
		}
		if f.Type == SourceStream {
			if err := checkStreamURL(f.Target); err != nil {
				return nil, err
			}
			selected = append(selected, f)
			continue
		}

		f.Type = SourceUpload
		resolved, err := confine(l.uploadDir, f.Target)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
		}
		uploads = append(uploads, resolved)
		f.Target = resolved
		selected = append(selected, f)
	}

	for i, f := range selected {
		if f.Type != SourceStream {
			if err := fsutil.IsRegularFile(f.Target); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
			}
		}
		info, err := ffmpeg.Inspect(ctx, l.launcher, f.Target, l.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
		}
		selected[i].Format, selected[i].Video, selected[i].Audio = &info.Format, info.Video, info.Audio
	}

	for i, f := range selected {
		if f.Type == SourceStream {
			continue
		}
		dst := filepath.Join(l.dir, f.UUID+filepath.Ext(f.Target))
		if err := os.Rename(f.Target, dst); err != nil {
			return nil, fmt.Errorf("move %s: %w", f.Target, err)
		}
		selected[i].Target = dst
	}

	previous, err := l.configs.SetFiles(ctx, platform, selected)
	if err != nil {
		return nil, err
	}
	l.removeReplaced(previous, selected)

	l.logger.Info().
		Str(log.FieldEvent, "library.selected").
		Str(log.FieldPlatform, platform).
		Int(log.FieldFiles, len(selected)).
		Str(log.FieldInput, selected[0].Target).
		Msg("platform sources updated")
	return selected, nil
}

// removeReplaced deletes the library files of previous that selected no
// longer uses. Paths outside the library are left alone.
func (l *Library) removeReplaced(previous, selected []SourceFile) {
	kept := make(map[string]bool, len(selected))
	for _, f := range selected {
		kept[f.Target] = true
	}
	for _, f := range previous {
		if f.Type == SourceStream || kept[f.Target] {
			continue
		}
		path, err := confine(l.dir, f.Target)
		if err != nil {
			l.logger.Warn().Err(err).Str(log.FieldPath, f.Target).Msg("replaced source outside library")
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("remove replaced source")
			continue
		}
		l.logger.Debug().Str(log.FieldPath, path).Msg("replaced source removed")
	}
}

// confine resolves target, absolute or relative to root, and fails unless
// it lies inside root.
func confine(root, target string) (string, error) {
	rel := target
	if filepath.IsAbs(target) {
		var err error
		if rel, err = filepath.Rel(root, target); err != nil {
			return "", err
		}
	}
	return fsutil.ConfineRelPath(root, rel)
}

func checkStreamURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	switch u.Scheme {
	case "rtmp":
		return nil
	case "http", "https":
		if strings.HasSuffix(u.Path, ".flv") || strings.HasSuffix(u.Path, ".m3u8") {
			return nil
		}
		return fmt.Errorf("%w: stream path %q is neither .flv nor .m3u8", ErrInvalidSource, u.Path)
	default:
		return fmt.Errorf("%w: stream scheme %q", ErrInvalidSource, u.Scheme)
	}
}
