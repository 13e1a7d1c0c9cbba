// Package source provides a VideoSource backed by files on disk: a manifest
// listing videos plus optional per-video transcript files.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"gopkg.in/yaml.v3"

	"github.com/allofdaniel/shopping-helper/internal/model"
	"github.com/allofdaniel/shopping-helper/internal/service"
	"github.com/allofdaniel/shopping-helper/internal/textutil"
)

// ManifestNames are tried in order when opening a directory. YAML is a
// superset of JSON, so one decoder reads both.
var ManifestNames = []string{"videos.yaml", "videos.yml", "videos.json"}

// ErrNoManifest is returned when a directory has no manifest file.
var ErrNoManifest = errors.New("no video manifest found")

// ManifestVideo is one video as written in the manifest.
type ManifestVideo struct {
	ID              string            `yaml:"id"`
	Title           string            `yaml:"title"`
	Description     string            `yaml:"description"`
	Channel         string            `yaml:"channel"`
	Transcript      string            `yaml:"transcript"`
	TranscriptFile  string            `yaml:"transcript_file"`
	Tags            []string          `yaml:"tags"`
	Chapters        []ManifestChapter `yaml:"chapters"`
	DurationSeconds int               `yaml:"duration_seconds"`
	ViewCount       int64             `yaml:"view_count"`
}

// ManifestChapter is a chapter marker in the manifest.
type ManifestChapter struct {
	Title string `yaml:"title"`
	Start int    `yaml:"start"`
}

type manifest struct {
	Videos []ManifestVideo `yaml:"videos"`
}

// FileSource serves videos from a manifest directory.
type FileSource struct {
	byID   map[string]*ManifestVideo
	dir    string
	videos []ManifestVideo
}

var _ service.VideoSource = (*FileSource)(nil)

// Open reads the manifest found in dir.
func Open(dir string) (*FileSource, error) {
	for _, name := range ManifestNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path) // #nosec G304 - path is the configured source directory
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		src, err := parse(dir, data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		slog.Debug("Loaded video manifest", "path", path, "videos", len(src.videos))
		return src, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
}

func parse(dir string, data []byte) (*FileSource, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	src := &FileSource{
		dir:    dir,
		videos: m.Videos,
		byID:   make(map[string]*ManifestVideo, len(m.Videos)),
	}
	for i := range src.videos {
		v := &src.videos[i]
		if strings.TrimSpace(v.ID) == "" {
			return nil, fmt.Errorf("video at index %d has no id", i)
		}
		v.Description = DescriptionText(v.Description)
		// Later duplicates are kept in the listing; the orchestrator dedupes.
		if _, ok := src.byID[v.ID]; !ok {
			src.byID[v.ID] = v
		}
	}
	return src, nil
}

// ListCandidateVideos returns the videos whose title, description or tags
// contain every whitespace-separated term of query. An empty query lists all.
func (s *FileSource) ListCandidateVideos(ctx context.Context, query string) ([]model.VideoRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := strings.Fields(textutil.Normalize(query))
	refs := make([]model.VideoRef, 0, len(s.videos))
	for _, v := range s.videos {
		haystack := textutil.Normalize(v.Title + " " + v.Description + " " + strings.Join(v.Tags, " "))
		if !containsAll(haystack, terms) {
			continue
		}
		refs = append(refs, model.VideoRef{
			ID:              v.ID,
			Title:           v.Title,
			Description:     v.Description,
			ChannelName:     v.Channel,
			DurationSeconds: v.DurationSeconds,
			ViewCount:       v.ViewCount,
		})
	}
	return refs, nil
}

// FetchTranscript returns the inline transcript, else the contents of the
// transcript file, else nil.
func (s *FileSource) FetchTranscript(ctx context.Context, videoID string) (*string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.byID[videoID]
	if !ok {
		return nil, fmt.Errorf("video %s: not found in manifest", videoID)
	}
	if v.Transcript != "" {
		text := v.Transcript
		return &text, nil
	}

	path := v.TranscriptFile
	if path == "" {
		path = filepath.Join("transcripts", videoID+".txt")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator's manifest
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript for %s: %w", videoID, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return &text, nil
}

// FetchChapterMetadata returns the manifest chapters; ok is false when the
// video has none.
func (s *FileSource) FetchChapterMetadata(ctx context.Context, videoID string) ([]model.Chapter, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, found := s.byID[videoID]
	if !found || len(v.Chapters) == 0 {
		return nil, false, nil
	}
	chapters := make([]model.Chapter, 0, len(v.Chapters))
	for _, c := range v.Chapters {
		chapters = append(chapters, model.Chapter{Title: c.Title, StartSeconds: c.Start})
	}
	return chapters, true, nil
}

// DescriptionText converts an HTML description to Markdown text; plain text
// passes through unchanged.
func DescriptionText(desc string) string {
	if !looksLikeHTML(desc) {
		return desc
	}
	md, err := htmltomarkdown.ConvertString(desc)
	if err != nil || strings.TrimSpace(md) == "" {
		return desc
	}
	return strings.TrimSpace(md)
}

func looksLikeHTML(s string) bool {
	i := strings.IndexByte(s, '<')
	return i >= 0 && strings.IndexByte(s[i:], '>') > 0
}

func containsAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}
