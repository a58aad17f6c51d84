package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jzx17/storecheck/pkg/types"
)

// Format is the serialization used for run artifacts.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses "json" or "yaml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown artifact format %q (want json or yaml)", s)
	}
}

const (
	runsDir      = "runs"
	summaryDir   = "summary"
	artifactsDir = "artifacts"
)

// FileStore writes one file per run under <root>/runs and aggregate summaries
// under <root>/summary.
type FileStore struct {
	root   string
	format Format
}

// StoreOption configures a FileStore.
type StoreOption func(*FileStore)

// WithFormat selects JSON (default) or YAML artifacts.
func WithFormat(format Format) StoreOption {
	return func(s *FileStore) {
		s.format = format
	}
}

// NewFileStore creates a store rooted at root.
func NewFileStore(root string, opts ...StoreOption) *FileStore {
	s := &FileStore{root: root, format: FormatJSON}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the storage root.
func (s *FileStore) Root() string { return s.root }

// RunsDir returns the per-run artifact directory.
func (s *FileStore) RunsDir() string { return filepath.Join(s.root, runsDir) }

// SummaryDir returns the aggregate artifact directory.
func (s *FileStore) SummaryDir() string { return filepath.Join(s.root, summaryDir) }

// ArtifactsDir returns the directory for binary artifacts such as screenshots.
func (s *FileStore) ArtifactsDir() string { return filepath.Join(s.root, artifactsDir) }

// Save writes the run atomically and returns the file path.
func (s *FileStore) Save(run *RunContext) (string, error) {
	data, err := s.encode(run)
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", run.Metadata.ID, err)
	}

	at := run.Metadata.StartedAt
	if run.Metadata.CompletedAt != nil {
		at = *run.Metadata.CompletedAt
	}
	path, err := s.availablePath(s.RunsDir(), FileName(run.Metadata.Name, at, s.ext()))
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a run artifact. A bare file name is resolved inside RunsDir.
func (s *FileStore) Load(path string) (RunContext, error) {
	if !strings.ContainsRune(path, filepath.Separator) {
		path = filepath.Join(s.RunsDir(), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RunContext{}, fmt.Errorf("read run %s: %w", path, err)
	}

	var run RunContext
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &run)
	default:
		err = json.Unmarshal(data, &run)
	}
	if err != nil {
		return RunContext{}, fmt.Errorf("decode run %s: %w", path, err)
	}
	return run, nil
}

// List returns the run artifact paths, oldest file name first.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.RunsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, filepath.Join(s.RunsDir(), e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// StoredRun pairs a loaded run with its artifact path.
type StoredRun struct {
	Path string
	Run  RunContext
}

// LoadAll reads every run artifact with bounded parallelism, in List order.
func (s *FileStore) LoadAll(ctx context.Context) ([]StoredRun, error) {
	paths, err := s.List()
	if err != nil {
		return nil, err
	}

	out := make([]StoredRun, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			run, err := s.Load(p)
			if err != nil {
				return err
			}
			out[i] = StoredRun{Path: p, Run: run}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Find resolves a run by artifact file name or run ID.
func (s *FileStore) Find(ctx context.Context, ref string) (StoredRun, error) {
	if run, err := s.Load(ref); err == nil {
		path := ref
		if !strings.ContainsRune(ref, filepath.Separator) {
			path = filepath.Join(s.RunsDir(), ref)
		}
		return StoredRun{Path: path, Run: run}, nil
	}

	runs, err := s.LoadAll(ctx)
	if err != nil {
		return StoredRun{}, err
	}
	for _, r := range runs {
		if r.Run.Metadata.ID == ref {
			return r, nil
		}
	}
	return StoredRun{}, fmt.Errorf("%w: %s", types.ErrRunNotFound, ref)
}

// WriteSummary writes an aggregate summary artifact and returns its path.
func (s *FileStore) WriteSummary(sum Summary) (string, error) {
	var data []byte
	var err error
	if s.format == FormatYAML {
		data, err = yaml.Marshal(sum)
	} else {
		data, err = json.MarshalIndent(sum, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}

	path, err := s.availablePath(s.SummaryDir(), FileName("summary", sum.GeneratedAt, s.ext()))
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (s *FileStore) encode(run *RunContext) ([]byte, error) {
	if s.format == FormatYAML {
		return yaml.Marshal(run)
	}
	return json.MarshalIndent(run, "", "  ")
}

func (s *FileStore) ext() string {
	if s.format == FormatYAML {
		return "yaml"
	}
	return "json"
}

// availablePath returns dir/name, or dir/name with a numeric suffix if taken.
func (s *FileStore) availablePath(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	underscores = regexp.MustCompile(`_+`)
)

// SanitizeName makes a run name safe to use as a file name.
func SanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = underscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_.")
	if s == "" {
		return "run"
	}
	return s
}

// FileName derives the artifact file name from a run name and a timestamp.
func FileName(name string, at time.Time, ext string) string {
	return fmt.Sprintf("%s_%d.%s", SanitizeName(name), at.UnixMilli(), ext)
}

// writeAtomic replaces path with data via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
