package procedure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrProcedureNotFound is returned when no template matches a reference.
var ErrProcedureNotFound = fmt.Errorf("procedure not found")

// yamlStep is the on-disk shape of one step.
type yamlStep struct {
	Instruction string   `yaml:"instruction"`
	SafetyFlags []string `yaml:"safety_flags"`
	Duration    string   `yaml:"duration"`
}

// yamlProcedure is the on-disk shape of a procedure template.
type yamlProcedure struct {
	ID      string     `yaml:"id"`
	Title   string     `yaml:"title"`
	AssetID string     `yaml:"asset_id"`
	Steps   []yamlStep `yaml:"steps"`
}

// FileLibrary serves read-only procedure templates from a directory of
// YAML files, loaded once at startup.
type FileLibrary struct {
	procedures map[string]*models.Procedure
}

var _ Library = (*FileLibrary)(nil)

// LoadLibrary reads every *.yaml/*.yml file in dir as a procedure template.
func LoadLibrary(dir string) (*FileLibrary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read procedure dir: %w", err)
	}

	lib := &FileLibrary{procedures: make(map[string]*models.Procedure)}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		proc, err := parseProcedure(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		lib.procedures[proc.ID] = proc
	}
	return lib, nil
}

// NewStaticLibrary builds a library from in-memory procedures (tests, and
// hydration from the document store).
func NewStaticLibrary(procs ...*models.Procedure) *FileLibrary {
	lib := &FileLibrary{procedures: make(map[string]*models.Procedure, len(procs))}
	for _, p := range procs {
		lib.procedures[p.ID] = p
	}
	return lib
}

func parseProcedure(data []byte) (*models.Procedure, error) {
	var raw yamlProcedure
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if raw.ID == "" {
		return nil, fmt.Errorf("procedure id is required")
	}
	if len(raw.Steps) == 0 {
		return nil, fmt.Errorf("procedure %s has no steps", raw.ID)
	}

	proc := &models.Procedure{
		ID:      raw.ID,
		Title:   raw.Title,
		AssetID: raw.AssetID,
		Created: time.Now(),
	}
	if proc.Title == "" {
		proc.Title = raw.ID
	}

	var total time.Duration
	for i, s := range raw.Steps {
		step := models.Step{
			Index:       i,
			Instruction: s.Instruction,
			SafetyFlags: s.SafetyFlags,
		}
		if s.Duration != "" {
			d, err := time.ParseDuration(s.Duration)
			if err != nil {
				return nil, fmt.Errorf("step %d duration %q: %w", i, s.Duration, err)
			}
			step.Duration = d
			total += d
		}
		proc.Steps = append(proc.Steps, step)
	}
	proc.Duration = total
	return proc, nil
}

// Get returns the procedure with the exact id.
func (l *FileLibrary) Get(_ context.Context, id string) (*models.Procedure, error) {
	if proc, ok := l.procedures[id]; ok {
		return proc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProcedureNotFound, id)
}

// Find resolves a spoken reference to a procedure: exact id first, then a
// case-insensitive title/id substring match. An ambiguous reference
// resolves to the shortest matching title, which in practice is the most
// specific spoken form.
func (l *FileLibrary) Find(ctx context.Context, ref string) (*models.Procedure, error) {
	if proc, err := l.Get(ctx, ref); err == nil {
		return proc, nil
	}

	needle := strings.ToLower(strings.TrimSpace(ref))
	var matches []*models.Procedure
	for _, proc := range l.procedures {
		if strings.Contains(strings.ToLower(proc.Title), needle) ||
			strings.Contains(strings.ToLower(proc.ID), needle) {
			matches = append(matches, proc)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProcedureNotFound, ref)
	}
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i].Title) != len(matches[j].Title) {
			return len(matches[i].Title) < len(matches[j].Title)
		}
		return matches[i].ID < matches[j].ID
	})
	return matches[0], nil
}

// List returns all procedures sorted by id.
func (l *FileLibrary) List(_ context.Context) ([]*models.Procedure, error) {
	out := make([]*models.Procedure, 0, len(l.procedures))
	for _, proc := range l.procedures {
		out = append(out, proc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
