package embeddings

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/logging"
)

const (
	catalogFileName = "models.json"
	catalogVersion  = "1.0"
)

// CatalogEntry pins one embedding model the index can be built with.
// Dimensions are recorded explicitly so a model unknown to the provider
// tables still round-trips.
type CatalogEntry struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// catalogFile is the on-disk shape of models.json.
type catalogFile struct {
	Version string         `json:"version"`
	Models  []CatalogEntry `json:"models"`
}

// CatalogStatus summarises the catalog for the status command.
type CatalogStatus struct {
	Path    string        `json:"path"`
	Entries int           `json:"entries"`
	Active  *CatalogEntry `json:"active,omitempty"`
}

// ImportStats counts what an import changed.
type ImportStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// Catalog is the embedding-model registry persisted at
// {DATA_PATH}/models.json. Writes go to a temp file and rename over the
// original. A missing file is seeded with the models the providers know
// natively; an explicit clear leaves the catalog empty.
type Catalog struct {
	path    string
	mu      sync.RWMutex
	entries []CatalogEntry
	log     *slog.Logger
}

// NewCatalog loads (or seeds) the catalog under dataPath.
func NewCatalog(dataPath string) (*Catalog, error) {
	if dataPath == "" {
		return nil, errors.Validation("model catalog requires a data path")
	}
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, errors.Operation(err, "create data directory", false)
	}

	c := &Catalog{
		path: filepath.Join(dataPath, catalogFileName),
		log:  logging.ForComponent("embeddings"),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the catalog file location.
func (c *Catalog) Path() string {
	return c.path
}

// List returns the catalog entries sorted by provider, then model.
func (c *Catalog) List() []CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CatalogEntry, len(c.entries))
	copy(out, c.entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Status reports the catalog location and which entry matches the
// configured provider and model. Empty arguments fall back the same way
// provider construction does.
func (c *Catalog) Status(provider, model string) CatalogStatus {
	if provider == "" {
		provider = ProviderOpenAI
	}
	if model == "" {
		switch provider {
		case ProviderOpenAI:
			model = defaultOpenAIModel
		case ProviderGemini:
			model = defaultGeminiModel
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	status := CatalogStatus{Path: c.path, Entries: len(c.entries)}
	for _, entry := range c.entries {
		if entry.Provider == provider && entry.Model == model {
			active := entry
			status.Active = &active
			break
		}
	}
	return status
}

// Clear empties the catalog. The file persists with an empty model
// list; only deleting it restores the seeded defaults.
func (c *Catalog) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	return c.persist()
}

// Import merges entries from an external JSON file: either the catalog
// file shape or a bare array of entries. Every entry is validated
// before anything is merged, so a bad file changes nothing. Entries
// matching an existing provider+model pair replace its dimensions.
func (c *Catalog) Import(path string) (ImportStats, error) {
	var stats ImportStats

	data, err := os.ReadFile(path)
	if err != nil {
		return stats, errors.Operation(err, fmt.Sprintf("read import file %s", path), false)
	}

	incoming, err := parseCatalogPayload(data)
	if err != nil {
		return stats, errors.Validationf("import file %s is not a model catalog: %v", path, err)
	}
	for i, entry := range incoming {
		if err := validateEntry(entry); err != nil {
			return stats, errors.Validationf("import file %s entry %d: %v", path, i, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range incoming {
		if i := c.indexOf(entry.Provider, entry.Model); i >= 0 {
			if c.entries[i].Dimensions != entry.Dimensions {
				c.entries[i].Dimensions = entry.Dimensions
				stats.Updated++
			}
			continue
		}
		c.entries = append(c.entries, entry)
		stats.Added++
	}

	if stats.Added == 0 && stats.Updated == 0 {
		return stats, nil
	}
	if err := c.persist(); err != nil {
		return ImportStats{}, err
	}
	c.log.Info("imported model catalog entries", "file", path, "added", stats.Added, "updated", stats.Updated)
	return stats, nil
}

// indexOf is called with the lock held.
func (c *Catalog) indexOf(provider, model string) int {
	for i, entry := range c.entries {
		if entry.Provider == provider && entry.Model == model {
			return i
		}
	}
	return -1
}

func (c *Catalog) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !stdIsNotExist(err) {
			return errors.Operation(err, "read model catalog", true)
		}
		c.entries = seedEntries()
		if err := c.persist(); err != nil {
			return err
		}
		c.log.Info("seeded model catalog", "path", c.path, "models", len(c.entries))
		return nil
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.Configf("model catalog %s is corrupted: %v", c.path, err)
	}
	if file.Version != catalogVersion {
		return errors.Configf("unsupported model catalog version %q in %s", file.Version, c.path)
	}
	for i, entry := range file.Models {
		if err := validateEntry(entry); err != nil {
			return errors.Configf("model catalog %s entry %d: %v", c.path, i, err)
		}
	}
	c.entries = file.Models
	return nil
}

// persist is called with the write lock held (or before the catalog is
// shared).
func (c *Catalog) persist() error {
	data, err := json.MarshalIndent(catalogFile{Version: catalogVersion, Models: c.entries}, "", "  ")
	if err != nil {
		return errors.Operation(err, "encode model catalog", false)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Operation(err, "write model catalog", true)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Operation(err, "write model catalog", true)
	}
	return nil
}

// parseCatalogPayload accepts both the models.json object shape and a
// bare JSON array of entries.
func parseCatalogPayload(data []byte) ([]CatalogEntry, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err == nil && file.Models != nil {
		return file.Models, nil
	}

	var entries []CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("expected a catalog object or an entry array")
	}
	return entries, nil
}

func validateEntry(entry CatalogEntry) error {
	switch entry.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q (supported: openai, gemini)", entry.Provider)
	}
	if entry.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if entry.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", entry.Dimensions)
	}
	return nil
}

// seedEntries lists the models the providers know natively.
func seedEntries() []CatalogEntry {
	var entries []CatalogEntry
	for model, dims := range openaiDimensions {
		entries = append(entries, CatalogEntry{Provider: ProviderOpenAI, Model: model, Dimensions: dims})
	}
	for model, dims := range geminiDimensions {
		entries = append(entries, CatalogEntry{Provider: ProviderGemini, Model: model, Dimensions: dims})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Provider != entries[j].Provider {
			return entries[i].Provider < entries[j].Provider
		}
		return entries[i].Model < entries[j].Model
	})
	return entries
}

func stdIsNotExist(err error) bool {
	return os.IsNotExist(err) || stderrors.Is(err, fs.ErrNotExist)
}

// ProbeResult is the outcome of validating one catalog entry against
// its provider.
type ProbeResult struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	OK         bool   `json:"ok"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Probe builds the entry's provider and embeds one short text to prove
// that credentials, model name and dimensionality line up.
func Probe(ctx context.Context, entry CatalogEntry, apiKey string) ProbeResult {
	result := ProbeResult{Provider: entry.Provider, Model: entry.Model, Dimensions: entry.Dimensions}
	started := time.Now()

	provider, err := New(ctx, Config{
		Provider:   entry.Provider,
		Model:      entry.Model,
		Dimensions: entry.Dimensions,
		APIKey:     apiKey,
	})
	if err != nil {
		result.DurationMs = time.Since(started).Milliseconds()
		result.Error = err.Error()
		return result
	}

	vectors, err := provider.EmbedBatch(ctx, []string{"embedding model probe"})
	result.DurationMs = time.Since(started).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if len(vectors) != 1 {
		result.Error = fmt.Sprintf("provider returned %d vectors for one text", len(vectors))
		return result
	}
	if got := len(vectors[0]); got != entry.Dimensions {
		result.Error = fmt.Sprintf("provider returned %d dimensions, catalog says %d", got, entry.Dimensions)
		return result
	}

	result.OK = true
	return result
}
