package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/lorein/lore/internal/corpus"
	"github.com/lorein/lore/internal/log"
)

// ErrLocked indicates another ingest run holds the ingest lock.
var ErrLocked = errors.New("another ingest is already running")

// defaultConcurrency bounds parallel per-file work during directory ingest.
const defaultConcurrency = 4

// FileTracker records which content hashes have been seen and indexed.
// *tracker.Tracker satisfies it.
type FileTracker interface {
	AddFile(ctx context.Context, path, contentHash string) (bool, error)
	MarkIndexed(ctx context.Context, contentHash string) error
}

// DocumentStore receives extracted chunks. *corpus.Store satisfies it.
type DocumentStore interface {
	Add(ctx context.Context, doc corpus.Document) error
}

// Result summarizes one ingest run.
type Result struct {
	FilesAdded   int           `json:"files_added"`
	FilesSkipped int           `json:"files_skipped"`
	FilesFailed  int           `json:"files_failed"`
	Chunks       int           `json:"chunks"`
	Duration     time.Duration `json:"duration"`
}

// Config carries Ingestor construction parameters.
type Config struct {
	ChunkSize   int
	LockPath    string // flock file serializing concurrent ingest runs
	Concurrency int    // parallel files during directory ingest, 0 = default
}

// Ingestor runs the ingestion pipeline: hash, deduplicate via the tracker,
// extract chunks, store them in the corpus, mark the file indexed.
type Ingestor struct {
	registry    *Registry
	tracker     FileTracker
	corpus      DocumentStore
	chunkSize   int
	lockPath    string
	concurrency int
	logger      log.Logger
}

func NewIngestor(registry *Registry, tracker FileTracker, store DocumentStore, cfg Config, logger log.Logger) *Ingestor {
	if logger == nil {
		logger = log.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Ingestor{
		registry:    registry,
		tracker:     tracker,
		corpus:      store,
		chunkSize:   cfg.ChunkSize,
		lockPath:    lockPathOrDefault(cfg.LockPath),
		concurrency: concurrency,
		logger:      logger,
	}
}

func lockPathOrDefault(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "lore-ingest.lock")
}

// Ingest processes a file or directory tree. Concurrent runs are serialized
// by a file lock; a held lock fails fast with ErrLocked rather than queueing
// behind a long-running ingest.
func (ing *Ingestor) Ingest(ctx context.Context, path string) (*Result, error) {
	lock := flock.New(ing.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			ing.logger.Warn("failed to release ingest lock", "path", ing.lockPath, "error", err)
		}
	}()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	start := time.Now()
	var result Result
	if info.IsDir() {
		err = ing.ingestDirectory(ctx, absPath, &result)
	} else {
		err = ing.ingestOne(ctx, absPath, &result)
	}
	result.Duration = time.Since(start)
	if err != nil {
		return nil, err
	}

	ing.logger.Info("ingest finished", "path", absPath,
		"added", result.FilesAdded, "skipped", result.FilesSkipped,
		"failed", result.FilesFailed, "chunks", result.Chunks,
		"duration", result.Duration)
	return &result, nil
}

// ingestDirectory walks the tree, honoring a root .gitignore, and fans
// per-file work out across a bounded errgroup. Individual file failures are
// counted, not fatal; only context cancellation aborts the walk.
func (ing *Ingestor) ingestDirectory(ctx context.Context, dir string, result *Result) error {
	var gitIgnore *ignore.GitIgnore
	if _, err := os.Stat(filepath.Join(dir, ".gitignore")); err == nil {
		gitIgnore, err = ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
		if err != nil {
			// A malformed .gitignore disables filtering, not the run.
			ing.logger.Warn("failed to parse .gitignore", "dir", dir, "error", err)
			gitIgnore = nil
		}
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if gitIgnore != nil && relPath != "." && gitIgnore.MatchesPath(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			result.FilesSkipped++
			return nil
		}
		if !ing.registry.Supported(path) {
			result.FilesSkipped++
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.concurrency)
	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var fileResult Result
			err := ing.ingestOne(ctx, path, &fileResult)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				ing.logger.Warn("failed to ingest file", "path", path, "error", err)
				result.FilesFailed++
				return nil
			}
			result.FilesAdded += fileResult.FilesAdded
			result.FilesSkipped += fileResult.FilesSkipped
			result.Chunks += fileResult.Chunks
			return nil
		})
	}
	return g.Wait()
}

// ingestOne runs the full pipeline for a single file.
func (ing *Ingestor) ingestOne(ctx context.Context, path string, result *Result) error {
	extractor, err := ing.registry.Lookup(path)
	if err != nil {
		return err
	}

	hash, err := hashFile(path)
	if err != nil {
		return err
	}

	added, err := ing.tracker.AddFile(ctx, path, hash)
	if err != nil {
		return fmt.Errorf("failed to track file: %w", err)
	}
	if !added {
		ing.logger.Debug("skipping already ingested content", "path", path, "hash", hash)
		result.FilesSkipped++
		return nil
	}

	chunks := 0
	for chunk, err := range extractor.Extract(path, ing.chunkSize) {
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", path, err)
		}
		doc := corpus.Document{
			ID:      chunkID(hash, chunks),
			Content: chunk,
			Metadata: map[string]string{
				"file_path":    path,
				"file_name":    filepath.Base(path),
				"file_ext":     filepath.Ext(path),
				"content_hash": hash,
				"chunk":        strconv.Itoa(chunks),
			},
		}
		if err := ing.corpus.Add(ctx, doc); err != nil {
			return fmt.Errorf("failed to store chunk %d of %s: %w", chunks, path, err)
		}
		chunks++
	}

	if err := ing.tracker.MarkIndexed(ctx, hash); err != nil {
		return fmt.Errorf("failed to mark indexed: %w", err)
	}

	result.FilesAdded++
	result.Chunks += chunks
	return nil
}

// chunkID derives a stable document ID from the content hash and chunk
// ordinal, so re-ingesting identical content upserts instead of duplicating.
func chunkID(contentHash string, chunk int) string {
	name := fmt.Sprintf("%s#%d", contentHash, chunk)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
