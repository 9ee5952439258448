// Package scanner discovers templates in HTML files.
//
// Every <template id="..."> element of a scanned page becomes a registry
// entry, the way a browser page keeps its templates in the document. The
// scanner walks the configured directories for files with an allowed
// extension, parses them with golang.org/x/net/html, hashes the content
// with CRC32 for change detection and registers what it finds. Files are
// processed by a small pool of persistent workers.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/markup"
	"github.com/conneroisu/tagfill/internal/registry"
	"github.com/conneroisu/tagfill/internal/validation"
)

// DefaultExtensions are scanned when no WithExtensions option is given.
var DefaultExtensions = []string{".html", ".htm"}

// maxFileSize bounds the files the scanner will read.
const maxFileSize = 10 << 20

// ScanJob is one file handed to the worker pool.
type ScanJob struct {
	filePath string
	result   chan<- ScanResult
}

// ScanResult reports the outcome of one ScanJob.
type ScanResult struct {
	filePath string
	err      error
}

// WorkerPool runs persistent scanning workers.
type WorkerPool struct {
	jobQueue chan ScanJob
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewWorkerPool starts workerCount workers that scan files with scanner.
func NewWorkerPool(workerCount int, scanner *TemplateScanner) *WorkerPool {
	pool := &WorkerPool{
		jobQueue: make(chan ScanJob, workerCount*2),
		stop:     make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		pool.wg.Add(1)
		go func() {
			defer pool.wg.Done()
			for {
				select {
				case job := <-pool.jobQueue:
					job.result <- ScanResult{filePath: job.filePath, err: scanner.ScanFile(job.filePath)}
				case <-pool.stop:
					return
				}
			}
		}()
	}

	return pool
}

// Stop shuts the workers down and waits for them to exit.
func (p *WorkerPool) Stop() {
	p.once.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()
}

// Option configures a TemplateScanner.
type Option func(*TemplateScanner)

// WithExtensions sets the file extensions that are scanned.
func WithExtensions(exts ...string) Option {
	return func(s *TemplateScanner) {
		if len(exts) > 0 {
			s.extensions = exts
		}
	}
}

// WithExcludePatterns skips files and directories whose base name matches
// one of patterns (filepath.Match syntax).
func WithExcludePatterns(patterns ...string) Option {
	return func(s *TemplateScanner) {
		s.exclude = patterns
	}
}

// WithCollector records every per-file failure in collector.
func WithCollector(collector *errors.ErrorCollector) Option {
	return func(s *TemplateScanner) {
		s.collector = collector
	}
}

// TemplateScanner discovers templates and registers them.
type TemplateScanner struct {
	registry   *registry.TemplateRegistry
	logger     logging.Logger
	extensions []string
	exclude    []string
	collector  *errors.ErrorCollector
	workerPool *WorkerPool

	// registerMu serializes conflict checks and registration so two files
	// scanned in parallel cannot both claim an id.
	registerMu sync.Mutex
}

// NewTemplateScanner creates a scanner that registers into reg.
func NewTemplateScanner(reg *registry.TemplateRegistry, logger logging.Logger, opts ...Option) *TemplateScanner {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &TemplateScanner{
		registry:   reg,
		logger:     logger.WithComponent("scanner"),
		extensions: DefaultExtensions,
	}
	for _, opt := range opts {
		opt(s)
	}

	workerCount := runtime.NumCPU()
	if workerCount > 8 {
		workerCount = 8
	}
	s.workerPool = NewWorkerPool(workerCount, s)
	return s
}

// GetRegistry returns the template registry
func (s *TemplateScanner) GetRegistry() *registry.TemplateRegistry {
	return s.registry
}

// Close stops the worker pool.
func (s *TemplateScanner) Close() error {
	s.workerPool.Stop()
	return nil
}

// Matches reports whether path has a scanned extension and is not excluded.
func (s *TemplateScanner) Matches(path string) bool {
	if s.excluded(filepath.Base(path)) {
		return false
	}
	return validation.ValidateFileExtension(path, s.extensions) == nil
}

func (s *TemplateScanner) excluded(name string) bool {
	for _, pattern := range s.exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// ScanPaths scans every directory in dirs. Directories that do not exist
// are skipped with a warning.
func (s *TemplateScanner) ScanPaths(ctx context.Context, dirs []string) error {
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			s.logger.Warn(ctx, err, "Scan path does not exist", "path", dir)
			continue
		}
		if err := s.ScanDirectory(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// ScanDirectory scans dir recursively and registers every template found.
// All files are attempted. The returned error summarizes the failures.
func (s *TemplateScanner) ScanDirectory(ctx context.Context, dir string) error {
	if err := validation.ValidatePath(dir); err != nil {
		return fmt.Errorf("invalid directory path: %w", err)
	}

	op := logging.StartOperation(s.logger, "scan_directory")

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != dir && s.excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Matches(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		op.EndWithError(ctx, err)
		return errors.NewIOError(errors.ErrCodeFileNotFound, "walking "+dir, err).WithFile(dir)
	}

	if err := s.processBatch(ctx, files); err != nil {
		op.EndWithError(ctx, err)
		return err
	}
	op.End(ctx, "path", dir, "files", len(files), "templates", s.registry.Count())
	return nil
}

func (s *TemplateScanner) processBatch(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}

	resultChan := make(chan ScanResult, len(files))
	for _, file := range files {
		select {
		case s.workerPool.jobQueue <- ScanJob{filePath: file, result: resultChan}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var failures []error
	for range files {
		result := <-resultChan
		if result.err != nil {
			failures = append(failures, result.err)
			s.logger.Warn(ctx, result.err, "Failed to scan file", "file", result.filePath)
			if s.collector != nil {
				s.collector.Add(errors.ProblemFromError("", result.filePath, result.err))
			}
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("scan completed with %d errors: %w", len(failures), failures[0])
	}
	return nil
}

// ScanFile parses one file and registers its templates. Templates that
// the file previously defined and no longer does are removed.
func (s *TemplateScanner) ScanFile(path string) error {
	if err := validation.ValidatePath(path); err != nil {
		return err
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotFound, "reading template file", err).WithFile(cleanPath)
	}
	if info.Size() > maxFileSize {
		return errors.NewValidationError(
			errors.ErrCodeValidationFailed,
			fmt.Sprintf("file is larger than %d bytes", maxFileSize),
		).WithFile(cleanPath)
	}

	content, err := os.ReadFile(cleanPath)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotFound, "reading template file", err).WithFile(cleanPath)
	}

	doc, err := markup.Parse(bytes.NewReader(content))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeInvalidTemplate, "parsing markup").WithFile(cleanPath)
	}

	var found []*registry.TemplateInfo
	seen := make(map[string]bool)
	for _, el := range doc.FindAll("template") {
		id, ok := el.Attr("id")
		if !ok {
			continue
		}
		if err := validation.ValidateTemplateID(id); err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeInvalidTemplate, "template id").WithFile(cleanPath)
		}
		if seen[id] {
			return errors.NewValidationError(
				errors.ErrCodeDuplicateTemplate,
				fmt.Sprintf("template %q is defined more than once", id),
			).WithFile(cleanPath).WithTemplate(id)
		}
		seen[id] = true
		hash, err := templateHash(el)
		if err != nil {
			return errors.NewInternalError(errors.ErrCodeInternalError, "hashing template "+id, err).WithFile(cleanPath)
		}
		found = append(found, &registry.TemplateInfo{
			ID:       id,
			FilePath: cleanPath,
			Source:   registry.SourceFile,
			Root:     el,
			Hash:     hash,
			LastMod:  info.ModTime(),
		})
	}

	return s.register(cleanPath, found)
}

func (s *TemplateScanner) register(path string, found []*registry.TemplateInfo) error {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	for _, t := range found {
		if existing, ok := s.registry.Get(t.ID); ok && existing.Source == registry.SourceFile && existing.FilePath != path {
			return errors.NewValidationError(
				errors.ErrCodeDuplicateTemplate,
				fmt.Sprintf("template %q is already defined in %s", t.ID, existing.FilePath),
			).WithFile(path).WithTemplate(t.ID)
		}
	}

	ids := make([]string, 0, len(found))
	for _, t := range found {
		ids = append(ids, t.ID)
		s.registry.Register(t)
	}
	for _, old := range s.registry.GetAll() {
		if old.FilePath == path && !slices.Contains(ids, old.ID) {
			s.registry.Remove(old.ID)
		}
	}
	return nil
}

// templateHash is the CRC32 of the template's serialized markup, so editing
// one template of a page leaves the hashes of the others unchanged.
func templateHash(el *markup.Node) (string, error) {
	h := crc32.NewIEEE()
	if err := markup.Render(h, el); err != nil {
		return "", err
	}
	return fmt.Sprintf("%08x", h.Sum32()), nil
}

// RemoveFile unregisters every template defined in path.
func (s *TemplateScanner) RemoveFile(path string) []string {
	return s.registry.RemoveByPath(filepath.Clean(path))
}
