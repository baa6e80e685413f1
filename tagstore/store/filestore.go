package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/tagstore/tagstore"
	"github.com/ZanzyTHEbar/tagstore/tagstore/serializer"
	"github.com/ZanzyTHEbar/tagstore/tagstore/trees"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/afero"
)

const (
	opNew    = "new"
	opSave   = "save"
	opGet    = "get"
	opGetAll = "getall"
	opDelete = "delete"
	opUpdate = "update"
)

// FileStore persists nodes as individual files in one flat directory.
// The directory listing is the only catalog: there is no index and no manifest.
// It holds no locks; concurrent callers get whatever the filesystem gives them.
type FileStore struct {
	root          string
	serializer    serializer.Serializer
	factory       trees.Factory
	fs            afero.Fs
	logger        zerolog.Logger
	now           func() time.Time
	namer         Namer
	decodeWorkers int
	confined      bool
	metrics       *Metrics
}

// Option customizes a FileStore
type Option func(*FileStore)

// WithFs sets the filesystem. It must be the same one the serializer writes to.
func WithFs(fs afero.Fs) Option {
	return func(s *FileStore) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for file naming
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNamer replaces TimestampNamer for new file names
func WithNamer(namer Namer) Option {
	return func(s *FileStore) {
		if namer != nil {
			s.namer = namer
		}
	}
}

// WithDecodeWorkers bounds how many files GetAll decodes at once
func WithDecodeWorkers(n int) Option {
	return func(s *FileStore) {
		if n > 0 {
			s.decodeWorkers = n
		}
	}
}

// WithConfinedReferences makes Get and Delete refuse references to files that
// are not directly inside the root folder. Off by default: any readable path is accepted.
func WithConfinedReferences() Option {
	return func(s *FileStore) {
		s.confined = true
	}
}

// New validates folder and makes sure the directory exists.
// folder must be tagged DIRECTORY_PATH and carry a non-empty path.
func New(ser serializer.Serializer, factory trees.Factory, folder *trees.Node, opts ...Option) (*FileStore, error) {
	if ser == nil {
		return nil, newError(opNew, "", ErrInvalidConfiguration, errors.New("serializer is required"))
	}
	if factory == nil {
		return nil, newError(opNew, "", ErrInvalidConfiguration, errors.New("factory is required"))
	}
	if folder == nil {
		return nil, newError(opNew, "", ErrInvalidConfiguration, errors.New("root folder is required"))
	}
	if !folder.HasTag(trees.TagDirectoryPath) {
		return nil, newError(opNew, folder.Payload(), ErrInvalidConfiguration,
			fmt.Errorf("root folder must be tagged %s, got %s", trees.TagDirectoryPath, folder.Tags()))
	}
	root := folder.Payload()
	if strings.TrimSpace(root) == "" {
		return nil, newError(opNew, "", ErrInvalidConfiguration, errors.New("root folder path is empty"))
	}

	s := &FileStore{
		root:          filepath.Clean(root),
		serializer:    ser,
		factory:       factory,
		fs:            afero.NewOsFs(),
		logger:        zerolog.Nop(),
		now:           time.Now,
		namer:         TimestampNamer,
		decodeWorkers: internal.DefaultDecodeWorkers,
		metrics:       newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return nil, newError(opNew, s.root, ErrStorageUnavailable, err)
	}

	s.logger.Debug().Str("root", s.root).Msg("file store ready")
	return s, nil
}

// Root returns the directory the store writes to
func (s *FileStore) Root() string {
	return s.root
}

// Stats returns operation counters
func (s *FileStore) Stats() map[string]interface{} {
	return s.metrics.GetMetrics()
}

// Save writes n to a new file and returns a reference to it.
// Immediate PERSISTENCE_FILE children are stripped first, so a loaded node can be
// saved again without persisting its provenance.
// n must not nest deeper than trees.MaxDepth; deeper trees fail with
// ErrSerializationFailed wrapping trees.ErrTooDeep.
func (s *FileStore) Save(ctx context.Context, n *trees.Node) (ref *trees.Node, err error) {
	defer func() { s.metrics.record(opSave, err) }()

	if n == nil {
		return nil, newError(opSave, "", ErrInvalidArgument, errors.New("node is nil"))
	}

	clone := trees.StripProvenance(s.factory, n)
	path := filepath.Join(s.root, s.namer(s.now())+s.serializer.Extension())

	if err := s.serializer.Encode(ctx, path, clone); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newError(opSave, path, ErrSerializationFailed, err)
	}

	s.logger.Debug().Str("path", path).Stringer("tags", clone.Tags()).Msg("node saved")
	return trees.NewFileReference(s.factory, path), nil
}

// Get loads the node a reference points to and appends its provenance child.
func (s *FileStore) Get(ctx context.Context, ref *trees.Node) (n *trees.Node, err error) {
	defer func() { s.metrics.record(opGet, err) }()

	path, err := s.resolve(opGet, ref)
	if err != nil {
		return nil, err
	}

	n, err = s.load(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, os.ErrNotExist) {
			// removed between the existence check and the read
			return nil, newError(opGet, path, ErrNotFound, err)
		}
		return nil, newError(opGet, path, ErrSerializationFailed, err)
	}
	if n == nil {
		return nil, newError(opGet, path, ErrSerializationFailed, errors.New("file holds no value"))
	}

	s.logger.Debug().Str("path", path).Msg("node loaded")
	return n, nil
}

// GetAll loads every file directly inside the root folder, in listing order.
// Files that cannot be read or decoded are skipped so one bad file does not hide the rest.
func (s *FileStore) GetAll(ctx context.Context) (nodes []*trees.Node, err error) {
	defer func() { s.metrics.record(opGetAll, err) }()

	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, newError(opGetAll, s.root, ErrStorageUnavailable, err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(s.root, entry.Name())
		if !s.isNodeFile(entry, path) {
			continue
		}
		paths = append(paths, path)
	}

	loaded := make([]*trees.Node, len(paths))
	workers := iter.Iterator[string]{MaxGoroutines: s.decodeWorkers}
	workers.ForEachIdx(paths, func(i int, path *string) {
		n, loadErr := s.load(ctx, *path)
		if loadErr != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(loadErr).Str("path", *path).Msg("skipping unreadable node file")
			}
			return
		}
		if n == nil {
			s.logger.Warn().Str("path", *path).Msg("skipping empty node file")
			return
		}
		loaded[i] = n
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nodes = make([]*trees.Node, 0, len(loaded))
	for _, n := range loaded {
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	if skipped := len(paths) - len(nodes); skipped > 0 {
		s.metrics.skipped(skipped)
	}

	s.logger.Debug().Int("files", len(paths)).Int("nodes", len(nodes)).Msg("listed nodes")
	return nodes, nil
}

// Delete removes the file a reference points to.
func (s *FileStore) Delete(ctx context.Context, ref *trees.Node) (err error) {
	defer func() { s.metrics.record(opDelete, err) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path, err := s.resolve(opDelete, ref)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newError(opDelete, path, ErrNotFound, err)
		}
		return newError(opDelete, path, ErrStorageUnavailable, err)
	}

	s.logger.Debug().Str("path", path).Msg("node deleted")
	return nil
}

// Update is not supported: delete the old file and save a new one instead.
func (s *FileStore) Update(_ context.Context, ref *trees.Node, _ *trees.Node) (err error) {
	defer func() { s.metrics.record(opUpdate, err) }()

	path := ""
	if ref != nil {
		path = ref.Payload()
	}
	return newError(opUpdate, path, ErrNotImplemented, errors.New("delete and save to replace a node"))
}

// isNodeFile reports whether a listing entry is a regular file, following symlinks
func (s *FileStore) isNodeFile(entry os.FileInfo, path string) bool {
	if entry.Mode()&os.ModeSymlink == 0 {
		return entry.Mode().IsRegular()
	}
	target, err := s.fs.Stat(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("skipping dangling link")
		return false
	}
	return target.Mode().IsRegular()
}

// resolve applies the reference checks shared by Get and Delete: the
// PERSISTENCE_FILE tag and the file's existence. Confined stores also require
// the file to sit directly under root.
func (s *FileStore) resolve(op string, ref *trees.Node) (string, error) {
	if ref == nil {
		return "", newError(op, "", ErrInvalidArgument, errors.New("reference is nil"))
	}
	if !ref.HasTag(trees.TagPersistenceFile) {
		return "", newError(op, ref.Payload(), ErrInvalidArgument,
			fmt.Errorf("reference must be tagged %s, got %s", trees.TagPersistenceFile, ref.Tags()))
	}

	path := ref.Payload()
	if strings.TrimSpace(path) == "" {
		return "", newError(op, "", ErrInvalidArgument, errors.New("reference path is empty"))
	}
	path = filepath.Clean(path)

	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", newError(op, path, ErrNotFound, err)
		}
		return "", newError(op, path, ErrStorageUnavailable, err)
	}
	if info.IsDir() {
		return "", newError(op, path, ErrInvalidArgument, errors.New("reference points to a directory"))
	}
	if s.confined && !s.contains(path) {
		return "", newError(op, path, ErrInvalidArgument,
			fmt.Errorf("reference is not a file directly inside %s", s.root))
	}
	return path, nil
}

// contains reports whether path names an entry directly inside root
func (s *FileStore) contains(path string) bool {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == root
}

// load decodes one file and tags the result with its origin
func (s *FileStore) load(ctx context.Context, path string) (*trees.Node, error) {
	n, err := s.serializer.Decode(ctx, path)
	if err != nil || n == nil {
		return nil, err
	}
	trees.AttachProvenance(s.factory, n, path)
	return n, nil
}
