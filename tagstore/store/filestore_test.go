package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/tagstore/tagstore/serializer"
	"github.com/ZanzyTHEbar/tagstore/tagstore/trees"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "/exchange"

type fixture struct {
	store      *FileStore
	fs         afero.Fs
	serializer serializer.Serializer
	factory    trees.Factory
}

// steppingClock returns a clock that advances one millisecond per call
func steppingClock() func() time.Time {
	t := time.Date(2024, 3, 9, 14, 5, 6, 7_000_000, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	fs := afero.NewMemMapFs()
	f := trees.NewFactory()
	ser := serializer.NewJSONSerializer(fs, f)

	opts = append([]Option{WithFs(fs), WithClock(steppingClock())}, opts...)
	s, err := New(ser, f, trees.NewDirectoryNode(f, testRoot), opts...)
	require.NoError(t, err)

	return &fixture{store: s, fs: fs, serializer: ser, factory: f}
}

func TestNewValidation(t *testing.T) {
	f := trees.NewFactory()
	fs := afero.NewMemMapFs()
	ser := serializer.NewJSONSerializer(fs, f)

	tests := []struct {
		name    string
		ser     serializer.Serializer
		factory trees.Factory
		folder  *trees.Node
		fs      afero.Fs
		wantErr error
	}{
		{
			name:    "missing folder",
			ser:     ser,
			factory: f,
			wantErr: ErrInvalidConfiguration,
		},
		{
			name:    "folder without directory tag",
			ser:     ser,
			factory: f,
			folder:  trees.NewStringNode(f, "/data"),
			wantErr: ErrInvalidConfiguration,
		},
		{
			name:    "folder with empty path",
			ser:     ser,
			factory: f,
			folder:  trees.NewDirectoryNode(f, ""),
			wantErr: ErrInvalidConfiguration,
		},
		{
			name:    "missing serializer",
			factory: f,
			folder:  trees.NewDirectoryNode(f, "/data"),
			wantErr: ErrInvalidConfiguration,
		},
		{
			name:    "missing factory",
			ser:     ser,
			folder:  trees.NewDirectoryNode(f, "/data"),
			wantErr: ErrInvalidConfiguration,
		},
		{
			name:    "directory cannot be created",
			ser:     ser,
			factory: f,
			folder:  trees.NewDirectoryNode(f, "/data"),
			fs:      afero.NewReadOnlyFs(afero.NewMemMapFs()),
			wantErr: ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.fs
			if target == nil {
				target = fs
			}
			s, err := New(tt.ser, tt.factory, tt.folder, WithFs(target))
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.wantErr)

			var storeErr *Error
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, opNew, storeErr.Op)
		})
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	f := trees.NewFactory()
	root := filepath.Join(t.TempDir(), "nested", "exchange")

	s, err := New(serializer.NewJSONSerializer(nil, f), f, trees.NewDirectoryNode(f, root))
	require.NoError(t, err)
	assert.Equal(t, root, s.Root())

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// idempotent on an existing directory
	_, err = New(serializer.NewJSONSerializer(nil, f), f, trees.NewDirectoryNode(f, root))
	require.NoError(t, err)
}

func TestSaveAndGetAllScenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ref, err := fx.store.Save(ctx, trees.NewStringNode(fx.factory, "hello"))
	require.NoError(t, err)
	require.True(t, ref.HasTag(trees.TagPersistenceFile))
	assert.Equal(t, testRoot, filepath.Dir(ref.Payload()))
	assert.Equal(t, ".json", filepath.Ext(ref.Payload()))

	nodes, err := fx.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	got := nodes[0]
	assert.Equal(t, trees.NewTagSet(trees.TagString), got.Tags())
	assert.Equal(t, "hello", got.Payload())

	members := got.Members()
	require.Len(t, members, 1)
	assert.Equal(t, trees.NewTagSet(trees.TagPersistenceFile), members[0].Tags())
	assert.Equal(t, ref.Payload(), members[0].Payload())
}

func TestRoundTrip(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.factory

	original := trees.NewStringNode(f, "root",
		trees.NewDirectoryNode(f, "/srv"),
		trees.NewStringNode(f, "child", trees.NewStringNode(f, "grandchild")),
		f.Create(trees.NewTagSet(), "", nil),
	)

	ref, err := fx.store.Save(ctx, original)
	require.NoError(t, err)

	loaded, err := fx.store.Get(ctx, ref)
	require.NoError(t, err)

	members := loaded.Members()
	require.Len(t, members, original.Len()+1)

	provenance := members[len(members)-1]
	assert.True(t, trees.IsProvenance(provenance))
	assert.Equal(t, ref.Payload(), provenance.Payload())

	withoutProvenance := f.Create(loaded.Tags(), loaded.Payload(), members[:len(members)-1])
	assert.True(t, original.Equal(withoutProvenance), "want:\n%s\ngot:\n%s", original, withoutProvenance)
}

func TestSaveStripsProvenance(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.factory

	ref, err := fx.store.Save(ctx, trees.NewStringNode(f, "doc", trees.NewStringNode(f, "kept")))
	require.NoError(t, err)

	loaded, err := fx.store.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	ref2, err := fx.store.Save(ctx, loaded)
	require.NoError(t, err)
	assert.NotEqual(t, ref.Payload(), ref2.Payload())

	raw, err := fx.serializer.Decode(ctx, ref2.Payload())
	require.NoError(t, err)
	require.Equal(t, 1, raw.Len())
	for _, member := range raw.Members() {
		assert.False(t, trees.IsProvenance(member))
	}
	assert.Equal(t, "kept", raw.Members()[0].Payload())

	reloaded, err := fx.store.Get(ctx, ref2)
	require.NoError(t, err)
	path, ok := trees.ProvenanceOf(reloaded)
	require.True(t, ok)
	assert.Equal(t, ref2.Payload(), path)
	assert.Equal(t, 2, reloaded.Len(), "exactly one provenance child after repeated cycles")
}

func TestSaveNil(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.store.Save(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSaveNameCollision(t *testing.T) {
	frozen := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	fx := newFixture(t, WithNamer(PlainTimestampNamer), WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	ref, err := fx.store.Save(ctx, trees.NewStringNode(fx.factory, "first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(testRoot, "20240102030405006.json"), ref.Payload())

	_, err = fx.store.Save(ctx, trees.NewStringNode(fx.factory, "second"))
	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.ErrorIs(t, err, serializer.ErrFileExists)

	loaded, err := fx.store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "first", loaded.Payload(), "existing file is not overwritten")
}

func TestSaveDistinctNamesWithinSameMillisecond(t *testing.T) {
	frozen := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	fx := newFixture(t, WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		ref, err := fx.store.Save(ctx, trees.NewStringNode(fx.factory, "same"))
		require.NoError(t, err)
		assert.False(t, seen[ref.Payload()])
		seen[ref.Payload()] = true
		assert.True(t, strings.HasPrefix(filepath.Base(ref.Payload()), "20240102030405000-"))
	}
}

func TestReferenceGuards(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.factory

	ref, err := fx.store.Save(ctx, trees.NewStringNode(f, "x"))
	require.NoError(t, err)

	require.NoError(t, fx.fs.MkdirAll(filepath.Join(testRoot, "sub"), 0o755))

	tests := []struct {
		name    string
		ref     *trees.Node
		wantErr error
	}{
		{name: "nil reference", ref: nil, wantErr: ErrInvalidArgument},
		{
			name:    "existing path without tag",
			ref:     trees.NewStringNode(f, ref.Payload()),
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "empty path",
			ref:     trees.NewFileReference(f, ""),
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "missing file",
			ref:     trees.NewFileReference(f, filepath.Join(testRoot, "missing.json")),
			wantErr: ErrNotFound,
		},
		{
			name:    "missing file outside root",
			ref:     trees.NewFileReference(f, "/nowhere/missing.json"),
			wantErr: ErrNotFound,
		},
		{
			name:    "directory",
			ref:     trees.NewFileReference(f, filepath.Join(testRoot, "sub")),
			wantErr: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run("get "+tt.name, func(t *testing.T) {
			_, err := fx.store.Get(ctx, tt.ref)
			assert.ErrorIs(t, err, tt.wantErr)
		})
		t.Run("delete "+tt.name, func(t *testing.T) {
			err := fx.store.Delete(ctx, tt.ref)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// the guarded file survived every failed delete
	_, err = fx.store.Get(ctx, ref)
	require.NoError(t, err)
}

func TestReferencesOutsideRoot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.factory

	other, err := New(fx.serializer, f, trees.NewDirectoryNode(f, "/other"),
		WithFs(fx.fs), WithClock(steppingClock()))
	require.NoError(t, err)

	ref, err := other.Save(ctx, trees.NewStringNode(f, "from other"))
	require.NoError(t, err)

	t.Run("get loads a file saved by another store", func(t *testing.T) {
		n, err := fx.store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "from other", n.Payload())

		origin, ok := trees.ProvenanceOf(n)
		require.True(t, ok)
		assert.Equal(t, ref.Payload(), origin)
	})

	t.Run("get loads a file in a sub-directory", func(t *testing.T) {
		nested := filepath.Join(testRoot, "sub", "nested.json")
		require.NoError(t, fx.fs.MkdirAll(filepath.Dir(nested), 0o755))
		require.NoError(t, afero.WriteFile(fx.fs, nested, []byte(`{"tags":["STRING"],"payload":"nested"}`), 0o644))

		n, err := fx.store.Get(ctx, trees.NewFileReference(f, nested))
		require.NoError(t, err)
		assert.Equal(t, "nested", n.Payload())
	})

	t.Run("delete removes a file saved by another store", func(t *testing.T) {
		require.NoError(t, fx.store.Delete(ctx, ref))

		exists, err := afero.Exists(fx.fs, ref.Payload())
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestConfinedReferences(t *testing.T) {
	fx := newFixture(t, WithConfinedReferences())
	ctx := context.Background()
	f := fx.factory

	own, err := fx.store.Save(ctx, trees.NewStringNode(f, "own"))
	require.NoError(t, err)

	require.NoError(t, fx.fs.MkdirAll("/elsewhere", 0o755))
	require.NoError(t, afero.WriteFile(fx.fs, "/elsewhere/outside.json", []byte(`{"tags":["STRING"]}`), 0o644))
	nested := filepath.Join(testRoot, "sub", "nested.json")
	require.NoError(t, fx.fs.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, afero.WriteFile(fx.fs, nested, []byte(`{"tags":["STRING"]}`), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "file outside root", path: "/elsewhere/outside.json", wantErr: ErrInvalidArgument},
		{name: "file in sub-directory", path: nested, wantErr: ErrInvalidArgument},
		{name: "missing file outside root", path: "/nowhere/missing.json", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run("get "+tt.name, func(t *testing.T) {
			_, err := fx.store.Get(ctx, trees.NewFileReference(f, tt.path))
			assert.ErrorIs(t, err, tt.wantErr)
		})
		t.Run("delete "+tt.name, func(t *testing.T) {
			err := fx.store.Delete(ctx, trees.NewFileReference(f, tt.path))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	exists, err := afero.Exists(fx.fs, "/elsewhere/outside.json")
	require.NoError(t, err)
	assert.True(t, exists, "confined delete must not remove files outside root")

	_, err = fx.store.Get(ctx, own)
	require.NoError(t, err)
	require.NoError(t, fx.store.Delete(ctx, own))
}

// chain builds a STRING node with depth levels of single children below it
func chain(f trees.Factory, depth int) *trees.Node {
	n := trees.NewStringNode(f, "leaf")
	for i := 0; i < depth; i++ {
		n = trees.NewStringNode(f, "level", n)
	}
	return n
}

func TestSaveDepthLimit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	t.Run("at the limit", func(t *testing.T) {
		ref, err := fx.store.Save(ctx, chain(fx.factory, trees.MaxDepth))
		require.NoError(t, err)

		n, err := fx.store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "level", n.Payload())
	})

	t.Run("past the limit", func(t *testing.T) {
		_, err := fx.store.Save(ctx, chain(fx.factory, trees.MaxDepth+1))
		assert.ErrorIs(t, err, ErrSerializationFailed)
		assert.ErrorIs(t, err, trees.ErrTooDeep)
	})
}

func TestGetAllFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	fs := afero.NewOsFs()
	f := trees.NewFactory()
	s, err := New(serializer.NewJSONSerializer(fs, f), f, trees.NewDirectoryNode(f, root),
		WithFs(fs), WithClock(steppingClock()))
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := s.Save(ctx, trees.NewStringNode(f, "target"))
	require.NoError(t, err)

	link := filepath.Join(root, "link.json")
	if err := os.Symlink(ref.Payload(), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "gone.json"), filepath.Join(root, "dangling.json")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "dir"), filepath.Join(root, "dir-link")))

	nodes, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	origin, ok := trees.ProvenanceOf(nodes[0])
	require.True(t, ok)
	assert.Equal(t, ref.Payload(), origin)

	assert.Equal(t, "target", nodes[1].Payload())
	origin, ok = trees.ProvenanceOf(nodes[1])
	require.True(t, ok)
	assert.Equal(t, link, origin)
}

func TestGetUndecodable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for name, content := range map[string]string{"corrupt.json": "{nope", "empty.json": "null"} {
		path := filepath.Join(testRoot, name)
		require.NoError(t, afero.WriteFile(fx.fs, path, []byte(content), 0o644))

		_, err := fx.store.Get(ctx, trees.NewFileReference(fx.factory, path))
		assert.ErrorIs(t, err, ErrSerializationFailed, name)
	}
}

func TestGetAllSkipsBadFiles(t *testing.T) {
	fx := newFixture(t, WithNamer(PlainTimestampNamer))
	ctx := context.Background()
	f := fx.factory

	_, err := fx.store.Save(ctx, trees.NewStringNode(f, "one"))
	require.NoError(t, err)
	_, err = fx.store.Save(ctx, trees.NewStringNode(f, "two"))
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fx.fs, filepath.Join(testRoot, "zz-corrupt.json"), []byte("{{{"), 0o644))
	require.NoError(t, afero.WriteFile(fx.fs, filepath.Join(testRoot, "zz-null.json"), []byte("null"), 0o644))
	require.NoError(t, fx.fs.MkdirAll(filepath.Join(testRoot, "nested"), 0o755))
	require.NoError(t, afero.WriteFile(fx.fs, filepath.Join(testRoot, "nested", "hidden.json"), []byte(`{"tags":["STRING"]}`), 0o644))

	nodes, err := fx.store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "one", nodes[0].Payload(), "listing order follows file names")
	assert.Equal(t, "two", nodes[1].Payload())

	stats := fx.store.Stats()
	assert.Equal(t, int64(2), stats["skipped_files"])
}

func TestGetAllEmptyAndUnavailable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	nodes, err := fx.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	require.NoError(t, fx.fs.RemoveAll(testRoot))
	_, err = fx.store.GetAll(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestGetAllCancelled(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.store.Save(context.Background(), trees.NewStringNode(fx.factory, "x"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fx.store.GetAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelete(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ref, err := fx.store.Save(ctx, trees.NewStringNode(fx.factory, "bye"))
	require.NoError(t, err)

	require.NoError(t, fx.store.Delete(ctx, ref))

	exists, err := afero.Exists(fx.fs, ref.Payload())
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, fx.store.Delete(ctx, ref), ErrNotFound)
	_, err = fx.store.Get(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

// removeFailingFs refuses every removal
type removeFailingFs struct {
	afero.Fs
	err error
}

func (r removeFailingFs) Remove(string) error {
	return r.err
}

func TestDeleteFailures(t *testing.T) {
	tests := []struct {
		name      string
		removeErr error
		wantErr   error
	}{
		{name: "permission denied", removeErr: os.ErrPermission, wantErr: ErrStorageUnavailable},
		{name: "vanished before removal", removeErr: os.ErrNotExist, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := afero.NewMemMapFs()
			f := trees.NewFactory()
			ser := serializer.NewJSONSerializer(mem, f)
			s, err := New(ser, f, trees.NewDirectoryNode(f, testRoot),
				WithFs(removeFailingFs{Fs: mem, err: tt.removeErr}))
			require.NoError(t, err)

			ref, err := s.Save(context.Background(), trees.NewStringNode(f, "stuck"))
			require.NoError(t, err)

			err = s.Delete(context.Background(), ref)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, tt.removeErr)
		})
	}
}

func TestUpdateIsNotImplemented(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ref, err := fx.store.Save(ctx, trees.NewStringNode(fx.factory, "v1"))
	require.NoError(t, err)

	assert.ErrorIs(t, fx.store.Update(ctx, ref, trees.NewStringNode(fx.factory, "v2")), ErrNotImplemented)
	assert.ErrorIs(t, fx.store.Update(ctx, nil, nil), ErrNotImplemented)
	assert.ErrorIs(t, fx.store.Update(ctx, trees.NewStringNode(fx.factory, "junk"), nil), ErrNotImplemented)
}

func TestYAMLStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := trees.NewFactory()
	ser := serializer.NewYAMLSerializer(fs, f)
	s, err := New(ser, f, trees.NewDirectoryNode(f, testRoot), WithFs(fs))
	require.NoError(t, err)

	ctx := context.Background()
	ref, err := s.Save(ctx, trees.NewStringNode(f, "yaml", trees.NewStringNode(f, "child")))
	require.NoError(t, err)
	assert.Equal(t, ".yaml", filepath.Ext(ref.Payload()))

	loaded, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "yaml", loaded.Payload())
	assert.Equal(t, 2, loaded.Len())
}

func TestStats(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ref, err := fx.store.Save(ctx, trees.NewStringNode(fx.factory, "x"))
	require.NoError(t, err)
	_, err = fx.store.Get(ctx, ref)
	require.NoError(t, err)
	_ = fx.store.Update(ctx, ref, nil)

	stats := fx.store.Stats()
	assert.Equal(t, int64(3), stats["total_operations"])
	assert.Equal(t, int64(2), stats["successful_ops"])
	assert.Equal(t, int64(1), stats["failed_ops"])
	ops := stats["operation_counts"].(map[string]int64)
	assert.Equal(t, int64(1), ops[opSave])
	assert.Equal(t, int64(1), ops[opGet])
	assert.Equal(t, int64(1), ops[opUpdate])
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("disk on fire")
	err := newError(opDelete, "/exchange/a.json", ErrStorageUnavailable, cause)

	assert.Equal(t, "store: delete /exchange/a.json: storage unavailable: disk on fire", err.Error())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrStorageUnavailable, KindOf(err))
	assert.Nil(t, KindOf(cause))

	bare := newError(opUpdate, "", ErrNotImplemented, nil)
	assert.Equal(t, "store: update: not implemented", bare.Error())
}
