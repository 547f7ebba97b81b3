//go:build unix

package portable_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flowfs/afio/internal/backend"
	"github.com/flowfs/afio/internal/backend/portable"
	"github.com/stretchr/testify/assert"
)

func Test_Portable_WriteThenReadRoundTrip(t *testing.T) {
	b := portable.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	h, err := b.File(backend.PathOpReq{Path: path, Flags: backend.FlagReadWrite | backend.FlagCreate})
	assert.NoError(t, err)

	payload := make([]byte, 65536)
	for i := range payload {
		payload[i] = 0x4E
	}
	done, n, err := b.Write(h, backend.DataOpReq{Buffers: []backend.IOVec{{Buf: payload}}, Offset: 0}, nil)
	assert.True(t, done)
	assert.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.NoError(t, b.Sync(h))
	assert.NoError(t, b.Close(h))

	h2, err := b.File(backend.PathOpReq{Path: path, Flags: backend.FlagRead})
	assert.NoError(t, err)
	readBuf := make([]byte, 65536)
	done, n, err = b.Read(h2, backend.DataOpReq{Buffers: []backend.IOVec{{Buf: readBuf}}, Offset: 0}, nil)
	assert.True(t, done)
	assert.NoError(t, err)
	assert.Equal(t, len(readBuf), n)
	assert.NoError(t, b.Close(h2))

	for i, b := range readBuf {
		if b != 0x4E {
			t.Fatalf("byte %d = %x, want 0x4E", i, b)
		}
	}
}

func Test_Portable_DirCreateIdempotent(t *testing.T) {
	b := portable.New()
	dir := filepath.Join(t.TempDir(), "sub")

	_, err := b.Dir(backend.PathOpReq{Path: dir, Flags: backend.FlagCreate})
	assert.NoError(t, err)
	_, err = b.Dir(backend.PathOpReq{Path: dir, Flags: backend.FlagCreate})
	assert.NoError(t, err, "second create without CreateOnlyIfNotExist must succeed")

	_, err = b.Dir(backend.PathOpReq{Path: dir, Flags: backend.FlagCreateOnlyIfNotExist})
	assert.Error(t, err, "second create-only-if-not-exist must fail")
}

func Test_Portable_DirOnFilePathFailsNotADirectory(t *testing.T) {
	b := portable.New()
	dir := t.TempDir()
	path := filepath.Join(dir, "plainfile")
	_, err := b.File(backend.PathOpReq{Path: path, Flags: backend.FlagCreate | backend.FlagReadWrite})
	assert.NoError(t, err)

	_, err = b.Dir(backend.PathOpReq{Path: path})
	assert.ErrorIs(t, err, backend.ErrNotADirectory)
}

func Test_Portable_Truncate(t *testing.T) {
	b := portable.New()
	path := filepath.Join(t.TempDir(), "t")
	h, err := b.File(backend.PathOpReq{Path: path, Flags: backend.FlagReadWrite | backend.FlagCreate})
	assert.NoError(t, err)

	assert.NoError(t, b.Truncate(h, 4096))
	assert.NoError(t, b.Close(h))
}

func Test_Portable_OSSyncCreateWithContainingDirSyncSucceeds(t *testing.T) {
	b := portable.New()
	dir := t.TempDir()

	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, "f"+string(rune('a'+i)))
		h, err := b.File(backend.PathOpReq{
			Path:  path,
			Flags: backend.FlagReadWrite | backend.FlagCreate | backend.FlagOSSync,
		})
		assert.NoError(t, err)
		assert.NoError(t, b.Close(h))
	}

	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, "f"+string(rune('a'+i)))
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
	}
}

func Test_Portable_RmfileThenStatFails(t *testing.T) {
	b := portable.New()
	path := filepath.Join(t.TempDir(), "gone")
	_, err := b.File(backend.PathOpReq{Path: path, Flags: backend.FlagCreate | backend.FlagReadWrite})
	assert.NoError(t, err)
	assert.NoError(t, b.Rmfile(backend.PathOpReq{Path: path}))

	_, err = b.File(backend.PathOpReq{Path: path, Flags: backend.FlagRead})
	assert.Error(t, err)
}
