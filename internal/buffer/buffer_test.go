package buffer_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcarbo/reldb/internal/buffer"
	"github.com/jmcarbo/reldb/internal/config"
	"github.com/jmcarbo/reldb/internal/disk"
)

func newPool(t *testing.T, numFrames int) (*buffer.Pool, *disk.Manager, disk.Fd) {
	dir := t.TempDir()
	dm := disk.New(128, filepath.Join(dir, "LOG"), config.CompressNone)
	path := filepath.Join(dir, "tbl")
	require.NoError(t, dm.CreateFile(path))
	fd, err := dm.OpenFile(path)
	require.NoError(t, err)
	return buffer.New(dm, numFrames, 128, buffer.PolicyLRU), dm, fd
}

func TestNewPageThenFetchSeesWrites(t *testing.T) {
	pool, dm, fd := newPool(t, 4)
	_, err := dm.AllocatePage(fd)
	require.NoError(t, err)

	fr, err := pool.NewPage(fd, 0)
	require.NoError(t, err)
	copy(fr.Data, []byte("hi"))
	require.NoError(t, pool.Unpin(fd, 0, true))

	fr2, err := pool.FetchPage(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, byte('h'), fr2.Data[0])
	require.NoError(t, pool.Unpin(fd, 0, false))
}

func TestEvictionFlushesDirtyFrame(t *testing.T) {
	pool, dm, fd := newPool(t, 1)
	for i := 0; i < 3; i++ {
		_, err := dm.AllocatePage(fd)
		require.NoError(t, err)
	}

	fr, err := pool.NewPage(fd, 0)
	require.NoError(t, err)
	copy(fr.Data, []byte("page0"))
	require.NoError(t, pool.Unpin(fd, 0, true))

	fr1, err := pool.NewPage(fd, 1)
	require.NoError(t, err)
	copy(fr1.Data, []byte("page1"))
	require.NoError(t, pool.Unpin(fd, 1, true))

	fr0, err := pool.FetchPage(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, byte('p'), fr0.Data[0])
	require.NoError(t, pool.Unpin(fd, 0, false))
}

func TestFlushAllResetsPool(t *testing.T) {
	pool, dm, fd := newPool(t, 4)
	_, err := dm.AllocatePage(fd)
	require.NoError(t, err)
	fr, err := pool.NewPage(fd, 0)
	require.NoError(t, err)
	copy(fr.Data, []byte("x"))
	require.NoError(t, pool.Unpin(fd, 0, true))
	require.NoError(t, pool.FlushAll())

	fr2, err := pool.FetchPage(fd, 0)
	require.NoError(t, err)
	assert.Equal(t, byte('x'), fr2.Data[0])
	require.NoError(t, pool.Unpin(fd, 0, false))
}
