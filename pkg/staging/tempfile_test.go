package staging

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-bulk/pkg/errors"
	"github.com/ajitpratap0/nebula-bulk/pkg/metrics"
)

func TestTempFileLifecycle(t *testing.T) {
	dir := t.TempDir()
	staged := testutil.ToFloat64(metrics.StagedFiles)

	tf, err := Create(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(tf.Path()))
	assert.Equal(t, staged+1, testutil.ToFloat64(metrics.StagedFiles))

	_, err = tf.Write([]byte("Id,Name\n"))
	require.NoError(t, err)
	_, err = tf.Write([]byte("1,Acme\n"))
	require.NoError(t, err)
	require.NoError(t, tf.Commit())
	assert.Equal(t, int64(15), tf.Size())

	// reopenable
	for i := 0; i < 2; i++ {
		f, err := tf.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assert.Equal(t, "Id,Name\n1,Acme\n", string(data))
	}

	require.NoError(t, tf.Remove())
	assert.True(t, tf.Removed())
	assert.NoFileExists(t, tf.Path())
	assert.Equal(t, staged, testutil.ToFloat64(metrics.StagedFiles))

	// idempotent
	require.NoError(t, tf.Remove())
	assert.Equal(t, staged, testutil.ToFloat64(metrics.StagedFiles))
}

func TestTempFileRemoveWhileWriting(t *testing.T) {
	tf, err := Create(t.TempDir())
	require.NoError(t, err)
	_, err = tf.Write([]byte("partial"))
	require.NoError(t, err)

	require.NoError(t, tf.Remove())
	assert.NoFileExists(t, tf.Path())

	_, err = tf.Write([]byte("more"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestTempFileOpenBeforeCommit(t *testing.T) {
	tf, err := Create(t.TempDir())
	require.NoError(t, err)
	defer tf.Remove()

	_, err = tf.Open()
	assert.True(t, errors.IsType(err, errors.ErrorTypeRead))
}

func TestTempFileOpenAfterRemove(t *testing.T) {
	tf, err := Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, tf.Commit())
	require.NoError(t, tf.Remove())

	_, err = tf.Open()
	assert.True(t, errors.IsType(err, errors.ErrorTypeRead))
}

func TestTempFileCommitTwice(t *testing.T) {
	tf, err := Create(t.TempDir())
	require.NoError(t, err)
	defer tf.Remove()

	require.NoError(t, tf.Commit())
	assert.True(t, errors.IsType(tf.Commit(), errors.ErrorTypeStorage))
}

func TestCreateInMissingDir(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	tf, err := Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, tf.Commit())
	require.NoError(t, os.Remove(tf.Path()))

	assert.NoError(t, tf.Remove())
}
