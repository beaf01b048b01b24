package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/domwxyz/aptr/pkg/errors"
)

func TestWritePid_FailureIsNeverNil(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "aptr.lock"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Writing to (and re-closing) a closed handle fails on both steps;
	// the combined error must be non-nil so wrapping it never produces a
	// typed-nil error value.
	werr := writePid(f)
	require.Error(t, werr)

	wrapped := errors.Wrapf(werr, errors.ErrWrite, "failed to record pid")
	require.Error(t, wrapped)
	require.NotEmpty(t, wrapped.Error())
}
