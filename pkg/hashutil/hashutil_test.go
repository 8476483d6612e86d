package hashutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencontracts/corpuscore/pkg/hashutil"
)

func TestSHA256(t *testing.T) {
	got := hashutil.SHA256([]byte("hello world"))
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dacefac9019463f97d41ad3d9fc63e6e8b86", got)
}

func TestSHA256ReaderMatchesSHA256(t *testing.T) {
	content := []byte("some document bytes")
	want := hashutil.SHA256(content)
	got, err := hashutil.SHA256Reader(strings.NewReader(string(content)))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSHA256EmptyContent(t *testing.T) {
	got := hashutil.SHA256(nil)
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}
