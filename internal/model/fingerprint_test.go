package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestReader_isStableAndStreaming(t *testing.T) {
	digest1, size1, err := DigestReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.EqualValues(t, len("hello world"), size1)

	digest2, _, err := DigestReader(strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, digest1, digest2)

	digest3, _, err := DigestReader(strings.NewReader("different content"))
	require.NoError(t, err)
	require.NotEqual(t, digest1, digest3)
}
