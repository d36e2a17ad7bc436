package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashThenVerify(t *testing.T) {
	record, err := Hash("hunter2")
	require.NoError(t, err)

	assert.True(t, Verify("hunter2", record))
	assert.False(t, Verify("wrong", record))
	assert.False(t, Verify("", record))
}

func TestHashIsSalted(t *testing.T) {
	a, err := Hash("hunter2")
	require.NoError(t, err)
	b, err := Hash("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.ExpectedDigest, b.ExpectedDigest)
}

func TestEncodeRoundTrip(t *testing.T) {
	record, err := Hash("hunter2")
	require.NoError(t, err)

	encoded := record.Encode()
	decoded, err := ParseRecord(encoded)
	require.NoError(t, err)

	assert.Equal(t, record.Salt, decoded.Salt)
	assert.Equal(t, record.ExpectedDigest, decoded.ExpectedDigest)
	assert.True(t, Verify("hunter2", decoded))
}

func TestParseRecordMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"nosep",
		"not-base64!!!:not-base64!!!",
		":",
		"abc:",
	} {
		_, err := ParseRecord(s)
		assert.ErrorIs(t, err, ErrMalformedRecord, "input %q", s)
	}
}

func TestVerifyZeroValueRecordFails(t *testing.T) {
	assert.False(t, Verify("anything", Record{}))
}
