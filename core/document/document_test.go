package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentenceKeyRoundTrip(t *testing.T) {
	key := SentenceKey("WBPaper00001234", 7)
	assert.Equal(t, "WBPaper00001234#000007", key)

	docID, number, ok := ParseSentenceKey(key)
	require.True(t, ok)
	assert.Equal(t, "WBPaper00001234", docID)
	assert.Equal(t, 7, number)
}

func TestSentenceKeyIdentifierWithHash(t *testing.T) {
	key := SentenceKey("doi#10.1234/abc", 12)

	docID, number, ok := ParseSentenceKey(key)
	require.True(t, ok)
	assert.Equal(t, "doi#10.1234/abc", docID)
	assert.Equal(t, 12, number)
}

func TestSentenceKeysSortInSentenceOrder(t *testing.T) {
	assert.Less(t, SentenceKey("d", 9), SentenceKey("d", 10))
	assert.Less(t, SentenceKey("d", 99), SentenceKey("d", 100))
}

func TestParseSentenceKeyMalformed(t *testing.T) {
	for _, key := range []string{"", "nodelimiter", "doc#notanumber"} {
		_, _, ok := ParseSentenceKey(key)
		assert.False(t, ok, "key %q", key)
	}
}

func TestCompressFieldRoundTrip(t *testing.T) {
	original := "The hermaphrodite gonad of C. elegans develops from a four-cell primordium."

	compressed, err := CompressField(original)
	require.NoError(t, err)
	assert.NotEqual(t, original, compressed)

	inflated, err := DecompressField(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, inflated)
}

func TestCompressFieldEmpty(t *testing.T) {
	compressed, err := CompressField("")
	require.NoError(t, err)
	assert.Empty(t, compressed)

	inflated, err := DecompressField("")
	require.NoError(t, err)
	assert.Empty(t, inflated)
}

func TestDecompressFieldRejectsGarbage(t *testing.T) {
	_, err := DecompressField("!!not base64!!")
	assert.Error(t, err)

	_, err = DecompressField("aGVsbG8=") // valid base64, not zlib
	assert.Error(t, err)
}

func TestProjectDefaultsToAllContentFields(t *testing.T) {
	p := Project(nil, nil)

	for _, field := range ContentFields {
		assert.True(t, p.Contains(field), "field %s", field)
	}
	assert.True(t, p.Contains(FieldIdentifier))
	assert.True(t, p.Contains(FieldYear))
}

func TestProjectIncludeExclude(t *testing.T) {
	p := Project([]string{FieldTitle, FieldAbstract}, []string{FieldAbstract})

	assert.True(t, p.Contains(FieldTitle))
	assert.False(t, p.Contains(FieldAbstract))
	assert.False(t, p.Contains(FieldFulltext))

	// Required fields survive exclusion.
	p = Project(nil, []string{FieldYear})
	assert.True(t, p.Contains(FieldYear))
}

func TestProjectStoredAddressesCompressedTwins(t *testing.T) {
	p := Project([]string{FieldTitle}, nil)
	stored := p.Stored()

	assert.Contains(t, stored, FieldTitle+CompressedSuffix)
	assert.Contains(t, stored, FieldYear)
	assert.Contains(t, stored, FieldCorpus)
	assert.NotContains(t, stored, FieldFulltext+CompressedSuffix)
}
