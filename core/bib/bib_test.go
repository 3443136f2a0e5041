package bib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleMarkup = `
<title>Genetic analysis of dauer formation</title>
<author>Riddle D</author>
<author>Albert P</author>
<journal>Genetics</journal>
<citation>V 95(3) 905-928 1981</citation>
<accession>PMID 7274029</accession>
<type>journal article</type>
<abstract>Dauer larvae form under crowded conditions.</abstract>
<subject>C. elegans</subject>
<subject>dauer</subject>
`

func TestExtractAllFields(t *testing.T) {
	info := Extract(sampleMarkup)

	assert.Equal(t, "Genetic analysis of dauer formation", info.Title)
	assert.Equal(t, "Riddle D, Albert P", info.Author)
	assert.Equal(t, "Genetics", info.Journal)
	assert.Equal(t, "PMID 7274029", info.Accession)
	assert.Equal(t, "journal article", info.Type)
	assert.Equal(t, "Dauer larvae form under crowded conditions.", info.Abstract)
	assert.Equal(t, "C. elegans, dauer", info.Subject)
}

func TestExtractYearFromCitation(t *testing.T) {
	info := Extract(sampleMarkup)
	assert.Equal(t, "1981", info.Year)
}

func TestExtractExplicitYearWins(t *testing.T) {
	info := Extract(`<year>2003</year><citation>V 12 1999</citation>`)
	assert.Equal(t, "2003", info.Year)
}

func TestExtractMissingFieldsAreEmpty(t *testing.T) {
	info := Extract("plain text with no markup at all")

	assert.Empty(t, info.Title)
	assert.Empty(t, info.Author)
	assert.Empty(t, info.Year)
	assert.Empty(t, info.Abstract)
}

func TestExtractMultilineElement(t *testing.T) {
	info := Extract("<abstract>line one\nline two</abstract>")
	assert.Equal(t, "line one\nline two", info.Abstract)
}
