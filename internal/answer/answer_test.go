package answer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCitationJSONKeepsZeroValues(t *testing.T) {
	// The first chunk of a file is index 0; it must survive serialization.
	doc := Citation{
		Type:              CitationRAG,
		Rank:              1,
		Score:             0.42,
		FileName:          "report.txt",
		ChunkIndex:        0,
		TotalChunksInFile: 3,
	}

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"chunk_index":0`)
	assert.Contains(t, string(raw), `"rank":1`)
	assert.Contains(t, string(raw), `"score":0.42`)

	var decoded Citation
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 0, decoded.ChunkIndex)

	// A refused generation cites an empty statement rather than omitting it.
	db := DatabaseCitation("sqlite", []string{}, "")
	raw, err = json.Marshal(db)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sql":""`)
}
