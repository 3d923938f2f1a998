package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDocumentSections(t *testing.T) {
	chunker := NewChunker(Options{})
	doc := Document{
		ProtocolNumber: "7.2",
		ProtocolTitle:  "Anaphylaxis",
		Body: `Indications:

Severe allergic reaction with airway compromise, hypotension, or respiratory distress.

ADULT DOSING

Epinephrine 0.3 mg IM lateral thigh, repeat every 5 minutes as needed. Consider diphenhydramine 50 mg IV.

Pediatric Dosing:

Epinephrine 0.01 mg/kg IM, maximum single dose 0.3 mg. Reassess airway after each dose.`,
	}

	chunks := chunker.ChunkDocument(doc)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Indications", chunks[0].Section)
	assert.Contains(t, chunks[0].Content, "Severe allergic reaction")
	assert.Equal(t, "ADULT DOSING", chunks[1].Section)
	assert.Contains(t, chunks[1].Content, "0.3 mg IM")
	assert.Equal(t, "Pediatric Dosing", chunks[2].Section)

	for _, chunk := range chunks {
		assert.Equal(t, "7.2", chunk.ProtocolNumber)
		assert.Equal(t, "Anaphylaxis", chunk.ProtocolTitle)
	}
}

func TestChunkDocumentSplitsOversized(t *testing.T) {
	chunker := NewChunker(Options{MaxChunkSize: 100})
	para := strings.Repeat("reassess the patient frequently. ", 3) // ~99 chars
	doc := Document{
		ProtocolNumber: "1.1",
		Body:           para + "\n\n" + para,
	}

	chunks := chunker.ChunkDocument(doc)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Content), 100)
	}
}

func TestChunkDocumentMergesTinyFragment(t *testing.T) {
	chunker := NewChunker(Options{MaxChunkSize: 100, MinChars: 40})
	doc := Document{
		Body: "This is a full paragraph describing the initial assessment steps for the responding crew in detail.\n\nSee 4.3.",
	}

	chunks := chunker.ChunkDocument(doc)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "See 4.3.")
}

func TestChunkDocumentEmpty(t *testing.T) {
	chunker := NewChunker(Options{})
	assert.Nil(t, chunker.ChunkDocument(Document{Body: "   \n\n  "}))
}

func TestChunkDocuments(t *testing.T) {
	chunker := NewChunker(Options{})
	chunks := chunker.ChunkDocuments([]Document{
		{ProtocolNumber: "1.1", Body: "Scene safety first. Assess responsiveness, airway, breathing, and circulation in order."},
		{ProtocolNumber: "1.2", Body: ""},
		{ProtocolNumber: "1.3", Body: "Obtain a full set of vitals and a SAMPLE history before transport decisions."},
	})
	require.Len(t, chunks, 2)
	assert.Equal(t, "1.1", chunks[0].ProtocolNumber)
	assert.Equal(t, "1.3", chunks[1].ProtocolNumber)
}
