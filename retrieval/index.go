// Package retrieval provides a lexical term-overlap index over a static
// knowledge corpus. Chunks are cut at sentence boundaries, scored by raw
// token overlap, and persisted as a KV snapshot so restarts skip the build.
package retrieval

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/wiralab/wira/pkg/config"
	"github.com/wiralab/wira/pkg/kv"
)

const snapshotKey = "retrieval:chunks"

var nonWordRe = regexp.MustCompile(`[^a-z0-9\x{00C0}-\x{024F}\s]`)

// Chunk is one immutable corpus fragment with its derived tokens
type Chunk struct {
	Text   string   `json:"text"`
	Tokens []string `json:"tokens"`
}

type Index struct {
	cfg    config.RetrievalConfig
	store  *kv.KV // optional snapshot store
	chunks []indexedChunk
}

type indexedChunk struct {
	text     string
	tokenSet map[string]struct{}
}

// New creates an index and populates it: a valid KV snapshot wins, otherwise
// the corpus file is chunked fresh and the snapshot written back. A missing
// corpus leaves the index empty (queries return "").
func New(cfg config.RetrievalConfig, store *kv.KV) *Index {
	idx := &Index{cfg: cfg, store: store}
	if cfg.MaxChunkLen <= 0 {
		idx.cfg.MaxChunkLen = 800
	}
	if cfg.TopK <= 0 {
		idx.cfg.TopK = 3
	}

	if idx.load() {
		return idx
	}

	data, err := os.ReadFile(cfg.CorpusPath)
	if err != nil {
		log.Printf("[Retrieval] Knowledge base file not found, skip indexing: %v", err)
		return idx
	}
	idx.Build(string(data))
	idx.saveSnapshot()
	return idx
}

// Build chunks and tokenizes corpus text, replacing any existing chunks
func (idx *Index) Build(corpusText string) {
	chunks := chunkText(corpusText, idx.cfg.MaxChunkLen)
	idx.chunks = make([]indexedChunk, 0, len(chunks))
	for _, text := range chunks {
		idx.chunks = append(idx.chunks, newIndexedChunk(text, Tokenize(text)))
	}
	log.Printf("[Retrieval] Index built (lexical): %d chunks", len(idx.chunks))
}

// Len returns the number of indexed chunks
func (idx *Index) Len() int { return len(idx.chunks) }

// Query scores every chunk by raw token overlap with the query (repeated
// query tokens count every occurrence), drops zero scores, and returns the
// top K chunk texts joined by a blank line. Never errors: an empty query or
// empty index yields "".
func (idx *Index) Query(text string) string {
	if text == "" || len(idx.chunks) == 0 {
		return ""
	}
	queryTokens := Tokenize(text)
	if len(queryTokens) == 0 {
		return ""
	}

	type scored struct {
		order int
		text  string
		score int
	}
	var hits []scored
	for i, c := range idx.chunks {
		score := 0
		for _, tok := range queryTokens {
			if _, ok := c.tokenSet[tok]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{order: i, text: c.text, score: score})
		}
	}
	if len(hits) == 0 {
		return ""
	}

	// stable: ties keep original chunk order
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	k := idx.cfg.TopK
	if len(hits) > k {
		hits = hits[:k]
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.text
	}
	return strings.Join(parts, "\n\n")
}

// load restores chunks from the KV snapshot. Returns false when no usable
// snapshot exists (missing store, missing key, or parse failure).
func (idx *Index) load() bool {
	if idx.store == nil {
		return false
	}
	raw, err := idx.store.Get(snapshotKey)
	if err != nil {
		if !kv.IsNotFound(err) {
			log.Printf("[Retrieval] Snapshot read failed, will rebuild: %v", err)
		}
		return false
	}
	var chunks []Chunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		log.Printf("[Retrieval] Snapshot parse failed, will rebuild: %v", err)
		return false
	}
	idx.chunks = make([]indexedChunk, 0, len(chunks))
	for _, c := range chunks {
		tokens := c.Tokens
		if len(tokens) == 0 {
			tokens = Tokenize(c.Text)
		}
		idx.chunks = append(idx.chunks, newIndexedChunk(c.Text, tokens))
	}
	log.Printf("[Retrieval] Index loaded from snapshot: %d chunks", len(idx.chunks))
	return true
}

func (idx *Index) saveSnapshot() {
	if idx.store == nil || len(idx.chunks) == 0 {
		return
	}
	chunks := make([]Chunk, len(idx.chunks))
	for i, c := range idx.chunks {
		tokens := make([]string, 0, len(c.tokenSet))
		for tok := range c.tokenSet {
			tokens = append(tokens, tok)
		}
		sort.Strings(tokens)
		chunks[i] = Chunk{Text: c.text, Tokens: tokens}
	}
	raw, err := json.Marshal(chunks)
	if err != nil {
		log.Printf("[Retrieval] Snapshot marshal failed: %v", err)
		return
	}
	if err := idx.store.Set(snapshotKey, raw); err != nil {
		log.Printf("[Retrieval] Snapshot write failed: %v", err)
	}
}

func newIndexedChunk(text string, tokens []string) indexedChunk {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return indexedChunk{text: text, tokenSet: set}
}

// Tokenize lowercases, strips everything outside word characters (including
// extended Latin), and splits on whitespace
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	cleaned := nonWordRe.ReplaceAllString(lowered, " ")
	return strings.Fields(cleaned)
}

// chunkText accumulates sentences until adding the next would exceed
// maxLen, then cuts. Sentences are never split.
func chunkText(text string, maxLen int) []string {
	sentences := splitSentences(text)
	var chunks []string
	var current strings.Builder

	for _, sentence := range sentences {
		if current.Len()+len(sentence) > maxLen {
			if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			current.Reset()
		}
		current.WriteString(sentence)
		current.WriteString(" ")
	}
	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		chunks = append(chunks, trimmed)
	}
	return chunks
}

// splitSentences splits after a period followed by whitespace, keeping the
// period with its sentence
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if text[i] == '.' && isSpace(text[i+1]) {
			sentences = append(sentences, text[start:i+1])
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// String describes the index for logs
func (idx *Index) String() string {
	return fmt.Sprintf("retrieval.Index(%d chunks, topK=%d)", len(idx.chunks), idx.cfg.TopK)
}
