package hftokenizer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Model represents the tokenizer model (WordPiece, BPE, or Unigram).
//
// Vocab is a {"token": id} object for WordPiece and BPE, and a [["piece", score], ...] list for
// Unigram, so it is decoded after the type is known.
type Model struct {
	Type                    string          `json:"type"`
	Vocab                   json.RawMessage `json:"vocab"`
	Merges                  json.RawMessage `json:"merges"`
	UnkToken                string          `json:"unk_token"`
	UnkID                   *int            `json:"unk_id"`
	ContinuingSubwordPrefix string          `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int             `json:"max_input_chars_per_word"`
	FuseUnk                 bool            `json:"fuse_unk"`
	ByteFallback            bool            `json:"byte_fallback"`
	Dropout                 *float64        `json:"dropout"`
	EndOfWordSuffix         string          `json:"end_of_word_suffix"`
}

// modelToken is a token produced by a model, with its byte range within the word.
type modelToken struct {
	id         int
	start, end int
}

// vocabulary shared by the models: token <-> id.
type vocabulary struct {
	tokenToID map[string]int
	idToToken map[int]string
}

func newVocabulary() vocabulary {
	return vocabulary{tokenToID: make(map[string]int), idToToken: make(map[int]string)}
}

func (v *vocabulary) add(token string, id int) {
	v.tokenToID[token] = id
	v.idToToken[id] = token
}

// parseVocabMap parses the {"token": id} form of the vocabulary.
func parseVocabMap(raw json.RawMessage) (vocabulary, error) {
	v := newVocabulary()
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	var m map[string]int
	if err := json.Unmarshal(raw, &m); err != nil {
		return v, errors.Wrap(err, "parsing model vocab")
	}
	for token, id := range m {
		v.add(token, id)
	}
	return v, nil
}

// byteFallbackToken is the SentencePiece name of the token for a raw byte.
func byteFallbackToken(b byte) string {
	return fmt.Sprintf("<0x%02X>", b)
}

// wordPiece implements the greedy longest-match-first tokenization used by BERT.
type wordPiece struct {
	vocabulary
	unkID    int
	prefix   string
	maxChars int
}

func newWordPiece(m *Model) (*wordPiece, error) {
	v, err := parseVocabMap(m.Vocab)
	if err != nil {
		return nil, err
	}
	wp := &wordPiece{vocabulary: v, unkID: -1, prefix: m.ContinuingSubwordPrefix, maxChars: m.MaxInputCharsPerWord}
	if wp.prefix == "" {
		wp.prefix = "##"
	}
	if wp.maxChars == 0 {
		wp.maxChars = 100
	}
	if id, ok := v.tokenToID[m.UnkToken]; ok {
		wp.unkID = id
	}
	return wp, nil
}

func (wp *wordPiece) tokenize(word string) []modelToken {
	if word == "" {
		return nil
	}
	unknown := func() []modelToken {
		if wp.unkID < 0 {
			return nil
		}
		return []modelToken{{wp.unkID, 0, len(word)}}
	}
	if utf8.RuneCountInString(word) > wp.maxChars {
		return unknown()
	}
	var tokens []modelToken
	for start := 0; start < len(word); {
		found := false
		for end := len(word); end > start; {
			substr := word[start:end]
			if start > 0 {
				substr = wp.prefix + substr
			}
			if id, ok := wp.tokenToID[substr]; ok {
				tokens = append(tokens, modelToken{id, start, end})
				start = end
				found = true
				break
			}
			_, size := utf8.DecodeLastRuneInString(word[start:end])
			end -= size
		}
		if !found {
			return unknown()
		}
	}
	return tokens
}

// bpe implements byte-pair encoding (GPT-2, RoBERTa).
type bpe struct {
	vocabulary
	mergeRanks   map[[2]string]int
	unkID        int
	fuseUnk      bool
	byteFallback bool
	prefix       string
	suffix       string
}

func newBPE(m *Model) (*bpe, error) {
	v, err := parseVocabMap(m.Vocab)
	if err != nil {
		return nil, err
	}
	b := &bpe{
		vocabulary:   v,
		mergeRanks:   make(map[[2]string]int),
		unkID:        -1,
		fuseUnk:      m.FuseUnk,
		byteFallback: m.ByteFallback,
		prefix:       m.ContinuingSubwordPrefix,
		suffix:       m.EndOfWordSuffix,
	}
	if id, ok := v.tokenToID[m.UnkToken]; ok {
		b.unkID = id
	}
	if len(m.Merges) > 0 && string(m.Merges) != "null" {
		// Merges are either "a b" strings or ["a", "b"] pairs, depending on the tokenizers version.
		var asStrings []string
		if err := json.Unmarshal(m.Merges, &asStrings); err == nil {
			for i, merge := range asStrings {
				left, right, ok := strings.Cut(merge, " ")
				if !ok {
					return nil, errors.Errorf("invalid BPE merge %q", merge)
				}
				b.mergeRanks[[2]string{left, right}] = i
			}
		} else {
			var asPairs [][2]string
			if err := json.Unmarshal(m.Merges, &asPairs); err != nil {
				return nil, errors.Wrap(err, "parsing BPE merges")
			}
			for i, pair := range asPairs {
				b.mergeRanks[pair] = i
			}
		}
	}
	return b, nil
}

func (b *bpe) tokenize(word string) []modelToken {
	if word == "" {
		return nil
	}
	type symbol struct {
		text       string
		start, end int
	}
	var symbols []symbol
	for i, r := range word {
		size := utf8.RuneLen(r)
		if size < 0 {
			size = 1
		}
		text := string(r)
		if i > 0 {
			text = b.prefix + text
		}
		if i+size >= len(word) {
			text += b.suffix
		}
		symbols = append(symbols, symbol{text, i, i + size})
	}

	for len(symbols) > 1 {
		bestRank, bestIdx := math.MaxInt, -1
		for i := 0; i < len(symbols)-1; i++ {
			if rank, ok := b.mergeRanks[[2]string{symbols[i].text, symbols[i+1].text}]; ok && rank < bestRank {
				bestRank, bestIdx = rank, i
			}
		}
		if bestIdx < 0 {
			break
		}
		right := symbols[bestIdx+1].text
		if b.prefix != "" {
			right = strings.TrimPrefix(right, b.prefix)
		}
		symbols[bestIdx] = symbol{symbols[bestIdx].text + right, symbols[bestIdx].start, symbols[bestIdx+1].end}
		symbols = append(symbols[:bestIdx+1], symbols[bestIdx+2:]...)
	}

	var tokens []modelToken
	for _, sym := range symbols {
		if id, ok := b.tokenToID[sym.text]; ok {
			tokens = append(tokens, modelToken{id, sym.start, sym.end})
			continue
		}
		if b.byteFallback {
			if byteTokens, ok := b.bytesFallback(word, sym.start, sym.end); ok {
				tokens = append(tokens, byteTokens...)
				continue
			}
		}
		if b.unkID < 0 {
			continue
		}
		if b.fuseUnk && len(tokens) > 0 && tokens[len(tokens)-1].id == b.unkID {
			tokens[len(tokens)-1].end = sym.end
			continue
		}
		tokens = append(tokens, modelToken{b.unkID, sym.start, sym.end})
	}
	return tokens
}

// bytesFallback maps each byte of word[start:end] to its <0xXX> token, if they are all present.
func (v *vocabulary) bytesFallback(word string, start, end int) ([]modelToken, bool) {
	tokens := make([]modelToken, 0, end-start)
	for i := start; i < end; i++ {
		id, ok := v.tokenToID[byteFallbackToken(word[i])]
		if !ok {
			return nil, false
		}
		tokens = append(tokens, modelToken{id, start, end})
	}
	return tokens, true
}

// unigram implements the SentencePiece unigram model, with Viterbi decoding of the best segmentation.
type unigram struct {
	vocabulary
	scores       []float64
	unkID        int
	unkScore     float64
	maxPieceLen  int // in runes
	byteFallback bool
	fuseUnk      bool
}

// unkPenalty is subtracted from the lowest piece score to score unknown characters.
const unkPenalty = 10.0

func newUnigram(m *Model) (*unigram, error) {
	var entries [][2]json.RawMessage
	if err := json.Unmarshal(m.Vocab, &entries); err != nil {
		return nil, errors.Wrap(err, "parsing Unigram vocab, expected a list of [piece, score]")
	}
	u := &unigram{
		vocabulary:   newVocabulary(),
		scores:       make([]float64, len(entries)),
		unkID:        -1,
		byteFallback: m.ByteFallback,
		fuseUnk:      true,
	}
	minScore := math.Inf(1)
	for id, entry := range entries {
		var piece string
		if err := json.Unmarshal(entry[0], &piece); err != nil {
			return nil, errors.Wrapf(err, "parsing Unigram piece #%d", id)
		}
		if err := json.Unmarshal(entry[1], &u.scores[id]); err != nil {
			return nil, errors.Wrapf(err, "parsing score of Unigram piece %q", piece)
		}
		u.add(piece, id)
		u.maxPieceLen = max(u.maxPieceLen, utf8.RuneCountInString(piece))
		minScore = min(minScore, u.scores[id])
	}
	if m.UnkID != nil {
		u.unkID = *m.UnkID
	}
	u.unkScore = minScore - unkPenalty
	return u, nil
}

func (u *unigram) tokenize(word string) []modelToken {
	if word == "" {
		return nil
	}
	// Rune boundaries: positions[i] is the byte offset of the i-th rune.
	positions := make([]int, 0, len(word)+1)
	for i := range word {
		positions = append(positions, i)
	}
	positions = append(positions, len(word))
	n := len(positions) - 1

	type node struct {
		score float64
		from  int // rune index where the best piece ending here starts
		id    int
	}
	best := make([]node, n+1)
	for i := 1; i <= n; i++ {
		best[i].score = math.Inf(-1)
	}
	for start := 0; start < n; start++ {
		if math.IsInf(best[start].score, -1) {
			continue
		}
		matched := false
		for end := start + 1; end <= n && end-start <= u.maxPieceLen; end++ {
			id, ok := u.tokenToID[word[positions[start]:positions[end]]]
			if !ok {
				continue
			}
			if end == start+1 {
				matched = true
			}
			if s := best[start].score + u.scores[id]; s > best[end].score {
				best[end] = node{s, start, id}
			}
		}
		if !matched {
			// Single unknown character.
			if s := best[start].score + u.unkScore; s > best[start+1].score {
				best[start+1] = node{s, start, -1}
			}
		}
	}

	var reversed []modelToken
	for end := n; end > 0; {
		nd := best[end]
		reversed = append(reversed, modelToken{nd.id, positions[nd.from], positions[end]})
		end = nd.from
	}
	tokens := make([]modelToken, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		tok := reversed[i]
		if tok.id >= 0 {
			tokens = append(tokens, tok)
			continue
		}
		if u.byteFallback {
			if byteTokens, ok := u.bytesFallback(word, tok.start, tok.end); ok {
				tokens = append(tokens, byteTokens...)
				continue
			}
		}
		if u.unkID < 0 {
			continue
		}
		if u.fuseUnk && len(tokens) > 0 && tokens[len(tokens)-1].id == u.unkID {
			tokens[len(tokens)-1].end = tok.end
			continue
		}
		tokens = append(tokens, modelToken{u.unkID, tok.start, tok.end})
	}
	return tokens
}
