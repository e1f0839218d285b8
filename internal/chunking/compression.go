package chunking

import (
	"regexp"
	"strings"

	"legalrag/internal/ragcore"
)

// CompressionConfig controls keyword-guided compression.
type CompressionConfig struct {
	MaxChars         int
	PreserveFullText bool
}

// DefaultCompressionConfig matches spec §4.8's defaults.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{MaxChars: 1200, PreserveFullText: true}
}

var (
	sentenceSplit  = regexp.MustCompile(`(?s)(?:[.!?]+\s+|\n{2,})`)
	compressTokens = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

var compressionStopwords = map[string]bool{
	"sobre": true, "qual": true, "quais": true, "como": true, "quando": true,
	"onde": true, "para": true, "pela": true, "pelo": true, "este": true,
	"esta": true, "isso": true, "aquele": true, "aquela": true, "então": true,
	"assim": true, "porque": true, "entre": true, "desde": true, "ainda": true,
}

// Compress fills RetrievalResult.CompressedText with a keyword-guided
// extractive summary of each result's FullText (falling back to Text when no
// expansion ran), keeping only the sentences containing a query keyword until
// cfg.MaxChars is reached. When no keyword-bearing sentence exists, the first
// two sentences are kept instead. If cfg.PreserveFullText is false, FullText
// is overwritten with the compressed text rather than kept alongside it,
// mirroring the "preserve_full_text" toggle in the original pipeline.
func Compress(query string, results []ragcore.RetrievalResult, cfg CompressionConfig) []ragcore.RetrievalResult {
	if cfg.MaxChars <= 0 {
		return results
	}

	keywords := compressionKeywords(query)
	out := make([]ragcore.RetrievalResult, len(results))
	copy(out, results)

	for i := range out {
		source := out[i].FullText
		if source == "" {
			source = out[i].Chunk.Text
		}
		if len(source) <= cfg.MaxChars {
			continue
		}

		compressed := compressText(source, keywords, cfg.MaxChars)
		if !cfg.PreserveFullText {
			out[i].FullText = compressed
			continue
		}
		out[i].CompressedText = &compressed
	}
	return out
}

func compressionKeywords(query string) []string {
	tokens := compressTokens.FindAllString(strings.ToLower(query), -1)
	keywords := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len([]rune(t)) < 4 || compressionStopwords[t] {
			continue
		}
		keywords = append(keywords, t)
	}
	return keywords
}

func compressText(text string, keywords []string, maxChars int) string {
	sentences := sentenceSplit.Split(strings.TrimSpace(text), -1)
	sentences = trimEmptyStrings(sentences)
	if len(sentences) == 0 {
		return text
	}

	var kept []string
	var length int
	for _, s := range sentences {
		if !sentenceHasKeyword(s, keywords) {
			continue
		}
		if length+len(s) > maxChars && len(kept) > 0 {
			break
		}
		kept = append(kept, s)
		length += len(s)
		if length >= maxChars {
			break
		}
	}

	if len(kept) == 0 {
		limit := 2
		if limit > len(sentences) {
			limit = len(sentences)
		}
		kept = sentences[:limit]
	}

	result := strings.Join(kept, ". ")
	if len(result) > maxChars {
		result = result[:maxChars]
	}
	return result
}

func sentenceHasKeyword(sentence string, keywords []string) bool {
	lower := strings.ToLower(sentence)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func trimEmptyStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
