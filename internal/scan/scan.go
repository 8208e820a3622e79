// Package scan is a best-effort discovery aid: it walks an opaque
// container image looking for byte runs that plausibly decode as
// source-language text and emits candidate manifest entries. Candidates
// are advisory only; a human confirms them before they enter the
// reader's trusted manifest.
package scan

import (
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/MimeLyc/bintext-repacker/internal/reader"
)

// Candidate is one plausible text run found in an image.
type Candidate struct {
	Offset int64
	Length int
	Text   string
}

// Options tunes the scanner's filters.
type Options struct {
	// MinLength is the minimum run length in bytes (default 3).
	MinLength int
	// MinJapanese is the minimum count of Japanese characters in a run
	// (default 1).
	MinJapanese int
	// RequireJapanese additionally asks the language detector to agree
	// that the decoded text reads as Japanese.
	RequireJapanese bool
}

func (o Options) withDefaults() Options {
	if o.MinLength <= 0 {
		o.MinLength = 3
	}
	if o.MinJapanese <= 0 {
		o.MinJapanese = 1
	}
	return o
}

// Scan extracts candidate text runs from a container image. Results are
// deduplicated by text, first occurrence wins.
func Scan(image []byte, opts Options) []Candidate {
	opts = opts.withDefaults()

	var candidates []Candidate
	seen := make(map[string]bool)
	i := 0

	for i < len(image)-1 {
		if !plausibleStart(image[i]) {
			i++
			continue
		}

		start := i
		run, japaneseChars, next := gatherRun(image, i)
		i = next

		if len(run) < opts.MinLength || japaneseChars < opts.MinJapanese {
			continue
		}

		text, ok := decodeRun(run)
		if !ok || looksLikeGarbage(text) {
			continue
		}
		if opts.RequireJapanese && whatlanggo.DetectLang(text) != whatlanggo.Jpn {
			continue
		}
		if seen[text] {
			continue
		}
		seen[text] = true

		candidates = append(candidates, Candidate{
			Offset: int64(start),
			Length: len(run),
			Text:   text,
		})
	}

	return candidates
}

// CandidateSpans converts scanner output into unconfirmed manifest
// entries for human review.
func CandidateSpans(candidates []Candidate) []reader.EntrySpan {
	spans := make([]reader.EntrySpan, 0, len(candidates))
	for _, c := range candidates {
		spans = append(spans, reader.EntrySpan{
			Offset:    c.Offset,
			Length:    c.Length,
			Candidate: true,
			Context:   c.Text,
		})
	}
	return spans
}

func plausibleStart(b byte) bool {
	return isLead(b) || (b >= 0x20 && b <= 0x7E)
}

func isLead(b byte) bool {
	return (b >= 0x81 && b <= 0x9F) || (b >= 0xE0 && b <= 0xFC)
}

func isTrail(b byte) bool {
	return (b >= 0x40 && b <= 0x7E) || (b >= 0x80 && b <= 0xFC)
}

// gatherRun collects one contiguous plausible run starting at i and
// counts characters that look Japanese (hiragana, katakana, kanji,
// halfwidth katakana).
func gatherRun(image []byte, i int) (run []byte, japaneseChars, next int) {
	start := i
	for i < len(image) {
		b := image[i]

		if b == 0x00 || (b < 0x20 && b != 0x0A && b != 0x0D) {
			break
		}

		// Single-byte ASCII.
		if (b >= 0x20 && b <= 0x7E) || b == 0x0A || b == 0x0D {
			run = append(run, b)
			i++
			continue
		}

		// Halfwidth katakana.
		if b >= 0xA1 && b <= 0xDF {
			run = append(run, b)
			japaneseChars++
			i++
			continue
		}

		if isLead(b) && i+1 < len(image) && isTrail(image[i+1]) {
			run = append(run, b, image[i+1])
			if b <= 0x9F || (b >= 0xE0 && b <= 0xEF) {
				japaneseChars++
			}
			i += 2
			continue
		}

		break
	}

	if i == start {
		i++
	}
	return run, japaneseChars, i
}

func decodeRun(run []byte) (string, bool) {
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), run)
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(string(decoded))
	if text == "" {
		return "", false
	}
	return text, true
}

// looksLikeGarbage rejects runs that decode but read as binary noise:
// replacement characters, halfwidth katakana (almost always a misread),
// or too little real content.
func looksLikeGarbage(s string) bool {
	if strings.ContainsRune(s, utf8.RuneError) {
		return true
	}

	var japaneseChars, fullwidth, other int
	for _, r := range s {
		switch {
		case r >= 0xFF61 && r <= 0xFF9F:
			// Halfwidth katakana.
			return true
		case (r >= 0x3040 && r <= 0x309F) || (r >= 0x30A0 && r <= 0x30FF) || (r >= 0x4E00 && r <= 0x9FFF):
			japaneseChars++
		case r >= 0xFF01 && r <= 0xFF5E:
			fullwidth++
		case r == ' ' || r == '　' || r == '\n' || r == '\r':
		case strings.ContainsRune("。、！？「」『』（）・ー〜：；…―", r):
		case r >= 0x20 && r <= 0x7E:
		default:
			other++
		}
	}

	if other > 0 {
		return true
	}
	return japaneseChars+fullwidth < 2
}
