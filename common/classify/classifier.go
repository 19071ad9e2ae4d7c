package classify

import (
	"fmt"
	"math"
	"strings"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/lyzr/connected/common/models"
	"github.com/samber/lo"
)

const (
	// MinLength is the shortest trimmed text considered for code detection
	MinLength = 10

	// ExtensionConfidence is reported when a file extension decides the language
	ExtensionConfidence = 0.9

	// CodeThreshold is the confidence at or above which text counts as code
	CodeThreshold = 0.3

	patternWeight = 2
	keywordWeight = 1
	scoreScale    = 5.0
)

// Result is the outcome of classifying one piece of text
type Result struct {
	IsCode          bool
	Language        string
	Confidence      float64
	Score           int
	NaturalLanguage string
}

// Skipped reports that no language reached the threshold and the text stays plain text
func (r Result) Skipped() bool {
	return !r.IsCode
}

// Kind maps the result onto a transfer kind
func (r Result) Kind() models.TransferKind {
	if r.IsCode {
		return models.KindCode
	}
	return models.KindText
}

// Metadata returns the fields recorded on an auto-classified transfer
func (r Result) Metadata() map[string]interface{} {
	meta := map[string]interface{}{
		"auto_detected": true,
		"confidence":    r.Confidence,
	}
	if r.IsCode {
		meta["language"] = r.Language
		return meta
	}
	meta["classification_skipped"] = true
	if r.NaturalLanguage != "" {
		meta["natural_language"] = r.NaturalLanguage
	}
	return meta
}

// Classifier scores text against a set of language signatures
type Classifier struct {
	signatures []Signature

	// keyword -> indices into signatures
	owners  map[string][]int
	matcher *goahocorasick.Machine
}

// New builds a classifier over the given signatures, in priority order for ties
func New(signatures ...Signature) (*Classifier, error) {
	c := &Classifier{
		signatures: signatures,
		owners:     make(map[string][]int),
	}

	for i, sig := range signatures {
		for _, kw := range sig.Keywords {
			kw = strings.ToLower(kw)
			// text is split on non-word characters, so such keywords never match
			if !isWord(kw) {
				continue
			}
			c.owners[kw] = append(c.owners[kw], i)
		}
	}

	keywords := lo.Keys(c.owners)
	if len(keywords) == 0 {
		return c, nil
	}

	patterns := lo.Map(keywords, func(kw string, _ int) []rune {
		return []rune(kw)
	})
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("failed to build keyword matcher: %w", err)
	}
	c.matcher = m
	return c, nil
}

// Default returns a classifier over DefaultSignatures
func Default() *Classifier {
	c, err := New(DefaultSignatures()...)
	if err != nil {
		panic(fmt.Sprintf("default signatures: %v", err))
	}
	return c
}

// Languages lists the languages the classifier knows
func (c *Classifier) Languages() []string {
	return lo.Map(c.signatures, func(sig Signature, _ int) string {
		return sig.Language
	})
}

// Classify decides whether text is code. fileName is optional; a known
// extension short-circuits scoring.
func (c *Classifier) Classify(text, fileName string) Result {
	clean := strings.TrimSpace(text)
	if len([]rune(clean)) < MinLength {
		return c.plain(clean, Result{})
	}

	if lang, ok := c.byExtension(fileName); ok {
		return Result{IsCode: true, Language: lang, Confidence: ExtensionConfidence}
	}

	scores := make([]int, len(c.signatures))
	for i, sig := range c.signatures {
		for _, re := range sig.Patterns {
			if re.MatchString(clean) {
				scores[i] += patternWeight
			}
		}
	}
	for _, kw := range c.wholeWordKeywords(clean) {
		for _, i := range c.owners[kw] {
			scores[i] += keywordWeight
		}
	}

	best, bestScore := -1, 0
	for i, score := range scores {
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	confidence := math.Min(float64(bestScore)/scoreScale, 1)
	result := Result{Confidence: confidence, Score: bestScore}
	if best >= 0 && (confidence >= CodeThreshold || bestScore >= patternWeight) {
		result.IsCode = true
		result.Language = c.signatures[best].Language
		return result
	}
	return c.plain(clean, result)
}

func (c *Classifier) plain(text string, r Result) Result {
	if text == "" {
		return r
	}
	info := whatlanggo.Detect(text)
	if info.IsReliable() {
		r.NaturalLanguage = info.Lang.Iso6391()
	}
	return r
}

func (c *Classifier) byExtension(fileName string) (string, bool) {
	if fileName == "" {
		return "", false
	}
	dot := strings.LastIndex(fileName, ".")
	if dot < 0 {
		return "", false
	}
	ext := strings.ToLower(fileName[dot:])
	for _, sig := range c.signatures {
		if lo.Contains(sig.Extensions, ext) {
			return sig.Language, true
		}
	}
	return "", false
}

// wholeWordKeywords returns each distinct keyword occurring as a complete word
func (c *Classifier) wholeWordKeywords(text string) []string {
	if c.matcher == nil {
		return nil
	}
	runes := []rune(strings.ToLower(text))
	terms := c.matcher.MultiPatternSearch(runes, false)

	found := make(map[string]struct{})
	for _, term := range terms {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start > 0 && isWordRune(runes[start-1]) {
			continue
		}
		if end < len(runes) && isWordRune(runes[end]) {
			continue
		}
		found[string(term.Word)] = struct{}{}
	}
	return lo.Keys(found)
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isWordRune(r) {
			return false
		}
	}
	return true
}
