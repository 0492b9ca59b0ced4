package delivery

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	imagePrefix = regexp.MustCompile(`(?i)^image:`)
	textPrefix  = regexp.MustCompile(`(?i)^(?:\*+texto:\*+|texto:)`)
	audioPrefix = regexp.MustCompile(`(?i)^(?:\*+audio:\*+|audio:)`)
	audioSplit  = regexp.MustCompile(`(?i)audio:\s?`)
	listItem    = regexp.MustCompile(`(?m)^\s*(?:[-*•]\s+\S|\d+\.\s*\S)`)

	// speechUnsafe matches characters the voice engines would read out literally.
	speechUnsafe = regexp.MustCompile(`[^a-zA-Z0-9áéíóúÁÉÍÓÚâêîôûÂÊÎÔÛãõÃÕçÇ!?.,;:\s]`)
)

// ImageDirective is an `image: <url> [caption]` reply.
type ImageDirective struct {
	URL     string
	Caption string
}

// ParseImageDirective reports whether text starts with an image directive.
func ParseImageDirective(text string) (ImageDirective, bool) {
	t := strings.TrimSpace(text)
	if !imagePrefix.MatchString(t) {
		return ImageDirective{}, false
	}
	rest := strings.TrimSpace(imagePrefix.ReplaceAllString(t, ""))
	if rest == "" {
		return ImageDirective{}, false
	}
	url, caption, _ := strings.Cut(rest, " ")
	url = strings.Trim(url, `"`)
	if url == "" {
		return ImageDirective{}, false
	}
	return ImageDirective{URL: url, Caption: strings.TrimSpace(caption)}, true
}

func HasAudioPrefix(text string) bool {
	return audioPrefix.MatchString(strings.TrimSpace(text))
}

// StripText removes a leading `texto:` marker.
func StripText(text string) string {
	return strings.TrimSpace(textPrefix.ReplaceAllString(strings.TrimSpace(text), ""))
}

// AudioSegments strips a leading `audio:` marker and splits the rest on
// further markers. Empty segments are dropped.
func AudioSegments(text string) []string {
	body := strings.TrimSpace(audioPrefix.ReplaceAllString(strings.TrimSpace(text), ""))
	var out []string
	for _, seg := range audioSplit.Split(body, -1) {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// SanitizeSpeech keeps letters, digits, Portuguese accents and basic
// punctuation.
func SanitizeSpeech(text string) string {
	return strings.Join(strings.Fields(speechUnsafe.ReplaceAllString(text, "")), " ")
}

// SplitParts breaks a reply into chat messages. Paragraphs are separated by
// blank lines; a list paragraph stays with the part before it.
func SplitParts(text string) []string {
	text = strings.ReplaceAll(text, "**", "*")
	var (
		parts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
	}
	for _, para := range strings.Split(text, "\n\n") {
		if !listItem.MatchString(para) {
			flush()
		}
		cur.WriteString(para)
		cur.WriteString("\n")
	}
	flush()
	return parts
}

// PartDelay is the typing time simulated before sending part.
func PartDelay(part string, jitter func(n time.Duration) time.Duration) time.Duration {
	if jitter == nil {
		jitter = func(n time.Duration) time.Duration { return rand.N(n) }
	}
	switch n := utf8.RuneCountInString(part); {
	case n <= 50:
		return 5 * time.Second
	case n <= 150:
		return 5*time.Second + jitter(5*time.Second)
	case n <= 300:
		return 10*time.Second + jitter(5*time.Second)
	default:
		return 15*time.Second + jitter(15*time.Second)
	}
}

func mentionsCalculating(text string) bool {
	return strings.Contains(strings.ToLower(text), "calculando")
}
