package scanner

import (
	"bytes"
	"context"
	"regexp"
)

// EICARSignature is the industry-standard antivirus test string.
const EICARSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

type contentPattern struct {
	name string
	re   *regexp.Regexp
}

var dangerousPatterns = []contentPattern{
	{name: "Suspicious.ScriptTag", re: regexp.MustCompile(`(?i)<script[\s>]`)},
	{name: "Suspicious.JavascriptURI", re: regexp.MustCompile(`(?i)javascript:`)},
	{name: "Suspicious.VBScriptURI", re: regexp.MustCompile(`(?i)vbscript:`)},
	{name: "Suspicious.HTMLDataURI", re: regexp.MustCompile(`(?i)data:text/html`)},
}

// PatternStrategy matches known test signatures and dangerous embedded content.
//
// It has deliberately low recall and only exists so the pipeline can always
// produce a verdict.
type PatternStrategy struct{}

// NewPatternStrategy returns the pattern fallback strategy.
func NewPatternStrategy() *PatternStrategy {
	return &PatternStrategy{}
}

// Type returns TypePattern.
func (*PatternStrategy) Type() Type { return TypePattern }

// Scan reports every matched signature as a threat.
func (*PatternStrategy) Scan(_ context.Context, content []byte) Outcome {
	var threats []string
	if bytes.Contains(content, []byte(EICARSignature)) {
		threats = append(threats, "EICAR-Test-File")
	}
	for _, p := range dangerousPatterns {
		if p.re.Match(content) {
			threats = append(threats, p.name)
		}
	}
	return threatOutcome(TypePattern, threats)
}
