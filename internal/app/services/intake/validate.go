package intake

import (
	"regexp"
	"strings"
)

// vaguePhrases are location descriptions too imprecise for a crew to act on.
// Matching is substring-based against the lower-cased, trimmed message.
var vaguePhrases = []string{
	"here",
	"near my house",
	"near my home",
	"home",
	"near here",
	"my place",
	"nearby",
	"around here",
	"this area",
}

// landmarkMarkers are substrings that indicate a location is anchored to
// something specific enough to dispatch a crew to, overriding an otherwise
// vague-looking phrase ("near my house on MG Road" is fine; "near my house"
// alone is not).
var landmarkMarkers = []string{
	"road", "street", "st.", "avenue", "lane", "circle", "block", "sector",
	"opposite", "behind", "next to", "junction", "crossing", "market", "chowk",
	"colony", "nagar", "gate", "signal",
}

func hasLandmark(lower string) bool {
	for _, m := range landmarkMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	for _, r := range lower {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

// isVagueLocation reports whether loc fails the specificity bar: too short,
// or containing one of the reserved vague phrases with no offsetting
// landmark reference.
func isVagueLocation(loc string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(loc))
	if trimmed == "" {
		return true
	}
	if len(trimmed) < 8 {
		return true
	}
	if hasLandmark(trimmed) {
		return false
	}
	for _, phrase := range vaguePhrases {
		if strings.Contains(trimmed, phrase) {
			return true
		}
	}
	return false
}

// civicKeywords are the terms a complaint description must reference before
// the intake machine accepts it as an issue description.
var civicKeywords = []string{
	"pothole", "road", "street light", "streetlight", "water", "sewage",
	"drainage", "drain", "garbage", "trash", "waste", "electricity", "power",
	"tree", "footpath", "sidewalk", "traffic", "signal", "encroachment",
	"stray", "noise", "construction", "flood", "leak", "manhole",
}

const minDescriptionLength = 15

// isCivicIssue reports whether desc both meets a minimum length and
// references a recognized civic-issue keyword.
func isCivicIssue(desc string) bool {
	if len(strings.TrimSpace(desc)) < minDescriptionLength {
		return false
	}
	lower := strings.ToLower(desc)
	for _, kw := range civicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// injectionPatterns flag attempts to hijack the conversation into treating
// citizen input as instructions to the underlying model.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?previous instructions`),
	regexp.MustCompile(`(?i)disregard (the )?(above|prior) (instructions|prompt)`),
	regexp.MustCompile(`(?i)\bact as\b`),
	regexp.MustCompile(`(?i)system prompt`),
	regexp.MustCompile(`(?i)you are now\b`),
	regexp.MustCompile(`(?i)reveal your (instructions|prompt)`),
}

// isPromptInjection reports whether text matches a known jailbreak pattern.
func isPromptInjection(text string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// affirmative/negative message classifiers for the READY_TO_FILE confirmation
// step and the AWAITING_IMAGE_OPTIONAL skip step.
var affirmativeWords = map[string]bool{"yes": true, "y": true, "confirm": true, "file": true, "submit": true}
var negativeWords = map[string]bool{"no": true, "n": true, "cancel": true, "discard": true}
var skipWords = map[string]bool{"skip": true, "no image": true, "none": true}

func isAffirmative(text string) bool {
	return affirmativeWords[strings.ToLower(strings.TrimSpace(text))]
}

func isNegative(text string) bool {
	return negativeWords[strings.ToLower(strings.TrimSpace(text))]
}

func isSkip(text string) bool {
	return skipWords[strings.ToLower(strings.TrimSpace(text))]
}
