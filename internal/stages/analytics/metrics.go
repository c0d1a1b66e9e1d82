package analytics

import (
	"regexp"
	"strings"
)

// fillerWords are the disfluencies counted by the analytics stage.
var fillerWords = map[string]struct{}{
	"um":        {},
	"uh":        {},
	"er":        {},
	"ah":        {},
	"like":      {},
	"literally": {},
	"basically": {},
	"actually":  {},
	"y'know":    {},
}

// speakerLinePattern matches "Name: said something" transcript lines.
var speakerLinePattern = regexp.MustCompile(`^([A-Za-z][\w .'-]{0,40}):\s+(.*)$`)

// timestampPattern matches inline "[hh:mm:ss]" or "[mm:ss]" markers.
var timestampPattern = regexp.MustCompile(`\[(\d{1,2}):(\d{2})(?::(\d{2}))?\]`)

// Analyze computes conversation metrics for a raw transcript. An empty
// transcript yields a zero-valued result rather than an error.
func Analyze(transcript string) Result {
	result := Result{}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return result
	}

	speakerWords := make(map[string]int)
	fillerCounts := make(map[string]int)
	currentSpeaker := ""

	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		text := line
		if match := speakerLinePattern.FindStringSubmatch(line); match != nil {
			currentSpeaker = strings.TrimSpace(match[1])
			text = match[2]
		}
		words := countableWords(text)
		result.WordCount += len(words)
		if currentSpeaker != "" {
			speakerWords[currentSpeaker] += len(words)
		}
		for _, word := range words {
			normalized := normalizeWord(word)
			if _, ok := fillerWords[normalized]; ok {
				result.FillerWordCount++
				fillerCounts[normalized]++
			}
		}
	}

	result.SpeakerCount = len(speakerWords)
	if result.WordCount > 0 && len(speakerWords) > 0 {
		result.TalkShare = make(map[string]float64, len(speakerWords))
		for speaker, words := range speakerWords {
			result.TalkShare[speaker] = float64(words) / float64(result.WordCount)
		}
	}
	if len(fillerCounts) > 0 {
		result.FillerWords = fillerCounts
	}

	if duration := transcriptDurationSeconds(transcript); duration > 0 {
		result.DurationSeconds = duration
		result.WordsPerMinute = float64(result.WordCount) / (float64(duration) / 60.0)
	}

	return result
}

func countableWords(text string) []string {
	text = timestampPattern.ReplaceAllString(text, " ")
	return strings.Fields(text)
}

func normalizeWord(word string) string {
	return strings.ToLower(strings.Trim(word, ".,!?;:\"()[]"))
}

// transcriptDurationSeconds derives session length from the spread between
// the first and last inline timestamp markers. Zero when fewer than two
// markers are present.
func transcriptDurationSeconds(transcript string) int {
	matches := timestampPattern.FindAllStringSubmatch(transcript, -1)
	if len(matches) < 2 {
		return 0
	}
	first := timestampSeconds(matches[0])
	last := timestampSeconds(matches[len(matches)-1])
	if last <= first {
		return 0
	}
	return last - first
}

func timestampSeconds(match []string) int {
	nums := make([]int, 0, 3)
	for _, part := range match[1:] {
		if part == "" {
			continue
		}
		value := 0
		for _, r := range part {
			value = value*10 + int(r-'0')
		}
		nums = append(nums, value)
	}
	switch len(nums) {
	case 2:
		return nums[0]*60 + nums[1]
	case 3:
		return nums[0]*3600 + nums[1]*60 + nums[2]
	}
	return 0
}
