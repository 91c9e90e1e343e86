package command

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// fuzzyClassify compares every normalized phrase against each window of the
// input with the same number of words and returns the command of the first
// entry that reaches the threshold. Table order still decides ties between
// entries; within an entry the best window is enough.
func (c *Classifier) fuzzyClassify(normalized string) (Command, bool) {
	words := strings.Fields(normalized)

	for _, e := range c.entries {
		for _, p := range e.phrases {
			if bestWindowScore(words, p) >= c.fuzzyThreshold {
				return e.command, true
			}
		}
	}
	return Unknown, false
}

// bestWindowScore returns the highest Jaro-Winkler similarity between phrase
// and any run of len(Fields(phrase)) consecutive words.
func bestWindowScore(words []string, phrase string) float64 {
	size := len(strings.Fields(phrase))
	if size == 0 || len(words) < size {
		return 0
	}

	var best float64
	for i := 0; i+size <= len(words); i++ {
		window := strings.Join(words[i:i+size], " ")
		if s := matchr.JaroWinkler(window, phrase, false); s > best {
			best = s
		}
	}
	return best
}
