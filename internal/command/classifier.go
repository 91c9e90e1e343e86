// Package command turns a free-form transcript into one of a small, fixed set
// of voice commands.
//
// Classification is deterministic: the input and every candidate phrase are
// passed through [Normalize], and the first [Table] entry whose phrase is a
// substring of the normalized input wins. When nothing matches the result is
// [Unknown], never an error.
package command

import (
	"strings"
)

type normalizedEntry struct {
	command Command
	phrases []string
}

// Option configures a [Classifier].
type Option func(*Classifier)

// WithFuzzyMatch enables a Jaro-Winkler fallback that is consulted only when
// no phrase is contained verbatim in the input. threshold is the minimum
// similarity in (0, 1]; values outside that range leave the fallback disabled.
func WithFuzzyMatch(threshold float64) Option {
	return func(c *Classifier) {
		if threshold > 0 && threshold <= 1 {
			c.fuzzyThreshold = threshold
		}
	}
}

// Classifier maps transcripts to commands. It is read-only after construction
// and safe for concurrent use.
type Classifier struct {
	table          Table
	entries        []normalizedEntry
	fuzzyThreshold float64
}

// NewClassifier normalizes every phrase of table once and returns a ready
// classifier. Phrases that normalize to the empty string are dropped, since
// they would otherwise match every input.
func NewClassifier(table Table, opts ...Option) *Classifier {
	c := &Classifier{table: cloneTable(table)}
	for _, o := range opts {
		o(c)
	}

	c.entries = make([]normalizedEntry, 0, len(table))
	for _, e := range table {
		ne := normalizedEntry{command: e.Command}
		for _, p := range e.Phrases {
			if n := Normalize(p); n != "" {
				ne.phrases = append(ne.phrases, n)
			}
		}
		c.entries = append(c.entries, ne)
	}
	return c
}

// Classify returns the command selected by text, or [Unknown].
func (c *Classifier) Classify(text string) Command {
	normalized := Normalize(text)
	if normalized == "" {
		return Unknown
	}

	for _, e := range c.entries {
		for _, p := range e.phrases {
			if strings.Contains(normalized, p) {
				return e.command
			}
		}
	}

	if c.fuzzyThreshold > 0 {
		if cmd, ok := c.fuzzyClassify(normalized); ok {
			return cmd
		}
	}
	return Unknown
}

// Table returns a copy of the table the classifier was built from.
func (c *Classifier) Table() Table {
	return cloneTable(c.table)
}

func cloneTable(t Table) Table {
	out := make(Table, len(t))
	for i, e := range t {
		out[i] = Entry{Command: e.Command, Phrases: append([]string(nil), e.Phrases...)}
	}
	return out
}

var defaultClassifier = NewClassifier(DefaultTable())

// Classify classifies text against [DefaultTable].
func Classify(text string) Command {
	return defaultClassifier.Classify(text)
}
