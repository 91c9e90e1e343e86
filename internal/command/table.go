package command

import "fmt"

// Command is the classified user intent derived from a transcript.
type Command string

const (
	// Caption asks the assistant to describe the scene in front of the camera.
	Caption Command = "caption"

	// Detection asks the assistant to list the objects it can see.
	Detection Command = "detection"

	// Help asks which voice commands are available.
	Help Command = "help"

	// Repeat asks the assistant to speak its last result again.
	Repeat Command = "repeat"

	// Unknown is the fallback when no candidate phrase matches.
	Unknown Command = "unknown"
)

// IsValid reports whether c is one of the recognised commands.
func (c Command) IsValid() bool {
	switch c {
	case Caption, Detection, Help, Repeat, Unknown:
		return true
	}
	return false
}

// Entry pairs a command with the candidate phrases that select it.
type Entry struct {
	Command Command
	Phrases []string
}

// Table is an ordered list of entries. When an utterance contains phrases of
// more than one entry, the entry that appears first wins.
type Table []Entry

// Order is the fixed priority in which commands are checked.
var Order = []Command{Caption, Detection, Help, Repeat}

// DefaultTable returns a fresh copy of the built-in pt-BR phrase table.
func DefaultTable() Table {
	return Table{
		{Command: Caption, Phrases: []string{
			"descreva",
			"descrever",
			"descrever ambiente",
			"descreva o ambiente",
			"descrever a cena",
			"descreva a cena",
		}},
		{Command: Detection, Phrases: []string{
			"identifique",
			"identificar",
			"identificar objetos",
			"detectar objetos",
			"encontrar objetos",
			"O que tem aqui",
			"o que esta na frente",
			"o que voce ve",
		}},
		{Command: Help, Phrases: []string{
			"ajuda",
			"o que posso falar",
			"quais comandos",
			"como usar",
			"como funciona",
			"como faço",
		}},
		{Command: Repeat, Phrases: []string{
			"repita",
			"repetir",
			"fale novamente",
		}},
	}
}

// TableFromPhrases builds a table in [Order] from a command → phrases map.
// Commands missing from phrases keep their default phrases; an explicitly
// empty list disables that command.
func TableFromPhrases(phrases map[Command][]string) (Table, error) {
	for cmd := range phrases {
		if !cmd.IsValid() || cmd == Unknown {
			return nil, fmt.Errorf("command: %q cannot carry phrases", cmd)
		}
	}

	defaults := DefaultTable()
	table := make(Table, 0, len(Order))
	for i, cmd := range Order {
		p, ok := phrases[cmd]
		if !ok {
			p = defaults[i].Phrases
		}
		table = append(table, Entry{Command: cmd, Phrases: append([]string(nil), p...)})
	}
	return table, nil
}
