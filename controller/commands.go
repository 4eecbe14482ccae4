package controller

// Command is a keyboard command handled once per frame.
type Command int

// Commands.
const (
	CommandNone Command = iota
	CommandTrain
	CommandTrainEmbedding
	CommandToggleEmbedding
	CommandToggleThreshold
	CommandToggleMorph
	CommandResetBackground
	CommandSnapshot
	CommandQuit
)

var commandKeys = map[int]Command{
	'n': CommandTrain,
	'N': CommandTrainEmbedding,
	'r': CommandToggleEmbedding,
	't': CommandToggleThreshold,
	'm': CommandToggleMorph,
	'w': CommandResetBackground,
	's': CommandSnapshot,
	'q': CommandQuit,
}

// CommandFromKey maps a WaitKey result to a command. Unbound keys and -1 map to
// CommandNone.
func CommandFromKey(key int) Command {
	if key < 0 {
		return CommandNone
	}
	return commandKeys[key&0xFF]
}

func (c Command) String() string {
	switch c {
	case CommandTrain:
		return "train"
	case CommandTrainEmbedding:
		return "train-embedding"
	case CommandToggleEmbedding:
		return "toggle-embedding"
	case CommandToggleThreshold:
		return "toggle-threshold"
	case CommandToggleMorph:
		return "toggle-morph"
	case CommandResetBackground:
		return "reset-background"
	case CommandSnapshot:
		return "snapshot"
	case CommandQuit:
		return "quit"
	default:
		return "none"
	}
}
