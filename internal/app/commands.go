package app

import (
	"strconv"
	"strings"
)

const (
	cmdHelp      = "/help"
	cmdList      = "/list"
	cmdSelect    = "/select"
	cmdDelete    = "/delete"
	cmdDeleteAll = "/delete_all"
	cmdReport    = "/report"
	cmdFeedback  = "/feedback"
	cmdLatest    = "/latest"
)

var knownCommands = map[string]bool{
	cmdHelp:      true,
	cmdList:      true,
	cmdSelect:    true,
	cmdDelete:    true,
	cmdDeleteAll: true,
	cmdReport:    true,
	cmdFeedback:  true,
	cmdLatest:    true,
}

// parseCommand splits text into a lower-cased command token and the rest.
// ok is false when the first token is not a known command.
func parseCommand(text string) (cmd, arg string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", "", false
	}
	cmd = strings.ToLower(fields[0])
	if !knownCommands[cmd] {
		return "", "", false
	}
	return cmd, strings.Join(fields[1:], " "), true
}

// parseIndex validates a 1-based position against count.
func parseIndex(command, arg string, count int) (int, error) {
	if count == 0 {
		return 0, &ValidationError{Message: replyNoDocuments}
	}
	fields := strings.Fields(arg)
	if len(fields) != 1 {
		return 0, &ValidationError{Message: replyIndexUsage(command, count)}
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 || n > count {
		return 0, &ValidationError{Message: replyIndexUsage(command, count)}
	}
	return n, nil
}
