package webview

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCommand 将终端输入行转换为入站消息
// ParseCommand turns one line typed into a terminal surface into an inbound message.
//
// Plain text starts a new task, or answers the current one when hasTask is set.
// Lines starting with "{" are decoded as raw wire messages. Surface-local
// commands such as /help and /quit are left to the caller.
func ParseCommand(line string, hasTask bool) (InboundMessage, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty input")
	}
	if strings.HasPrefix(line, "{") {
		return DecodeInbound([]byte(line))
	}
	if !strings.HasPrefix(line, "/") {
		if hasTask {
			return AskResponse{Text: line}, nil
		}
		return NewTask{Text: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case "new":
		if rest == "" {
			return nil, fmt.Errorf("/new needs a task description")
		}
		return NewTask{Text: rest}, nil
	case "clear":
		return ClearTask{}, nil
	case "cancel":
		return CancelTask{}, nil
	case "mode":
		if rest == "" {
			return nil, fmt.Errorf("/mode needs a mode slug")
		}
		return SwitchMode{Mode: rest}, nil
	case "profile":
		if rest == "" {
			return nil, fmt.Errorf("/profile needs a profile name")
		}
		return LoadAPIConfiguration{Name: rest}, nil
	case "profile-id":
		return LoadAPIConfigurationByID{ID: rest}, nil
	case "delete-profile":
		return DeleteAPIConfiguration{Name: rest}, nil
	case "rename-profile":
		oldName, newName, ok := strings.Cut(rest, " ")
		if !ok {
			return nil, fmt.Errorf("/rename-profile needs <old> <new>")
		}
		return RenameAPIConfiguration{OldName: oldName, NewName: strings.TrimSpace(newName)}, nil
	case "instructions":
		return CustomInstructions{Text: rest}, nil
	case "mcp":
		return OpenProjectMcpSettings{}, nil
	case "reset":
		return ResetState{}, nil
	case "set":
		key, value, _ := strings.Cut(rest, " ")
		return parseSetting(key, strings.TrimSpace(value))
	}
	return nil, fmt.Errorf("%w: /%s", ErrUnknownMessage, name)
}

func parseSetting(key, value string) (InboundMessage, error) {
	switch {
	case boolSettings[key]:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return SetBool{Key: key, Value: b}, nil
	case numberSettings[key]:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return SetNumber{Key: key, Value: f}, nil
	case stringSettings[key]:
		return SetString{Key: key, Value: value}, nil
	}
	return nil, fmt.Errorf("%w: setting %q", ErrUnknownMessage, key)
}
