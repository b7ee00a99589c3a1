package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseGroupLog parses "<chat_id>" or "<chat_id>:<thread_id>". Empty means disabled.
func ParseGroupLog(s string) (chatID int64, threadID int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	chatID, err = strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("telegram.group_log: invalid chat id %q", chatPart)
	}
	if hasThread {
		threadID, err = strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("telegram.group_log: invalid thread id %q", threadPart)
		}
	}
	return chatID, threadID, nil
}
