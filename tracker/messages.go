package tracker

import (
	"fmt"
	"strings"
)

func startedText(id string) string { return fmt.Sprintf("Started tracking %s.", id) }

func stoppedText(id string) string {
	return fmt.Sprintf("Stopped tracking %s as the link was removed.", id)
}

func activeUsersText(id string, handles []string) string {
	return fmt.Sprintf("Active users interacting in %s: %s", id, strings.Join(handles, ", "))
}

func noNonBotUsersText(id string) string {
	return fmt.Sprintf("No non-bot chat users detected for %s.", id)
}

func noActiveUsersText(id string) string {
	return fmt.Sprintf("No active chat users detected for %s.", id)
}

func viewersText(id string, n int) string {
	return fmt.Sprintf("%s currently has %d viewers.", id, n)
}

func notLiveText(id string) string { return fmt.Sprintf("%s is not currently live.", id) }

func singleAppearanceText(handles []string) string {
	if len(handles) == 0 {
		return "No users appeared in only one list."
	}
	return "Users who appeared in only one list: " + strings.Join(handles, ", ")
}

func multiAppearanceText(handles []string) string {
	if len(handles) == 0 {
		return "No users appeared in more than one list."
	}
	return "Users who appeared in multiple lists: " + strings.Join(handles, ", ")
}
