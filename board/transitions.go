package board

import taskdesk "github.com/sirnukesalot/taskdesk-go"

// StatusLabels maps statuses to their display labels.
var StatusLabels = map[taskdesk.Status]string{
	taskdesk.StatusCreated:    "Created",
	taskdesk.StatusInProgress: "In Progress",
	taskdesk.StatusWaiting:    "Waiting",
	taskdesk.StatusDone:       "Done",
	taskdesk.StatusArchived:   "Archived",
}

// ValidTransitions is the workflow adjacency table. The backend enforces it
// authoritatively; the board uses it to offer legal moves.
var ValidTransitions = map[taskdesk.Status][]taskdesk.Status{
	taskdesk.StatusCreated:    {taskdesk.StatusInProgress},
	taskdesk.StatusInProgress: {taskdesk.StatusWaiting, taskdesk.StatusDone},
	taskdesk.StatusWaiting:    {taskdesk.StatusInProgress},
	taskdesk.StatusDone:       {taskdesk.StatusInProgress, taskdesk.StatusArchived},
}

// Label returns the display label for a status.
func Label(status taskdesk.Status) string {
	if l, ok := StatusLabels[status]; ok {
		return l
	}
	return string(status)
}
