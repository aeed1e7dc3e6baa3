package tui

import (
	"github.com/fentz26/jml/internal/models"
)

type errMsg struct {
	err error
}

type commandResultMsg struct {
	message string
}

type eventsLoadedMsg struct {
	events []EventItem
}

type eventDetailLoadedMsg struct {
	event *models.LifecycleEvent
	audit []models.PDREntry
}

type daemonStatusMsg struct {
	online bool
}
