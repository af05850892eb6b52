package main

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/sirupsen/logrus"

	"orgterm/internal/chart"
	"orgterm/internal/directory"
	"orgterm/internal/drag"
	"orgterm/internal/layout"
	"orgterm/internal/store"
	"orgterm/internal/viewport"
)

type model struct {
	width  int
	height int
	mode   Mode
	config *Config
	log    *logrus.Entry

	svc  *chart.Service
	vp   *viewport.Viewport
	drag *drag.Engine

	selected   string
	moveSource string
	fitted     bool
	panning    bool
	lastMouse  layout.Point

	input          textinput.Model
	addParent      string
	candidates     []directory.Employee
	candidateIndex int

	confirmAction ConfirmAction
	confirmID     string

	filterCursor int

	help       bool
	helpScroll int
	helpCache  []string

	showLog        bool
	errorMessage   string
	successMessage string
	syncing        bool
}

// filterItem is one toggleable row of the filter panel.
type filterItem struct {
	facet string
	value string
	count int
}

type syncTickMsg struct{}

type syncDoneMsg struct {
	started uint64
	res     store.SyncResult
	err     error
}

type directoryChangedMsg struct{}

type exportDoneMsg struct {
	path string
	err  error
}
