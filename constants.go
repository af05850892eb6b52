package main

type Mode int

const (
	ModeNormal Mode = iota
	ModeAddEmployee
	ModeSearch
	ModeConfirm
	ModeFilter
	ModeExport
	ModeReassign
)

func (m Mode) String() string {
	switch m {
	case ModeAddEmployee:
		return "ADD"
	case ModeSearch:
		return "SEARCH"
	case ModeConfirm:
		return "CONFIRM"
	case ModeFilter:
		return "FILTER"
	case ModeExport:
		return "EXPORT"
	case ModeReassign:
		return "REASSIGN"
	}
	return "NORMAL"
}

type ConfirmAction int

const (
	ConfirmRemoveEmployee ConfirmAction = iota
	ConfirmQuit
	ConfirmResetFilters
)

type ExportFormat int

const (
	ExportPNG ExportFormat = iota
	ExportSVG
	ExportTXT
)

func (f ExportFormat) Ext() string {
	switch f {
	case ExportSVG:
		return ".svg"
	case ExportTXT:
		return ".txt"
	}
	return ".png"
}

const (
	toolbarRows   = 1
	statusRows    = 1
	minimapWidth  = 26
	minimapHeight = 8
	maxCandidates = 8
	panStep       = 2 // cells per pan key press
)
