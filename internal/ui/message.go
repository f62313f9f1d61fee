package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/spotsync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgAccountsLoaded MsgKind = iota
	MsgProgressUpdate
	MsgTransferComplete
)

type accountsLoaded struct {
	accounts []string
	err      error
}

type transferComplete struct {
	result *tasks.TransferResult
	err    error
}

// accountsLoadedMsg is the constructor for [MsgAccountsLoaded]
func accountsLoadedMsg(accounts []string, err error) Msg {
	return Msg{kind: MsgAccountsLoaded, data: accountsLoaded{accounts, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// transferCompleteMsg is the constructor for [MsgTransferComplete]
func transferCompleteMsg(result *tasks.TransferResult, err error) Msg {
	return Msg{kind: MsgTransferComplete, data: transferComplete{result, err}}
}
