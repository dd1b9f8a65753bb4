package session

import "context"

// State names a step of the conversation machine.
type State string

const (
	Idle                       State = "idle"
	AwaitingBody               State = "awaiting_body"
	AwaitingName               State = "awaiting_name"
	AwaitingTagChoice          State = "awaiting_tag_choice"
	AwaitingTagSelection       State = "awaiting_tag_selection"
	AwaitingNewTagText         State = "awaiting_new_tag_text"
	AwaitingDeleteAllConfirm1  State = "awaiting_delete_all_confirm_1"
	AwaitingDeleteAllConfirm2  State = "awaiting_delete_all_confirm_2"
	AwaitingTagSearchSelection State = "awaiting_tag_search_selection"
	AwaitingRestoreConfirm     State = "awaiting_restore_confirm"
	EditingName                State = "editing_name"
	EditingBody                State = "editing_body"
	EditingTag                 State = "editing_tag"
)

// Scratch holds the fields collected so far in a multi-step flow.
type Scratch struct {
	Body            string `json:"body,omitempty"`
	Name            string `json:"name,omitempty"`
	Tag             string `json:"tag,omitempty"`
	EditingRecordID uint64 `json:"editing_record_id,omitempty"`
	CreatingNewTag  bool   `json:"creating_new_tag,omitempty"`
	PendingURL      string `json:"pending_url,omitempty"`
}

type Session struct {
	State   State   `json:"state"`
	Scratch Scratch `json:"scratch"`
}

// Store keeps per-owner sessions. A missing session reads back as a fresh
// Idle session; eviction by TTL is therefore indistinguishable from
// explicit clearing.
type Store interface {
	Get(ctx context.Context, ownerID int64) (Session, error)
	Set(ctx context.Context, ownerID int64, s Session) error
	Clear(ctx context.Context, ownerID int64) error
}
