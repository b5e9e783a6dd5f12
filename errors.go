/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "errors"

// Game errors are sentinel values so the command layer can map each
// failure onto a user-facing message. None of them are fatal.
var (
	errNotInRoom        = errors.New("not in a room")
	errAlreadyInRoom    = errors.New("already in a room or spectating")
	errNotOwner         = errors.New("only the room owner may do this")
	errWrongPhase       = errors.New("action not valid in the current phase")
	errNotYourTurn      = errors.New("not your turn to speak")
	errAlreadyActed     = errors.New("already spoken or voted this round")
	errInvalidTarget    = errors.New("target not found or not alive")
	errValidationFailed = errors.New("speech must be 1-200 characters")
	errCapacityExceeded = errors.New("room is full")
	errNotEnoughPlayers = errors.New("not enough players to start")
	errDuplicateWord    = errors.New("word pair already exists")
	errIndexOutOfRange  = errors.New("no pending word at that index")
	errSpectatingClosed = errors.New("room does not allow spectators")
)
