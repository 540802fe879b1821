package hibiki

import "errors"

// Lifecycle errors
var (
	ErrNotActivated     = errors.New("manager is not activated")
	ErrAlreadyActivated = errors.New("manager is already activated")
)

// Node selection errors
var (
	ErrNodeRegistryEmpty = errors.New("no nodes registered")
	ErrNoNodesAvailable  = errors.New("no connected nodes available")
	ErrNodeNotFound      = errors.New("node not found")
	ErrNodeNotReady      = errors.New("node has no active session")
)

// Configuration errors
var (
	ErrMissingSendFunc  = errors.New(`library "other" requires a send function`)
	ErrMissingClientID  = errors.New(`library "other" requires a client id`)
	ErrUnknownLibrary   = errors.New("unknown library keyword")
	ErrInvalidHostType  = errors.New("host client type does not match configured library")
	ErrInvalidNode      = errors.New("node options missing name, host, port or password")
	ErrInvalidReconnect = errors.New("invalid reconnect settings")
)

// Player errors
var (
	ErrPlayerDestroyed = errors.New("player has been destroyed")
	ErrNoCurrentTrack  = errors.New("no track is playing")
)
