package session

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State is the controller's position in Disconnected → Connecting → Idle ⇄ Minting.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StateMinting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StateMinting:
		return "minting"
	default:
		return "unknown"
	}
}

// Loading reports whether a connection or mint is in flight.
func (s State) Loading() bool {
	return s == StateConnecting || s == StateMinting
}

// MintStatus is what the contract told us about the collection.
type MintStatus struct {
	TotalMinted         uint64
	TotalSupply         uint64
	LastMintedTokenLink string
	LastMintedMessage   string
}

// Notice is the last user-visible problem.
type Notice struct {
	Kind    ErrorKind
	Message string
	At      time.Time
}

// Snapshot is a copy of the controller state for renderers.
type Snapshot struct {
	State            State
	ConnectedAddress *common.Address
	Network          string
	Status           MintStatus
	Notice           *Notice
	LastTx           common.Hash
	Subscribed       bool
}

func (s Snapshot) IsLoading() bool {
	return s.State.Loading()
}

func (s Snapshot) Connected() bool {
	return s.ConnectedAddress != nil
}

func (s Snapshot) SoldOut() bool {
	return s.Status.TotalSupply > 0 && s.Status.TotalMinted >= s.Status.TotalSupply
}

// CollectionEnabled mirrors the gallery button: nothing to show until a mint exists.
func (s Snapshot) CollectionEnabled() bool {
	return s.Status.TotalMinted > 0 && !s.IsLoading()
}
