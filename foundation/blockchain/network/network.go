// Package network defines the messages nodes exchange and the link used to
// exchange them.
package network

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// Set of message types exchanged between nodes.
const (
	TypeTransaction       = "transaction"
	TypeNewBlock          = "new_block"
	TypeSyncChain         = "sync_chain"
	TypeSyncChainResponse = "sync_chain_response"
)

// Set of error variables for the link.
var (
	ErrUnknownPeer = errors.New("unknown peer")
	ErrClosed      = errors.New("link closed")
)

// Message is the JSON document sent between nodes. Only the fields that
// belong to the message type are set.
type Message struct {
	Type        string           `json:"type"`
	Transaction *database.Tx     `json:"transaction,omitempty"`
	Block       *database.Block  `json:"block,omitempty"`
	BlockIndex  uint64           `json:"blockIndex,omitempty"`
	Chain       []database.Block `json:"chain,omitempty"`
	Error       string           `json:"error,omitempty"`
	RequestID   string           `json:"requestId,omitempty"`
	ReplyTo     string           `json:"replyTo,omitempty"`
}

// MarshalJSON implements the json.Marshaler interface. A sync request always
// carries blockIndex and a successful sync response always carries chain,
// even when the index is 0 or the chain is empty.
func (m Message) MarshalJSON() ([]byte, error) {
	type message Message

	switch {
	case m.Type == TypeSyncChain:
		return json.Marshal(struct {
			message
			BlockIndex uint64 `json:"blockIndex"`
		}{message(m), m.BlockIndex})

	case m.Type == TypeSyncChainResponse && m.Error == "":
		chain := m.Chain
		if chain == nil {
			chain = []database.Block{}
		}
		return json.Marshal(struct {
			message
			Chain []database.Block `json:"chain"`
		}{message(m), chain})
	}

	return json.Marshal(message(m))
}

// NewTransaction constructs a message sharing a pending transaction.
func NewTransaction(tx database.Tx) Message {
	return Message{Type: TypeTransaction, Transaction: &tx}
}

// NewBlock constructs a message sharing a block.
func NewBlock(block database.Block) Message {
	return Message{Type: TypeNewBlock, Block: &block}
}

// NewSyncChain constructs a request for the blocks starting at the index.
func NewSyncChain(requestID string, blockIndex uint64) Message {
	return Message{Type: TypeSyncChain, BlockIndex: blockIndex, RequestID: requestID}
}

// NewSyncChainResponse constructs the reply to a sync request.
func NewSyncChainResponse(replyTo string, chain []database.Block) Message {
	if chain == nil {
		chain = []database.Block{}
	}
	return Message{Type: TypeSyncChainResponse, Chain: chain, ReplyTo: replyTo}
}

// NewSyncChainError constructs an error reply to a sync request.
func NewSyncChainError(replyTo string, err string) Message {
	return Message{Type: TypeSyncChainResponse, Error: err, ReplyTo: replyTo}
}

// Envelope is a message together with the peer that sent it.
type Envelope struct {
	From peer.Peer
	Message
}

// Link represents the behavior required to exchange messages with peers.
type Link interface {
	Self() peer.Peer
	Send(ctx context.Context, to peer.Peer, msg Message) error
	Broadcast(ctx context.Context, msg Message) error
	Receive() <-chan Envelope
	Close() error
}
