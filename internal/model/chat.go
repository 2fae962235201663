package model

import (
	"encoding/hex"
	"errors"
	"slices"

	"keychat/internal/cryptographic/pki"
)

var ErrEmptyChat = errors.New("chat needs at least one peer")

type (
	// Chat is a set of peers. Its id is the XOR of the peers' compressed keys,
	// so it does not depend on the order they were added in.
	Chat struct {
		id    string
		peers []pki.PublicKey
	}

	// Chats indexes chats by id.
	Chats struct {
		chats map[string]*Chat
	}
)

func NewChat(peers ...pki.PublicKey) (*Chat, error) {
	set := make([]pki.PublicKey, 0, len(peers))
	for _, pk := range peers {
		if pk.IsZero() || slices.Contains(set, pk) {
			continue
		}
		set = append(set, pk)
	}
	if len(set) == 0 {
		return nil, ErrEmptyChat
	}
	slices.SortFunc(set, pki.PublicKey.Compare)

	var id [pki.PublicKeySize]byte
	for _, pk := range set {
		b := pk.Array()
		for i := range id {
			id[i] ^= b[i]
		}
	}
	return &Chat{id: hex.EncodeToString(id[:]), peers: set}, nil
}

func (c *Chat) ID() string { return c.id }

// Peers returns the members in key order.
func (c *Chat) Peers() []pki.PublicKey { return slices.Clone(c.peers) }

func (c *Chat) Has(pk pki.PublicKey) bool { return slices.Contains(c.peers, pk) }

// GroupChatWith returns a new chat with pk added.
func (c *Chat) GroupChatWith(pk pki.PublicKey) (*Chat, error) {
	return NewChat(append(c.Peers(), pk)...)
}

func NewChats() *Chats {
	return &Chats{chats: make(map[string]*Chat)}
}

func (cs *Chats) Add(c *Chat) { cs.chats[c.ID()] = c }

func (cs *Chats) Get(id string) (*Chat, bool) {
	c, ok := cs.chats[id]
	return c, ok
}

func (cs *Chats) Remove(id string) { delete(cs.chats, id) }

func (cs *Chats) Len() int { return len(cs.chats) }

// All returns the chats sorted by id.
func (cs *Chats) All() []*Chat {
	out := make([]*Chat, 0, len(cs.chats))
	for _, c := range cs.chats {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Chat) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}
