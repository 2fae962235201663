package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"keychat/internal/cryptographic/pki"
)

var (
	ErrInvalidNickname   = errors.New("invalid nickname")
	ErrDuplicateNickname = errors.New("a contact with that nickname already exists")
	ErrDuplicateKey      = errors.New("a contact with that public key already exists")
	ErrContactNotFound   = errors.New("contact not found")
)

type (
	Contact struct {
		Nickname  string        `json:"nickname"`
		PublicKey pki.PublicKey `json:"public_key"`
	}

	// AddressBook maps nicknames to public keys one to one. It is owned by
	// whoever loaded it and is not safe for concurrent use.
	AddressBook struct {
		byKey  map[pki.PublicKey]string
		byName map[string]pki.PublicKey
	}
)

func NewAddressBook(contacts ...Contact) (*AddressBook, error) {
	b := &AddressBook{
		byKey:  make(map[pki.PublicKey]string),
		byName: make(map[string]pki.PublicKey),
	}
	for _, c := range contacts {
		if err := b.AddContact(c.Nickname, c.PublicKey); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *AddressBook) AddContact(nickname string, pk pki.PublicKey) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return ErrInvalidNickname
	}
	if pk.IsZero() {
		return fmt.Errorf("add contact %q: empty public key", nickname)
	}
	if _, ok := b.byName[nickname]; ok {
		return ErrDuplicateNickname
	}
	if _, ok := b.byKey[pk]; ok {
		return ErrDuplicateKey
	}

	b.byKey[pk] = nickname
	b.byName[nickname] = pk
	return nil
}

func (b *AddressBook) Remove(nickname string) error {
	pk, ok := b.byName[nickname]
	if !ok {
		return ErrContactNotFound
	}
	delete(b.byName, nickname)
	delete(b.byKey, pk)
	return nil
}

// WhoIs returns the nickname for pk.
func (b *AddressBook) WhoIs(pk pki.PublicKey) (string, bool) {
	name, ok := b.byKey[pk]
	return name, ok
}

func (b *AddressBook) Lookup(nickname string) (pki.PublicKey, bool) {
	pk, ok := b.byName[nickname]
	return pk, ok
}

// DisplayName is the nickname if known, else a shortened key.
func (b *AddressBook) DisplayName(pk pki.PublicKey) string {
	if name, ok := b.WhoIs(pk); ok {
		return name
	}
	s := pk.String()
	return s[:8] + "…" + s[len(s)-8:]
}

func (b *AddressBook) Len() int { return len(b.byKey) }

// Contacts returns every contact sorted by nickname.
func (b *AddressBook) Contacts() []Contact {
	out := make([]Contact, 0, len(b.byName))
	for name, pk := range b.byName {
		out = append(out, Contact{Nickname: name, PublicKey: pk})
	}
	slices.SortFunc(out, func(a, b Contact) int { return strings.Compare(a.Nickname, b.Nickname) })
	return out
}
