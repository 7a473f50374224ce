// Package contacts holds the special-contact book and the whitelist gate
// that decides which senders the assistant engages with.
package contacts

import (
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/wiralab/wira/storage"
)

// Contact is one curated entry from the special contacts file. Instruction
// overrides the default persona when this contact is the sender.
type Contact struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Phones      []string `json:"phones"`
	Instruction string   `json:"instruction"`
}

// Book is the loaded special contacts list
type Book struct {
	contacts []Contact
}

// Load reads the special contacts JSON file. A missing file yields an empty
// book, not an error.
func Load(path string) (*Book, error) {
	if path == "" {
		return &Book{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[Contacts] No special contacts file at %s", path)
			return &Book{}, nil
		}
		return nil, err
	}
	var list []Contact
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	log.Printf("[OK] Contacts: loaded %d special contacts", len(list))
	return &Book{contacts: list}, nil
}

// Len returns the number of loaded contacts
func (b *Book) Len() int { return len(b.contacts) }

// ByNumber finds a contact whose phone matches the sender number, tolerating
// country-code prefixes via suffix comparison. Returns nil when unknown.
func (b *Book) ByNumber(number string) *Contact {
	n := NormalizeNumber(number)
	if n == "" {
		return nil
	}
	for i := range b.contacts {
		for _, phone := range b.contacts[i].Phones {
			if SameNumber(phone, n) {
				return &b.contacts[i]
			}
		}
	}
	return nil
}

// ByName finds a contact by case-insensitive name match
func (b *Book) ByName(name string) *Contact {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range b.contacts {
		if strings.ToLower(b.contacts[i].Name) == needle {
			return &b.contacts[i]
		}
	}
	for i := range b.contacts {
		if strings.Contains(strings.ToLower(b.contacts[i].Name), needle) {
			return &b.contacts[i]
		}
	}
	return nil
}

// NormalizeNumber strips everything but digits
func NormalizeNumber(raw string) string {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SameNumber compares two phone numbers after normalization. One may carry a
// country code the other lacks, so the shorter must be a suffix of the longer.
func SameNumber(a, b string) bool {
	na, nb := NormalizeNumber(a), NormalizeNumber(b)
	if na == "" || nb == "" {
		return false
	}
	if len(na) > len(nb) {
		na, nb = nb, na
	}
	return strings.HasSuffix(nb, na)
}

// Gate answers whitelist membership from storage. An empty list blocks
// everyone, including the owner, until numbers are added.
type Gate struct {
	store *storage.Storage
}

// NewGate wraps storage for whitelist checks
func NewGate(store *storage.Storage) *Gate {
	return &Gate{store: store}
}

// NumberAllowed reports whether the sender number is whitelisted
func (g *Gate) NumberAllowed(number string) (bool, error) {
	entries, err := g.store.AllowedNumbers()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if SameNumber(e.Key, number) {
			return true, nil
		}
	}
	return false, nil
}

// GroupAllowed reports whether the group id is whitelisted. Group ids are
// opaque, so matching is exact.
func (g *Gate) GroupAllowed(groupID string) (bool, error) {
	entries, err := g.store.AllowedGroups()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Key == groupID {
			return true, nil
		}
	}
	return false, nil
}
