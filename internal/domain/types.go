package domain

import (
	"fmt"
	"strings"
	"time"
)

// EmbeddingDim is the length of every text and image embedding.
const EmbeddingDim = 512

type Campus string

const (
	CampusUniworld1 Campus = "Uniworld 1"
	CampusUniworld2 Campus = "Uniworld 2"
	CampusSST       Campus = "SST Campus"
)

// DefaultCampus is used when an upload does not name one.
const DefaultCampus = CampusUniworld1

// Campuses returns the campus options in display order.
func Campuses() []Campus {
	return []Campus{CampusUniworld1, CampusUniworld2, CampusSST}
}

func ParseCampus(s string) (Campus, error) {
	for _, c := range Campuses() {
		if string(c) == s {
			return c, nil
		}
	}
	names := make([]string, 0, 3)
	for _, c := range Campuses() {
		names = append(names, string(c))
	}
	return "", fmt.Errorf("invalid campus %q, must be one of: %s", s, strings.Join(names, ", "))
}

type ItemType string

const (
	TypeLost  ItemType = "lost"
	TypeFound ItemType = "found"
)

func ParseItemType(s string) (ItemType, error) {
	switch ItemType(s) {
	case TypeLost, TypeFound:
		return ItemType(s), nil
	}
	return "", fmt.Errorf("invalid type %q, must be lost or found", s)
}

// Opposite returns the counterpart type: a lost item is matched against found ones.
func (t ItemType) Opposite() ItemType {
	if t == TypeLost {
		return TypeFound
	}
	return TypeLost
}

type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusArchived Status = "archived"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusResolved, StatusArchived:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Final reports whether no transition leaves this status.
func (s Status) Final() bool {
	return s == StatusResolved || s == StatusArchived
}

type Item struct {
	ID             int64
	Title          string
	Description    string
	Location       string
	Campus         Campus
	Type           ItemType
	ImageURL       string
	ImageKey       string
	ExtraImages    []ImageRef
	ImageEmbedding []float32
	TextEmbedding  []float32
	ContactInfo    string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ArchivedAt     *time.Time
}

// ImageRef is a stored photo beyond an item's primary image.
type ImageRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// NewItem carries the user-supplied fields of an upload.
type NewItem struct {
	Title       string
	Description string
	Location    string
	Campus      string
	Type        string
	ContactInfo string
}

// ItemUpdate replaces the editable fields of an item. Nil pointers leave the
// stored value untouched.
type ItemUpdate struct {
	Title         *string
	Description   *string
	Location      *string
	Campus        *Campus
	Type          *ItemType
	ContactInfo   *string
	TextEmbedding []float32
}

// ArchivedRef identifies an item moved to archived by a sweep.
type ArchivedRef struct {
	ID    int64
	Title string
}

// ScoredItem pairs an item with a relevance score in [0,1].
type ScoredItem struct {
	Item  *Item
	Score float64
}

// Filter is the user-facing set of search and listing filters.
type Filter struct {
	Type            ItemType
	Location        string
	Campus          Campus
	IncludeArchived bool
}
