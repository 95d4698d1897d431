package domain

import (
	"regexp"
	"strings"
)

type ContactKind string

const (
	ContactNone  ContactKind = "none"
	ContactEmail ContactKind = "email"
	ContactPhone ContactKind = "phone"
	ContactOther ContactKind = "other"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9(][0-9\s().-]{5,}[0-9]$`)
)

// ClassifyContact decides how contact info should be rendered.
func ClassifyContact(info string) ContactKind {
	info = strings.TrimSpace(info)
	switch {
	case info == "":
		return ContactNone
	case emailPattern.MatchString(info):
		return ContactEmail
	case phonePattern.MatchString(info) && countDigits(info) >= 7:
		return ContactPhone
	default:
		return ContactOther
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
