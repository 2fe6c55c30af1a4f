package match

import (
	svcErr "github.com/oggyb/wetogether/internal/errors"
)

type Category string

const (
	CategoryRegular  Category = "regular"
	CategoryRomantic Category = "romantic"
)

type ContentKind string

const (
	KindText  ContentKind = "text"
	KindVoice ContentKind = "voice"
	KindVideo ContentKind = "video"
	KindAudio ContentKind = "audio"
)

// acceptedKinds is the fixed answer policy per task category.
var acceptedKinds = map[Category][]ContentKind{
	CategoryRegular:  {KindText},
	CategoryRomantic: {KindVoice, KindVideo, KindAudio},
}

var kindErrors = map[Category]*svcErr.Error{
	CategoryRegular:  ErrTextRequired,
	CategoryRomantic: ErrMediaRequired,
}

// Accepts reports whether an answer of kind k is valid for category c.
func Accepts(c Category, k ContentKind) bool {
	for _, ok := range acceptedKinds[c] {
		if ok == k {
			return true
		}
	}
	return false
}

// checkContent validates an answer against the policy of c.
func checkContent(c Category, k ContentKind, content string) error {
	if !Accepts(c, k) {
		return kindErrors[c]
	}
	if content == "" {
		return ErrEmptyAnswer
	}
	return nil
}

// categoryOf returns the category whose policy accepts k. Policies do not overlap.
func categoryOf(k ContentKind) (Category, bool) {
	for c, kinds := range acceptedKinds {
		for _, ok := range kinds {
			if ok == k {
				return c, true
			}
		}
	}
	return "", false
}
