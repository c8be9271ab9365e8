package store

import (
	"context"
	"fmt"
	"strings"
)

// Slugify lowercases a name and collapses every non-alphanumeric run into a
// single hyphen. An empty result falls back to "entry".
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "entry"
	}
	return slug
}

type slugChecker interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// UniqueSlug derives a slug from name and suffixes it with a counter until it
// no longer collides with an existing entry.
func UniqueSlug(ctx context.Context, s slugChecker, name string) (string, error) {
	base := Slugify(name)
	candidate := base
	for counter := 2; ; counter++ {
		exists, err := s.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, counter)
	}
}
