package trees

import (
	"errors"
	"fmt"
	"strings"
)

// Tag is a semantic marker selecting how a node's payload and members are interpreted.
type Tag uint8

// The vocabulary is closed. New tags must be appended before tagCount.
const (
	// TagString marks a payload holding literal text.
	TagString Tag = iota
	// TagDirectoryPath marks a payload holding a filesystem directory path.
	TagDirectoryPath
	// TagPersistenceFile marks a payload holding the path of a file written by the store.
	TagPersistenceFile

	tagCount
)

var ErrUnknownTag = errors.New("unknown tag")

var tagNames = [tagCount]string{
	TagString:          "STRING",
	TagDirectoryPath:   "DIRECTORY_PATH",
	TagPersistenceFile: "PERSISTENCE_FILE",
}

// AllTags returns the full vocabulary in declaration order
func AllTags() []Tag {
	tags := make([]Tag, 0, tagCount)
	for t := Tag(0); t < tagCount; t++ {
		tags = append(tags, t)
	}
	return tags
}

// Valid reports whether t belongs to the vocabulary
func (t Tag) Valid() bool {
	return t < tagCount
}

func (t Tag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
	return tagNames[t]
}

// ParseTag maps a tag name to its Tag. Matching is case-insensitive.
func ParseTag(name string) (Tag, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for t := Tag(0); t < tagCount; t++ {
		if tagNames[t] == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTag, name)
}

func (t Tag) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(t))
	}
	return []byte(tagNames[t]), nil
}

func (t *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TagSet is an unordered set of tags. The zero value is the empty set.
// It is a bitmask over the vocabulary, so two sets are equal iff == holds.
type TagSet uint64

// NewTagSet builds a set from tags, ignoring duplicates and invalid values
func NewTagSet(tags ...Tag) TagSet {
	var s TagSet
	for _, t := range tags {
		s = s.With(t)
	}
	return s
}

// ParseTagSet builds a set from tag names
func ParseTagSet(names ...string) (TagSet, error) {
	var s TagSet
	for _, name := range names {
		t, err := ParseTag(name)
		if err != nil {
			return 0, err
		}
		s = s.With(t)
	}
	return s, nil
}

// Has reports whether t is in s. Invalid tags are never members.
func (s TagSet) Has(t Tag) bool {
	return t.Valid() && s&(1<<t) != 0
}

// HasAll reports whether every tag in other is also in s
func (s TagSet) HasAll(other TagSet) bool {
	return s&other == other
}

// With returns s plus t. Invalid tags are ignored.
func (s TagSet) With(t Tag) TagSet {
	if !t.Valid() {
		return s
	}
	return s | 1<<t
}

// Without returns s minus t
func (s TagSet) Without(t Tag) TagSet {
	if !t.Valid() {
		return s
	}
	return s &^ (1 << t)
}

// Union returns the tags found in either set
func (s TagSet) Union(other TagSet) TagSet {
	return s | other
}

func (s TagSet) Len() int {
	n := 0
	for t := Tag(0); t < tagCount; t++ {
		if s.Has(t) {
			n++
		}
	}
	return n
}

func (s TagSet) IsEmpty() bool {
	return s == 0
}

// Tags lists the members in vocabulary order
func (s TagSet) Tags() []Tag {
	tags := make([]Tag, 0, s.Len())
	for t := Tag(0); t < tagCount; t++ {
		if s.Has(t) {
			tags = append(tags, t)
		}
	}
	return tags
}

func (s TagSet) String() string {
	names := make([]string, 0, s.Len())
	for _, t := range s.Tags() {
		names = append(names, t.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
