package hn

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Item type tags.
const (
	TypeStory   = "story"
	TypeComment = "comment"
	TypeJob     = "job"
	TypePoll    = "poll"
	TypePollOpt = "pollopt"
)

// Story is the story-shaped view of an HN item.
// Nil pointers and nil slices mean the field was absent from the response.
type Story struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type,omitempty"`
	By          *string `json:"by,omitempty"`
	Time        *int64  `json:"time,omitempty"`
	Text        *string `json:"text,omitempty"`
	Dead        *bool   `json:"dead,omitempty"`
	Deleted     *bool   `json:"deleted,omitempty"`
	Parent      *int64  `json:"parent,omitempty"`
	Poll        *int64  `json:"poll,omitempty"`
	Kids        []int64 `json:"kids"`
	URL         *string `json:"url,omitempty"`
	Score       *int    `json:"score,omitempty"`
	Title       *string `json:"title,omitempty"`
	Parts       []int64 `json:"parts"`
	Descendants *int    `json:"descendants,omitempty"`
}

// Comment is the comment-shaped view of an HN item.
type Comment struct {
	ID      int64   `json:"id"`
	Type    string  `json:"type,omitempty"`
	By      *string `json:"by,omitempty"`
	Time    *int64  `json:"time,omitempty"`
	Text    *string `json:"text,omitempty"`
	Dead    *bool   `json:"dead,omitempty"`
	Deleted *bool   `json:"deleted,omitempty"`
	Parent  *int64  `json:"parent,omitempty"`
	Kids    []int64 `json:"kids"`
}

// IsDead treats a missing dead flag as not dead.
func (s *Story) IsDead() bool { return s.Dead != nil && *s.Dead }

// HasKids reports whether the story has at least one direct child.
func (s *Story) HasKids() bool { return len(s.Kids) > 0 }

// HasURL reports whether the story links out. Self-text posts have no URL.
func (s *Story) HasURL() bool { return s.URL != nil && *s.URL != "" }

func (s *Story) String() string {
	return fmt.Sprintf("story %d %q by %s score=%s descendants=%s",
		s.ID, deref(s.Title), deref(s.By), fmtOpt(s.Score), fmtOpt(s.Descendants))
}

// IsDead treats a missing dead flag as not dead.
func (c *Comment) IsDead() bool { return c.Dead != nil && *c.Dead }

func (c *Comment) String() string {
	return fmt.Sprintf("comment %d by %s parent=%s", c.ID, deref(c.By), fmtOpt(c.Parent))
}

var null = []byte("null")

// IsNull reports whether raw is the literal JSON null the API returns for unknown IDs.
func IsNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), null)
}

// DecodeStory decodes raw into a Story. It returns (nil, nil) for a null body
// and ErrWrongShape when the body cannot populate the item id.
func DecodeStory(raw []byte) (*Story, error) {
	if IsNull(raw) {
		return nil, nil
	}
	var s Story
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongShape, err)
	}
	if s.ID == 0 {
		return nil, fmt.Errorf("%w: missing id", ErrWrongShape)
	}
	if err := checkChildIDs(raw); err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeComment decodes raw into a Comment with the same rules as DecodeStory.
func DecodeComment(raw []byte) (*Comment, error) {
	if IsNull(raw) {
		return nil, nil
	}
	var c Comment
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongShape, err)
	}
	if c.ID == 0 {
		return nil, fmt.Errorf("%w: missing id", ErrWrongShape)
	}
	if err := checkChildIDs(raw); err != nil {
		return nil, err
	}
	return &c, nil
}

// checkChildIDs rejects null entries in kids or parts, which would otherwise
// decode as item 0.
func checkChildIDs(raw []byte) error {
	var children struct {
		Kids  []*int64 `json:"kids"`
		Parts []*int64 `json:"parts"`
	}
	if err := json.Unmarshal(raw, &children); err != nil {
		return fmt.Errorf("%w: %v", ErrWrongShape, err)
	}
	if _, err := idList(children.Kids); err != nil {
		return fmt.Errorf("%w: kids: %v", ErrWrongShape, err)
	}
	if _, err := idList(children.Parts); err != nil {
		return fmt.Errorf("%w: parts: %v", ErrWrongShape, err)
	}
	return nil
}

// idList flattens decoded ID entries, failing on the first null.
func idList(entries []*int64) ([]int64, error) {
	if entries == nil {
		return nil, nil
	}
	ids := make([]int64, len(entries))
	for i, id := range entries {
		if id == nil {
			return nil, fmt.Errorf("entry %d is null", i)
		}
		ids[i] = *id
	}
	return ids, nil
}

// Kind returns the type tag of a raw item, or "" for null or untagged bodies.
func Kind(raw []byte) (string, error) {
	if IsNull(raw) {
		return "", nil
	}
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrongShape, err)
	}
	return tag.Type, nil
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func fmtOpt[T int | int64](v *T) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprint(*v)
}
