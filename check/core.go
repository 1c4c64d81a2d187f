package check

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielmmetz/hn-apicheck/hn"
	"github.com/danielmmetz/hn-apicheck/scan"
)

const (
	minTopStories = 100
	maxListLen    = 500
	pageSize      = 10
)

// CoreChecks cover list retrieval and story/comment fetches.
func CoreChecks() []Check {
	return []Check{
		{GroupCore, "top stories list", checkTopStoriesList},
		{GroupCore, "top story fields", checkTopStoryFields},
		{GroupCore, "first comment of a story", checkFirstComment},
		{GroupCore, "top stories ordering", checkTopOrdering},
		{GroupCore, "first page are stories", checkFirstPage},
		{GroupCore, "comment parent resolves", checkCommentParent},
		{GroupCore, "new and best lists", checkOtherLists},
	}
}

func checkTopStoriesList(ctx context.Context, p *Probe) error {
	ids, err := p.Client.TopStories(ctx)
	if err != nil {
		return err
	}
	p.Observe("count", len(ids))
	if err := expect(len(ids) >= minTopStories, fmt.Sprintf("top stories should contain at least %d items", minTopStories), len(ids)); err != nil {
		return err
	}
	if err := expect(len(ids) <= maxListLen, fmt.Sprintf("top stories should contain at most %d items", maxListLen), len(ids)); err != nil {
		return err
	}
	return wellFormed("top stories", ids)
}

// wellFormed requires positive, unique IDs.
func wellFormed(list string, ids []int64) error {
	seen := make(map[int64]int, len(ids))
	for i, id := range ids {
		if err := expect(id > 0, list+" IDs should be positive", fmt.Sprintf("ids[%d]=%d", i, id)); err != nil {
			return err
		}
		if j, dup := seen[id]; dup {
			return &AssertionError{Expectation: list + " IDs should be unique", Observed: fmt.Sprintf("%d at positions %d and %d", id, j, i)}
		}
		seen[id] = i
	}
	return nil
}

func checkTopStoryFields(ctx context.Context, p *Probe) error {
	ids, err := p.Client.TopStories(ctx)
	if err != nil {
		return err
	}
	if err := expect(len(ids) > 0, "top stories should not be empty", 0); err != nil {
		return err
	}
	story, err := p.Client.GetStory(ctx, ids[0])
	if err != nil {
		return err
	}
	p.Observe("id", ids[0])
	if err := expect(story != nil, "top story should be present", "absent"); err != nil {
		return err
	}
	p.Observe("title", optString(story.Title))
	p.Observe("score", optValue(story.Score))

	if err := expect(story.ID == ids[0], "story ID should match the requested ID", story.ID); err != nil {
		return err
	}
	if err := expect(story.Type == hn.TypeStory, `top story type should be "story"`, story.Type); err != nil {
		return err
	}
	if err := expect(notBlank(story.Title), "story title should not be blank", optString(story.Title)); err != nil {
		return err
	}
	if err := expect(notBlank(story.By), "story author should not be blank", optString(story.By)); err != nil {
		return err
	}
	if err := expect(story.Time != nil && *story.Time > 0, "story time should be positive", optValue(story.Time)); err != nil {
		return err
	}
	if err := expect(story.Score != nil, "story score should be present", "absent"); err != nil {
		return err
	}
	return expect(*story.Score >= 0, "story score should be non-negative", *story.Score)
}

// storyWithComments finds the first top story with at least one kid.
func storyWithComments(ctx context.Context, p *Probe) (*hn.Story, error) {
	ids, err := p.Client.TopStories(ctx)
	if err != nil {
		return nil, err
	}
	return scan.Stories(ctx, p.Client, ids, (*hn.Story).HasKids)
}

func checkFirstComment(ctx context.Context, p *Probe) error {
	story, err := storyWithComments(ctx, p)
	if err != nil {
		return err
	}
	if err := expect(story != nil, "should find a story with comments", "none in top stories"); err != nil {
		return err
	}
	commentID := story.Kids[0]
	p.Observe("story_id", story.ID)
	p.Observe("comment_id", commentID)

	comment, err := p.Client.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if err := expect(comment != nil, "first comment should be present", "absent"); err != nil {
		return err
	}
	if err := expect(comment.ID == commentID, "comment ID should match the requested ID", comment.ID); err != nil {
		return err
	}
	if err := expect(comment.Type == hn.TypeComment, `comment type should be "comment"`, comment.Type); err != nil {
		return err
	}
	if err := expect(comment.Parent != nil && *comment.Parent == story.ID, fmt.Sprintf("comment parent should be story %d", story.ID), optValue(comment.Parent)); err != nil {
		return err
	}
	if err := expect(comment.By != nil, "comment author should be present", "absent"); err != nil {
		return err
	}
	return expect(comment.Time != nil && *comment.Time > 0, "comment time should be positive", optValue(comment.Time))
}

// checkTopOrdering allows equal scores: HN ranks by score decayed over age,
// so adjacent stories are not strictly ordered by score.
func checkTopOrdering(ctx context.Context, p *Probe) error {
	ids, err := p.Client.TopStories(ctx)
	if err != nil {
		return err
	}
	if err := expect(len(ids) >= 2, "top stories should contain at least two items", len(ids)); err != nil {
		return err
	}
	stories, err := p.Client.GetStories(ctx, ids[:2])
	if err != nil {
		return err
	}
	first, second := stories[0], stories[1]
	if err := expect(first != nil && first.Score != nil, "first story should have a score", ids[0]); err != nil {
		return err
	}
	if err := expect(second != nil && second.Score != nil, "second story should have a score", ids[1]); err != nil {
		return err
	}
	p.Observe("first_score", *first.Score)
	p.Observe("second_score", *second.Score)
	return expect(*first.Score >= *second.Score,
		"first story should have higher or equal score than second story",
		fmt.Sprintf("%d < %d", *first.Score, *second.Score))
}

func checkFirstPage(ctx context.Context, p *Probe) error {
	ids, err := p.Client.TopStories(ctx)
	if err != nil {
		return err
	}
	n := min(pageSize, len(ids))
	stories, err := p.Client.GetStories(ctx, ids[:n])
	if err != nil {
		return err
	}
	p.Observe("checked", n)
	for i, s := range stories {
		if err := expect(s != nil, fmt.Sprintf("story at position %d should be present", i), ids[i]); err != nil {
			return err
		}
		if err := expect(s.Type == hn.TypeStory, fmt.Sprintf("item at position %d should be a story", i), s.Type); err != nil {
			return err
		}
	}
	return nil
}

func checkCommentParent(ctx context.Context, p *Probe) error {
	story, err := storyWithComments(ctx, p)
	if err != nil {
		return err
	}
	if story == nil {
		return Skipf("no story with comments in top stories")
	}
	comment, err := scan.Comments(ctx, p.Client, story.Kids, func(c *hn.Comment) bool { return c.Parent != nil })
	if err != nil {
		return err
	}
	if comment == nil {
		return Skipf("no resolvable comment under story %d", story.ID)
	}
	// prefer a reply so the parent is itself a comment
	if len(comment.Kids) > 0 {
		reply, err := p.Client.GetComment(ctx, comment.Kids[0])
		if err != nil {
			return err
		}
		if reply != nil && reply.Parent != nil {
			comment = reply
		}
	}
	parentID := *comment.Parent
	p.Observe("comment_id", comment.ID)
	p.Observe("parent_id", parentID)

	raw, err := p.Client.GetItem(ctx, parentID)
	if err != nil {
		return err
	}
	if hn.IsNull(raw) {
		return Skipf("parent %d no longer resolves", parentID)
	}
	kind, err := hn.Kind(raw)
	if err != nil {
		return &AssertionError{Expectation: "parent should decode as an item", Observed: err}
	}
	p.Observe("parent_type", kind)
	switch kind {
	case hn.TypeStory, hn.TypePoll, hn.TypeJob:
		_, err = hn.DecodeStory(raw)
	case hn.TypeComment:
		_, err = hn.DecodeComment(raw)
	default:
		return &AssertionError{Expectation: "parent should be a story or comment", Observed: kind}
	}
	return expect(err == nil, "parent should decode into its own shape", err)
}

func checkOtherLists(ctx context.Context, p *Probe) error {
	lists := []struct {
		name  string
		fetch func(context.Context) ([]int64, error)
	}{
		{"new stories", p.Client.NewStories},
		{"best stories", p.Client.BestStories},
	}
	for _, l := range lists {
		ids, err := l.fetch(ctx)
		if err != nil {
			return err
		}
		p.Observe(strings.ReplaceAll(l.name, " ", "_"), len(ids))
		if err := expect(len(ids) > 0, l.name+" should not be empty", 0); err != nil {
			return err
		}
		if err := expect(len(ids) <= maxListLen, fmt.Sprintf("%s should contain at most %d items", l.name, maxListLen), len(ids)); err != nil {
			return err
		}
		if err := wellFormed(l.name, ids); err != nil {
			return err
		}
	}
	return nil
}

func notBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func optString(s *string) any {
	if s == nil {
		return "absent"
	}
	return *s
}

func optValue[T any](v *T) any {
	if v == nil {
		return "absent"
	}
	return *v
}
