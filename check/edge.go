package check

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/danielmmetz/hn-apicheck/hn"
	"github.com/danielmmetz/hn-apicheck/scan"
)

const (
	outOfRangeID = 999_999_999_999
	minMaxItemID = 1_000_000
	maxScore     = 10_000
	scoreSample  = 20
	maxStoryAge  = 365 * 24 * time.Hour
)

// EdgeChecks cover boundary behaviour: unknown IDs, moderation states and
// optional fields.
func EdgeChecks() []Check {
	return []Check{
		{GroupEdge, "out-of-range id is null", checkOutOfRangeID},
		{GroupEdge, "zero id answers 200", checkZeroID},
		{GroupEdge, "dead story flag", checkDeadStory},
		{GroupEdge, "story without comments", checkStoryWithoutComments},
		{GroupEdge, "story without url", checkStoryWithoutURL},
		{GroupEdge, "max item id", checkMaxItemID},
		{GroupEdge, "lists differ", checkListsDiffer},
		{GroupEdge, "top story timestamp", checkTopStoryTimestamp},
		{GroupEdge, "score range", checkScoreRange},
		{GroupEdge, "descendants cover kids", checkDescendants},
	}
}

func checkOutOfRangeID(ctx context.Context, p *Probe) error {
	resp, err := p.Client.ItemResponse(ctx, outOfRangeID)
	if err != nil {
		return err
	}
	p.Observe("status", resp.StatusCode)
	p.Observe("body", string(resp.Body))
	if err := expect(resp.StatusCode == http.StatusOK, "response should be 200 even for a non-existent ID", resp.StatusCode); err != nil {
		return err
	}
	if err := expect(hn.IsNull(resp.Body), "response body should be null for a non-existent ID", string(resp.Body)); err != nil {
		return err
	}
	story, err := p.Client.GetStory(ctx, outOfRangeID)
	if err != nil {
		return err
	}
	return expect(story == nil, "non-existent ID should decode as absent", story)
}

func checkZeroID(ctx context.Context, p *Probe) error {
	resp, err := p.Client.ItemResponse(ctx, 0)
	if err != nil {
		return err
	}
	p.Observe("status", resp.StatusCode)
	return expect(resp.StatusCode == http.StatusOK, "response should be 200 for zero ID", resp.StatusCode)
}

// scanTop finds the first top story matching match.
func scanTop(ctx context.Context, p *Probe, match func(*hn.Story) bool) (*hn.Story, error) {
	ids, err := p.Client.TopStories(ctx)
	if err != nil {
		return nil, err
	}
	return scan.Stories(ctx, p.Client, ids, match)
}

func checkDeadStory(ctx context.Context, p *Probe) error {
	story, err := scanTop(ctx, p, (*hn.Story).IsDead)
	if err != nil {
		return err
	}
	if story == nil {
		return Skipf("no dead stories in current top stories")
	}
	p.Observe("id", story.ID)
	return expect(story.IsDead(), "dead story should have dead flag set to true", optValue(story.Dead))
}

func checkStoryWithoutComments(ctx context.Context, p *Probe) error {
	story, err := scanTop(ctx, p, func(s *hn.Story) bool { return !s.HasKids() })
	if err != nil {
		return err
	}
	if story == nil {
		return Skipf("all top stories have comments")
	}
	p.Observe("id", story.ID)
	return expect(len(story.Kids) == 0, "story without comments should have absent or empty kids", story.Kids)
}

func checkStoryWithoutURL(ctx context.Context, p *Probe) error {
	story, err := scanTop(ctx, p, func(s *hn.Story) bool { return !s.HasURL() })
	if err != nil {
		return err
	}
	if story == nil {
		return Skipf("all top stories have URLs")
	}
	p.Observe("id", story.ID)
	p.Observe("title", optString(story.Title))
	if err := expect(!story.HasURL(), "story without URL should have absent or empty url", optString(story.URL)); err != nil {
		return err
	}
	return expect(story.Text != nil, "story without URL should have text content", "absent")
}

func checkMaxItemID(ctx context.Context, p *Probe) error {
	id, err := p.Client.MaxItemID(ctx)
	if err != nil {
		return err
	}
	p.Observe("max_item", id)
	if err := expect(id > 0, "max item ID should be positive", id); err != nil {
		return err
	}
	return expect(id > minMaxItemID, fmt.Sprintf("max item ID should be greater than %d", minMaxItemID), id)
}

func checkListsDiffer(ctx context.Context, p *Probe) error {
	top, err := p.Client.TopStories(ctx)
	if err != nil {
		return err
	}
	newest, err := p.Client.NewStories(ctx)
	if err != nil {
		return err
	}
	best, err := p.Client.BestStories(ctx)
	if err != nil {
		return err
	}
	p.Observe("top", len(top))
	p.Observe("new", len(newest))
	p.Observe("best", len(best))

	if err := expect(!slices.Equal(top, newest), "top stories should differ from new stories", "identical"); err != nil {
		return err
	}
	if err := expect(!slices.Equal(top, best), "top stories should differ from best stories", "identical"); err != nil {
		return err
	}
	return expect(!slices.Equal(newest, best), "new stories should differ from best stories", "identical")
}

func checkTopStoryTimestamp(ctx context.Context, p *Probe) error {
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
	if err := expect(story != nil && story.Time != nil, "top story should carry a timestamp", ids[0]); err != nil {
		return err
	}
	now := p.Now()
	current := now.Unix()
	oneYearAgo := now.Add(-maxStoryAge).Unix()
	p.Observe("time", *story.Time)
	p.Observe("now", current)

	if err := expect(*story.Time <= current, "story timestamp should not be in the future", *story.Time); err != nil {
		return err
	}
	return expect(*story.Time > oneYearAgo, "story timestamp should be within the last year", *story.Time)
}

func checkScoreRange(ctx context.Context, p *Probe) error {
	ids, err := p.Client.TopStories(ctx)
	if err != nil {
		return err
	}
	n := min(scoreSample, len(ids))
	stories, err := p.Client.GetStories(ctx, ids[:n])
	if err != nil {
		return err
	}
	p.Observe("checked", n)
	for i, s := range stories {
		if err := expect(s != nil && s.Score != nil, fmt.Sprintf("story %d should have a score", ids[i]), "absent"); err != nil {
			return err
		}
		if err := expect(*s.Score >= 0, fmt.Sprintf("story %d score should be non-negative", s.ID), *s.Score); err != nil {
			return err
		}
		if err := expect(*s.Score < maxScore, fmt.Sprintf("story %d score should be less than %d", s.ID, maxScore), *s.Score); err != nil {
			return err
		}
	}
	return nil
}

func checkDescendants(ctx context.Context, p *Probe) error {
	story, err := storyWithComments(ctx, p)
	if err != nil {
		return err
	}
	if story == nil {
		return Skipf("no story with comments in top stories")
	}
	p.Observe("id", story.ID)
	p.Observe("kids", len(story.Kids))
	if story.Descendants == nil {
		return Skipf("story %d has no descendants count", story.ID)
	}
	p.Observe("descendants", *story.Descendants)
	return expect(*story.Descendants >= len(story.Kids),
		"descendants count should be greater than or equal to direct kids count",
		fmt.Sprintf("descendants=%d kids=%d", *story.Descendants, len(story.Kids)))
}
