package check

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmmetz/hn-apicheck/hn"
	"github.com/danielmmetz/hn-apicheck/hn/hntest"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) (*hntest.Server, hntest.Frontpage, *hn.Client) {
	t.Helper()
	srv := hntest.NewServer(t)
	fp := hntest.Seed(srv, 120, fixedNow)
	return srv, fp, hn.NewClient(hn.WithBaseURL(srv.URL))
}

func runSuite(t *testing.T, client *hn.Client, opts ...SuiteOption) map[string]Result {
	t.Helper()
	opts = append([]SuiteOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	results := NewSuite(client, opts...).Run(context.Background())
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	return byName
}

func story(id int64, score int, extra map[string]any) map[string]any {
	s := map[string]any{
		"id": id, "type": "story", "by": "someone", "title": "A title",
		"time": fixedNow.Add(-time.Hour).Unix(), "score": score, "url": "https://example.com",
	}
	for k, v := range extra {
		s[k] = v
	}
	return s
}

func TestSuiteHealthyFrontpage(t *testing.T) {
	_, _, client := seeded(t)

	var reported []string
	results := NewSuite(client,
		WithClock(func() time.Time { return fixedNow }),
		WithReporter(ReporterFunc(func(ctx context.Context, r Result) { reported = append(reported, r.Name) })),
	).Run(context.Background())

	require.Len(t, results, len(CoreChecks())+len(EdgeChecks()))
	for i, r := range results {
		assert.Equal(t, OutcomePass, r.Outcome, "%s/%s: %s", r.Group, r.Name, r.Message)
		assert.Equal(t, r.Name, reported[i], "reported in order")
	}
	s := Summarize(results)
	assert.True(t, s.OK())
	assert.Equal(t, len(results), s.Passed)
}

func TestSuiteGroups(t *testing.T) {
	_, _, client := seeded(t)

	suite := NewSuite(client, WithGroups(GroupEdge))
	for _, c := range suite.Checks() {
		assert.Equal(t, GroupEdge, c.Group)
	}
	assert.Len(t, suite.Checks(), len(EdgeChecks()))
	assert.Empty(t, NewSuite(client, WithGroups("nope")).Checks())
}

func TestTopStoriesListBounds(t *testing.T) {
	srv, fp, client := seeded(t)

	srv.SetTop(fp.Top[:50]...)
	r := runSuite(t, client, WithGroups(GroupCore))["top stories list"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "at least 100")
	assert.Equal(t, 50, r.Observed["count"])

	srv.SetTop(append(fp.Top, fp.Top[5])...)
	r = runSuite(t, client, WithGroups(GroupCore))["top stories list"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "unique")

	srv.SetTop(append([]int64{-4}, fp.Top...)...)
	r = runSuite(t, client, WithGroups(GroupCore))["top stories list"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "positive")
}

func TestTopStoryFields(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		message string
	}{
		{"wrong type", story(0, 5, map[string]any{"type": "job"}), `type should be "story"`},
		{"blank title", story(0, 5, map[string]any{"title": "  "}), "title should not be blank"},
		{"missing author", story(0, 5, map[string]any{"by": nil}), "author should not be blank"},
		{"missing score", story(0, 5, map[string]any{"score": nil}), "score should be present"},
		{"negative score", story(0, -1, nil), "non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, fp, client := seeded(t)
			tt.body["id"] = fp.Top[0]
			for k, v := range tt.body {
				if v == nil {
					delete(tt.body, k)
				}
			}
			srv.SetItem(fp.Top[0], tt.body)

			r := runSuite(t, client, WithGroups(GroupCore))["top story fields"]
			assert.Equal(t, OutcomeFail, r.Outcome)
			assert.Contains(t, r.Message, tt.message)
		})
	}

	t.Run("absent", func(t *testing.T) {
		srv, fp, client := seeded(t)
		srv.SetRawItem(fp.Top[0], "null")

		r := runSuite(t, client, WithGroups(GroupCore))["top story fields"]
		assert.Equal(t, OutcomeFail, r.Outcome)
		assert.Contains(t, r.Message, "should be present")
	})
}

func TestFirstCommentParentMismatch(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetItem(fp.CommentID, map[string]any{
		"id": fp.CommentID, "type": "comment", "by": "x", "time": fixedNow.Unix(), "parent": 12345,
	})

	r := runSuite(t, client, WithGroups(GroupCore))["first comment of a story"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "comment parent should be story")
}

func TestFirstCommentRequiresAStoryWithComments(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetTop(fp.NoKidsID, fp.SelfTextID)

	r := runSuite(t, client, WithGroups(GroupCore))["first comment of a story"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "should find a story with comments")
}

func TestOrderingAllowsEqualScores(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetItem(fp.Top[1], story(fp.Top[1], 1000, nil))

	r := runSuite(t, client, WithGroups(GroupCore))["top stories ordering"]
	assert.Equal(t, OutcomePass, r.Outcome, r.Message)

	srv.SetItem(fp.Top[0], story(fp.Top[0], 10, map[string]any{"kids": []int64{fp.CommentID}}))
	r = runSuite(t, client, WithGroups(GroupCore))["top stories ordering"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Equal(t, 10, r.Observed["first_score"])
}

func TestFirstPageMustBeStories(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetItem(fp.Top[7], map[string]any{"id": fp.Top[7], "type": "job", "title": "Hiring"})

	r := runSuite(t, client, WithGroups(GroupCore))["first page are stories"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "position 7")
}

func TestListErrorsAreReportedPerCheck(t *testing.T) {
	srv, _, client := seeded(t)
	srv.Override("/topstories.json", http.StatusInternalServerError, "down")

	results := runSuite(t, client)
	assert.Equal(t, OutcomeError, results["top stories list"].Outcome)
	assert.Contains(t, results["top stories list"].Message, "500")
	assert.Equal(t, OutcomeError, results["dead story flag"].Outcome)
	// checks that do not need the top list still run
	assert.Equal(t, OutcomePass, results["out-of-range id is null"].Outcome)
	assert.Equal(t, OutcomePass, results["max item id"].Outcome)
	assert.Equal(t, OutcomePass, results["new and best lists"].Outcome)
}

func TestOutOfRangeIDMustBeNull(t *testing.T) {
	srv, _, client := seeded(t)
	srv.Override("/item/999999999999.json", http.StatusNotFound, `{"error":"not found"}`)

	r := runSuite(t, client, WithGroups(GroupEdge))["out-of-range id is null"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Equal(t, http.StatusNotFound, r.Observed["status"])
}

func TestZeroIDMustAnswer200(t *testing.T) {
	srv, _, client := seeded(t)
	srv.Override("/item/0.json", http.StatusUnauthorized, `{"error":"Permission denied"}`)

	r := runSuite(t, client, WithGroups(GroupEdge))["zero id answers 200"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Equal(t, http.StatusUnauthorized, r.Observed["status"])
	assert.Contains(t, r.Message, "200 for zero ID")
}

func TestVacuousScansSkip(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetItem(fp.DeadID, story(fp.DeadID, 996, nil))
	// only stories with kids and urls remain in the list
	srv.SetTop(fp.Top[4:]...)

	results := runSuite(t, client, WithGroups(GroupEdge))
	for _, name := range []string{"dead story flag", "story without comments", "story without url"} {
		assert.Equal(t, OutcomeSkip, results[name].Outcome, name)
		assert.True(t, results[name].OK())
	}
	assert.True(t, Summarize(mapValues(results)).OK())
}

func TestStoryWithoutURLNeedsText(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetItem(fp.SelfTextID, map[string]any{"id": fp.SelfTextID, "type": "story", "title": "Ask HN", "score": 3, "by": "a", "time": fixedNow.Unix()})

	r := runSuite(t, client, WithGroups(GroupEdge))["story without url"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "text content")
}

func TestMaxItemIDThreshold(t *testing.T) {
	srv, _, client := seeded(t)
	srv.SetMaxItem(999_999)

	r := runSuite(t, client, WithGroups(GroupEdge))["max item id"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Equal(t, int64(999_999), r.Observed["max_item"])
}

func TestListsMustDiffer(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetNew(fp.Top...)

	r := runSuite(t, client, WithGroups(GroupEdge))["lists differ"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "top stories should differ from new stories")

	// same members in another order still differ
	srv.SetNew(fp.New...)
	srv.SetBest(fp.New...)
	r = runSuite(t, client, WithGroups(GroupEdge))["lists differ"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "new stories should differ from best stories")
}

func TestTopStoryTimestamp(t *testing.T) {
	_, _, client := seeded(t)

	r := runSuite(t, client, WithGroups(GroupEdge), WithClock(func() time.Time { return fixedNow.Add(-time.Hour) }))["top story timestamp"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "future")

	r = runSuite(t, client, WithGroups(GroupEdge), WithClock(func() time.Time { return fixedNow.AddDate(2, 0, 0) }))["top story timestamp"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "within the last year")
}

func TestScoreRange(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetItem(fp.Top[15], story(fp.Top[15], 12_000, nil))

	r := runSuite(t, client, WithGroups(GroupEdge))["score range"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Contains(t, r.Message, "less than 10000")

	// beyond the sample is not inspected
	srv.SetItem(fp.Top[15], story(fp.Top[15], 500, nil))
	srv.SetItem(fp.Top[25], story(fp.Top[25], 12_000, nil))
	r = runSuite(t, client, WithGroups(GroupEdge))["score range"]
	assert.Equal(t, OutcomePass, r.Outcome, r.Message)
}

func TestDescendants(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetItem(fp.WithKidsID, story(fp.WithKidsID, 1000, map[string]any{"kids": []int64{fp.CommentID, fp.CommentID + 1}, "descendants": 1}))

	r := runSuite(t, client, WithGroups(GroupEdge))["descendants cover kids"]
	assert.Equal(t, OutcomeFail, r.Outcome)

	srv.SetItem(fp.WithKidsID, story(fp.WithKidsID, 1000, map[string]any{"kids": []int64{fp.CommentID}}))
	r = runSuite(t, client, WithGroups(GroupEdge))["descendants cover kids"]
	assert.Equal(t, OutcomeSkip, r.Outcome)
}

func TestCommentParentMustBeStoryOrComment(t *testing.T) {
	srv, fp, client := seeded(t)
	srv.SetItem(fp.CommentID, map[string]any{"id": fp.CommentID, "type": "comment", "parent": 77})
	srv.SetItem(77, map[string]any{"id": 77, "type": "pollopt", "poll": 76})

	r := runSuite(t, client, WithGroups(GroupCore))["comment parent resolves"]
	assert.Equal(t, OutcomeFail, r.Outcome)
	assert.Equal(t, "pollopt", r.Observed["parent_type"])
}

func TestRunCheckRecoversPanics(t *testing.T) {
	c := Check{Group: "x", Name: "panics", Run: func(ctx context.Context, p *Probe) error {
		p.Observe("before", true)
		var s *hn.Story
		_ = s.ID
		return nil
	}}

	r := RunCheck(context.Background(), c, nil, time.Now)
	assert.Equal(t, OutcomeError, r.Outcome)
	assert.Contains(t, r.Message, "panic")
	assert.Equal(t, true, r.Observed["before"])
}

func TestRunStopsOnCancel(t *testing.T) {
	_, _, client := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, NewSuite(client).Run(ctx))
}

func mapValues(m map[string]Result) []Result {
	out := make([]Result, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}
