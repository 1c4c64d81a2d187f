// Package hntest provides an in-memory fake of the HN Firebase API.
package hntest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Server serves list, item and max-item endpoints from memory.
// Unknown items are answered with HTTP 200 and a null body, like the real API.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	lists    map[string][]int64
	items    map[int64][]byte
	maxItem  int64
	override map[string]response
	requests map[string]int
}

type response struct {
	status int
	body   string
}

// NewServer starts a server that is closed when the test finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		lists:    make(map[string][]int64),
		items:    make(map[int64][]byte),
		override: make(map[string]response),
		requests: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /topstories.json", s.serveList("top"))
	mux.HandleFunc("GET /newstories.json", s.serveList("new"))
	mux.HandleFunc("GET /beststories.json", s.serveList("best"))
	mux.HandleFunc("GET /maxitem.json", s.serveMaxItem)
	mux.HandleFunc("GET /item/{file}", s.serveItem)
	s.Server = httptest.NewServer(s.count(mux))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) SetTop(ids ...int64)  { s.setList("top", ids) }
func (s *Server) SetNew(ids ...int64)  { s.setList("new", ids) }
func (s *Server) SetBest(ids ...int64) { s.setList("best", ids) }

func (s *Server) SetMaxItem(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxItem = id
}

// SetItem stores v, marshalled to JSON, as the body for item id.
func (s *Server) SetItem(id int64, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("hntest: marshal item %d: %v", id, err))
	}
	s.SetRawItem(id, string(b))
}

func (s *Server) SetRawItem(id int64, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = []byte(body)
}

// Override forces the status and body served for path, e.g. "/maxitem.json".
func (s *Server) Override(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override[path] = response{status: status, body: body}
}

// Requests reports how many requests were made for path.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// ItemRequests reports how many item requests were made in total.
func (s *Server) ItemRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p, c := range s.requests {
		if strings.HasPrefix(p, "/item/") {
			n += c
		}
	}
	return n
}

func (s *Server) setList(name string, ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[name] = append([]int64(nil), ids...)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		o, ok := s.override[r.URL.Path]
		s.mu.Unlock()
		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(o.status)
			w.Write([]byte(o.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveList(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		ids := s.lists[name]
		if ids == nil {
			ids = []int64{}
		}
		b, _ := json.Marshal(ids)
		s.mu.Unlock()
		writeJSON(w, b)
	}
}

func (s *Server) serveMaxItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id := s.maxItem
	s.mu.Unlock()
	writeJSON(w, []byte(strconv.FormatInt(id, 10)))
}

func (s *Server) serveItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimSuffix(r.PathValue("file"), ".json"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"Invalid path"}`, http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	body, ok := s.items[id]
	s.mu.Unlock()
	if !ok {
		body = []byte("null")
	}
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(body)
}

// Frontpage is the shape of a dataset seeded by Seed.
type Frontpage struct {
	Top  []int64
	New  []int64
	Best []int64

	// Notable items inside Top.
	DeadID     int64
	SelfTextID int64
	NoKidsID   int64
	WithKidsID int64
	CommentID  int64
}

// Seed fills the server with a consistent front page of n top stories posted
// within the hour before now. Every property the live checks look for is present.
func Seed(s *Server, n int, now time.Time) Frontpage {
	var fp Frontpage
	base := int64(40_000_000)
	commentID := base + 100_000

	for i := 0; i < n; i++ {
		id := base + int64(i)
		story := map[string]any{
			"id":    id,
			"type":  "story",
			"by":    fmt.Sprintf("user%d", i),
			"time":  now.Add(-time.Duration(i+1) * time.Minute).Unix(),
			"title": fmt.Sprintf("Story number %d", i),
			"score": 1000 - i,
			"url":   fmt.Sprintf("https://example.com/%d", i),
		}
		switch i {
		case 0:
			// first story carries the comment thread
			story["kids"] = []int64{commentID, commentID + 1}
			story["descendants"] = 3
			fp.WithKidsID = id
			fp.CommentID = commentID
			s.SetItem(commentID, map[string]any{
				"id": commentID, "type": "comment", "by": "commenter",
				"time": now.Add(-30 * time.Second).Unix(), "parent": id,
				"text": "first", "kids": []int64{commentID + 2},
			})
			s.SetItem(commentID+1, map[string]any{
				"id": commentID + 1, "type": "comment", "by": "other",
				"time": now.Add(-20 * time.Second).Unix(), "parent": id, "text": "second",
			})
			s.SetItem(commentID+2, map[string]any{
				"id": commentID + 2, "type": "comment", "by": "reply",
				"time": now.Add(-10 * time.Second).Unix(), "parent": commentID, "text": "reply",
			})
		case 1:
			story["kids"] = []int64{}
			story["descendants"] = 0
			fp.NoKidsID = id
		case 2:
			delete(story, "url")
			story["text"] = "Ask HN: what are you working on?"
			fp.SelfTextID = id
		case 3:
			story["dead"] = true
			fp.DeadID = id
		}
		if i > 3 {
			story["kids"] = []int64{commentID + 1000 + int64(i)}
			story["descendants"] = 1
		}
		s.SetItem(id, story)
		fp.Top = append(fp.Top, id)
	}

	fp.New = make([]int64, len(fp.Top))
	for i, id := range fp.Top {
		fp.New[len(fp.Top)-1-i] = id
	}
	fp.Best = append([]int64{base - 1}, fp.Top[:len(fp.Top)-1]...)
	s.SetItem(base-1, map[string]any{
		"id": base - 1, "type": "story", "by": "veteran", "time": now.Add(-48 * time.Hour).Unix(),
		"title": "An old favourite", "score": 4000, "url": "https://example.com/best",
	})

	s.SetTop(fp.Top...)
	s.SetNew(fp.New...)
	s.SetBest(fp.Best...)
	s.SetMaxItem(commentID + 5000)
	return fp
}
