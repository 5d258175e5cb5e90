package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestListIssuesPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/repo/issues" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("state") != "open" || q.Get("labels") != "deposit" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		var items []string
		switch q.Get("page") {
		case "1":
			for i := 1; i <= pageSize; i++ {
				items = append(items, fmt.Sprintf(`{"number":%d,"title":"t","body":"b","user":{"login":"u","id":7}}`, i))
			}
		case "2":
			items = append(items,
				`{"number":101,"title":"last","body":null,"user":{"login":"v","id":8},"labels":[{"name":"deposit"}]}`,
				`{"number":102,"title":"pr","pull_request":{}}`)
		}
		w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	subs, err := c.ListIssues(context.Background(), "open", "deposit")
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(subs) != pageSize+1 {
		t.Fatalf("expected %d issues, got %d", pageSize+1, len(subs))
	}
	last := subs[len(subs)-1]
	if last.Number != 101 || last.Body != "" || last.Author.ID != 8 || len(last.Labels) != 1 {
		t.Fatalf("unexpected last issue: %+v", last)
	}
}

func TestGetUserIDNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/alice" {
			w.Write([]byte(`{"login":"alice","id":42}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	id, found, err := c.GetUserID(context.Background(), "alice")
	if err != nil || !found || id != 42 {
		t.Fatalf("GetUserID(alice) = %d, %v, %v", id, found, err)
	}
	_, found, err = c.GetUserID(context.Background(), "ghost")
	if err != nil || found {
		t.Fatalf("GetUserID(ghost) = %v, %v", found, err)
	}
}

func TestAnswerCalls(t *testing.T) {
	type call struct {
		Method string
		Path   string
		Body   map[string]any
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(data) > 0 {
			json.Unmarshal(data, &body)
		}
		calls = append(calls, call{r.Method, r.URL.EscapedPath(), body})
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	ctx := context.Background()
	if err := c.AddLabels(ctx, 5, "invalid"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddComment(ctx, 5, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := c.CloseIssue(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveLabel(ctx, 5, "to be processed"); err != nil {
		t.Fatalf("RemoveLabel on missing label: %v", err)
	}

	if len(calls) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(calls))
	}
	if calls[0].Method != http.MethodPost || calls[0].Path != "/repos/owner/repo/issues/5/labels" {
		t.Fatalf("labels call = %+v", calls[0])
	}
	if calls[1].Body["body"] != "hello" {
		t.Fatalf("comment body = %+v", calls[1].Body)
	}
	if calls[2].Method != http.MethodPatch || calls[2].Body["state"] != "closed" {
		t.Fatalf("close call = %+v", calls[2])
	}
	if calls[3].Path != "/repos/owner/repo/issues/5/labels/to%20be%20processed" {
		t.Fatalf("remove label path = %s", calls[3].Path)
	}
}
