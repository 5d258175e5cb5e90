package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"deposit-bot/models"
)

const pageSize = 100

type issuePayload struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      *string   `json:"body"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
		ID    int64  `json:"id"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct{} `json:"pull_request"`
}

func (p issuePayload) toSubmission() models.Submission {
	sub := models.Submission{
		Number:    p.Number,
		Title:     p.Title,
		URL:       p.HTMLURL,
		CreatedAt: p.CreatedAt,
		Author:    models.Author{Login: p.User.Login, ID: p.User.ID},
	}
	if p.Body != nil {
		sub.Body = *p.Body
	}
	for _, l := range p.Labels {
		sub.Labels = append(sub.Labels, l.Name)
	}
	return sub
}

// ListIssues holt alle Issues mit Zustand und Label, Seite für Seite.
func (c *Client) ListIssues(ctx context.Context, state, label string) ([]models.Submission, error) {
	var out []models.Submission
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("state", state)
		params.Set("labels", label)
		params.Set("per_page", strconv.Itoa(pageSize))
		params.Set("page", strconv.Itoa(page))

		resp, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/issues", c.Repository), params, nil)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}
		if resp.NotFound {
			return out, nil
		}
		var issues []issuePayload
		if err := resp.Decode(&issues); err != nil {
			return nil, fmt.Errorf("decode issues: %w", err)
		}
		for _, is := range issues {
			if is.PullRequest != nil {
				continue
			}
			out = append(out, is.toSubmission())
		}
		if len(issues) < pageSize {
			return out, nil
		}
	}
}

// GetUserID löst einen Login in die numerische Nutzer-ID auf. found ist false bei 404.
func (c *Client) GetUserID(ctx context.Context, login string) (id int64, found bool, err error) {
	resp, err := c.Request(ctx, http.MethodGet, "/users/"+url.PathEscape(login), nil, nil)
	if err != nil {
		return 0, false, fmt.Errorf("get user %s: %w", login, err)
	}
	if resp.NotFound {
		return 0, false, nil
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := resp.Decode(&user); err != nil {
		return 0, false, fmt.Errorf("decode user %s: %w", login, err)
	}
	return user.ID, true, nil
}

// AddLabels hängt Labels an ein Issue.
func (c *Client) AddLabels(ctx context.Context, number int, labels ...string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/labels", c.Repository, number)
	resp, err := c.Request(ctx, http.MethodPost, path, nil, map[string][]string{"labels": labels})
	if err != nil {
		return fmt.Errorf("add labels to #%d: %w", number, err)
	}
	if resp.NotFound {
		return fmt.Errorf("add labels to #%d: issue not found", number)
	}
	return nil
}

// RemoveLabel entfernt ein Label. Ein bereits fehlendes Label ist kein Fehler.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/labels/%s", c.Repository, number, url.PathEscape(label))
	resp, err := c.Request(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return fmt.Errorf("remove label from #%d: %w", number, err)
	}
	if resp.NotFound {
		c.Logger.Debug("Label already absent", zap.Int("issue", number), zap.String("label", label))
	}
	return nil
}

// AddComment schreibt einen Kommentar unter ein Issue.
func (c *Client) AddComment(ctx context.Context, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", c.Repository, number)
	resp, err := c.Request(ctx, http.MethodPost, path, nil, map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("comment on #%d: %w", number, err)
	}
	if resp.NotFound {
		return fmt.Errorf("comment on #%d: issue not found", number)
	}
	return nil
}

// CloseIssue schließt ein Issue.
func (c *Client) CloseIssue(ctx context.Context, number int) error {
	path := fmt.Sprintf("/repos/%s/issues/%d", c.Repository, number)
	resp, err := c.Request(ctx, http.MethodPatch, path, nil, map[string]string{"state": "closed"})
	if err != nil {
		return fmt.Errorf("close #%d: %w", number, err)
	}
	if resp.NotFound {
		return fmt.Errorf("close #%d: issue not found", number)
	}
	return nil
}
