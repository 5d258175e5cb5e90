package models

import "time"

// Author ist der Ersteller eines Issues.
type Author struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Submission ist ein offenes Deposit-Issue aus dem Tracker.
type Submission struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"html_url"`
	Labels    []string  `json:"labels,omitempty"`
}

// ParsedTitle enthält die Bestandteile eines Titels der Form "deposit <domain> <scheme>:<value>".
type ParsedTitle struct {
	Domain string
	Scheme string
	Value  string
}
