package services

import (
	"bytes"
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"
)

// MergeReports fügt mehrere HTML-Berichte zu einem Dokument zusammen.
// Das erste Dokument ist die Basis; Styles und Body der weiteren werden angehängt.
func MergeReports(paths ...string) ([]byte, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no reports to merge")
	}
	docs := make([]*goquery.Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse report %s: %w", p, err)
		}
		docs = append(docs, doc)
	}
	if len(docs) == 1 {
		html, err := goquery.OuterHtml(docs[0].Selection)
		return []byte(html), err
	}

	base := docs[0]
	head := base.Find("head").First()
	body := base.Find("body").First()
	for _, doc := range docs[1:] {
		doc.Find("head style, head link[rel=stylesheet]").Each(func(_ int, s *goquery.Selection) {
			if html, err := goquery.OuterHtml(s); err == nil {
				head.AppendHtml(html)
			}
		})
		inner, err := doc.Find("body").First().Html()
		if err != nil {
			return nil, err
		}
		body.AppendHtml("<hr/>" + inner)
	}

	html, err := goquery.OuterHtml(base.Selection)
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}
