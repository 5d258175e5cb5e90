package identifiers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Scheme ist ein Identifier-Schema aus der geschlossenen Aufzählung.
type Scheme string

const (
	DOI       Scheme = "doi"
	ISBN      Scheme = "isbn"
	PMID      Scheme = "pmid"
	PMCID     Scheme = "pmcid"
	URL       Scheme = "url"
	Wikidata  Scheme = "wikidata"
	Wikipedia Scheme = "wikipedia"
	OpenAlex  Scheme = "openalex"
	Temp      Scheme = "temp"
	Local     Scheme = "local"
)

// Deposit-fähige Schemata in der Reihenfolge, in der sie Nutzern genannt werden.
var supported = []Scheme{DOI, ISBN, PMID, PMCID, URL, Wikidata, Wikipedia, OpenAlex}

// ParseScheme liefert das Schema zu einem (beliebig geschriebenen) Namen.
func ParseScheme(name string) (Scheme, bool) {
	s := Scheme(strings.ToLower(strings.TrimSpace(name)))
	switch s {
	case DOI, ISBN, PMID, PMCID, URL, Wikidata, Wikipedia, OpenAlex, Temp, Local:
		return s, true
	}
	return s, false
}

// Supported meldet, ob Deposits für dieses Schema angenommen werden.
func (s Scheme) Supported() bool {
	for _, x := range supported {
		if x == s {
			return true
		}
	}
	return false
}

// SupportedNames listet die unterstützten Schemata.
func SupportedNames() []string {
	out := make([]string, len(supported))
	for i, s := range supported {
		out[i] = string(s)
	}
	return out
}

// Checker prüft einen Identifier-Wert für ein Schema.
type Checker interface {
	IsValid(ctx context.Context, scheme Scheme, value string) (bool, error)
}

// CheckFunc prüft einen einzelnen Wert.
type CheckFunc func(value string) bool

// Table ist ein Checker, der pro Schema eine Prüffunktion nachschlägt.
type Table map[Scheme]CheckFunc

var _ Checker = Table(nil)

// IsValid wendet die Prüffunktion des Schemas an.
func (t Table) IsValid(_ context.Context, scheme Scheme, value string) (bool, error) {
	fn, ok := t[scheme]
	if !ok {
		return false, fmt.Errorf("no checker registered for scheme %q", scheme)
	}
	return fn(strings.TrimSpace(value)), nil
}

var (
	doiRe       = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	pmidRe      = regexp.MustCompile(`^[1-9]\d{0,9}$`)
	pmcidRe     = regexp.MustCompile(`^PMC[1-9]\d*$`)
	wikidataRe  = regexp.MustCompile(`^Q[1-9]\d*$`)
	wikipediaRe = regexp.MustCompile(`^[1-9]\d*$`)
	openAlexRe  = regexp.MustCompile(`^[WAISCPF][1-9]\d*$`)
)

// Syntactic ist die Standard-Tabelle mit rein syntaktischen Prüfungen.
func Syntactic() Table {
	return Table{
		DOI:       func(v string) bool { return doiRe.MatchString(strings.ToLower(v)) },
		ISBN:      validISBN,
		PMID:      pmidRe.MatchString,
		PMCID:     func(v string) bool { return pmcidRe.MatchString(strings.ToUpper(v)) },
		URL:       validURL,
		Wikidata:  func(v string) bool { return wikidataRe.MatchString(strings.ToUpper(v)) },
		Wikipedia: wikipediaRe.MatchString,
		OpenAlex:  func(v string) bool { return openAlexRe.MatchString(strings.ToUpper(v)) },
	}
}

func validURL(v string) bool {
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// validISBN prüft ISBN-10 und ISBN-13 inklusive Prüfziffer.
func validISBN(v string) bool {
	digits := strings.NewReplacer("-", "", " ", "").Replace(v)
	switch len(digits) {
	case 10:
		sum := 0
		for i, r := range digits {
			var d int
			switch {
			case r >= '0' && r <= '9':
				d = int(r - '0')
			case (r == 'X' || r == 'x') && i == 9:
				d = 10
			default:
				return false
			}
			sum += d * (10 - i)
		}
		return sum%11 == 0
	case 13:
		sum := 0
		for i, r := range digits {
			if r < '0' || r > '9' {
				return false
			}
			d := int(r - '0')
			if i%2 == 1 {
				d *= 3
			}
			sum += d
		}
		return sum%10 == 0
	}
	return false
}
