package parse

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/Sriram-PR/sitemap-stats/pkg/models"
	"github.com/Sriram-PR/sitemap-stats/pkg/utils"
)

// --- XML Structs for Sitemap Parsing ---

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

const (
	rootURLSet       = "urlset"
	rootSitemapIndex = "sitemapindex"
	xmlPrologMarker  = "<?xml"
	utf8BOM          = "\ufeff"
)

// Parse classifies a response body and extracts its records.
// It never returns an error: every failure is reported as a ParseOutcome with Kind OutcomeFailure.
func Parse(body string) models.ParseOutcome {
	kind, records, err := Classify(body)
	if err != nil {
		return models.Failed(utils.FailureFrom(err))
	}
	return models.ParseOutcome{Kind: kind, Records: records}
}

// Classify is the error-returning form of Parse. Errors wrap utils.ErrNotXML,
// utils.ErrMalformedXML or utils.ErrUnrecognizedRoot.
func Classify(body string) (models.OutcomeKind, []models.Record, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), utf8BOM))
	if !strings.HasPrefix(trimmed, xmlPrologMarker) {
		// Cheap rejection of HTML error pages, JSON, empty bodies
		return models.OutcomeFailure, nil, utils.ErrNotXML
	}

	decoder := xml.NewDecoder(strings.NewReader(trimmed))
	decoder.CharsetReader = charset.NewReaderLabel // Sitemaps declaring ISO-8859-1, windows-1252, ...

	root, err := nextStartElement(decoder)
	if err != nil {
		return models.OutcomeFailure, nil, malformed(err)
	}

	var (
		kind    models.OutcomeKind
		records []models.Record
	)

	// --- Decode the root directly into the typed structs ---
	switch root.Name.Local {
	case rootURLSet:
		var urlSet XMLURLSet
		if err := decoder.DecodeElement(&urlSet, &root); err != nil {
			return models.OutcomeFailure, nil, malformed(err)
		}
		kind = models.OutcomeURLSet
		records = make([]models.Record, 0, len(urlSet.URLs))
		for _, entry := range urlSet.URLs {
			if rec, ok := newRecord(entry.Loc, entry.LastMod); ok {
				records = append(records, rec)
			}
		}

	case rootSitemapIndex:
		var index XMLSitemapIndex
		if err := decoder.DecodeElement(&index, &root); err != nil {
			return models.OutcomeFailure, nil, malformed(err)
		}
		kind = models.OutcomeSitemapIndex
		records = make([]models.Record, 0, len(index.Sitemaps))
		for _, entry := range index.Sitemaps {
			if rec, ok := newRecord(entry.Loc, entry.LastMod); ok {
				records = append(records, rec)
			}
		}

	default:
		// Still require a well-formed document before reporting the root
		if err := decoder.Skip(); err != nil {
			return models.OutcomeFailure, nil, malformed(err)
		}
		if err := drain(decoder); err != nil {
			return models.OutcomeFailure, nil, malformed(err)
		}
		return models.OutcomeFailure, nil, fmt.Errorf("%w: <%s>", utils.ErrUnrecognizedRoot, root.Name.Local)
	}

	if err := drain(decoder); err != nil {
		return models.OutcomeFailure, nil, malformed(err)
	}
	return kind, records, nil
}

// nextStartElement advances to the document's root element, skipping the prolog
func nextStartElement(decoder *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, errors.New("document has no root element")
			}
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) > 0 {
				return xml.StartElement{}, errors.New("text content before root element")
			}
		}
	}
}

// drain consumes everything after the root element, rejecting a second root or stray text
func drain(decoder *xml.Decoder) error {
	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after root element", t.Name.Local)
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) > 0 {
				return errors.New("text content after root element")
			}
		}
	}
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", utils.ErrMalformedXML, err)
}

// newRecord builds a Record from raw loc/lastmod text. Entries without a loc are dropped.
func newRecord(loc, lastMod string) (models.Record, bool) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return models.Record{}, false
	}

	rec := models.Record{Loc: loc, Domain: domainPtr(loc)}
	if lm := strings.TrimSpace(lastMod); lm != "" {
		rec.LastMod = &lm
	}
	return rec, true
}
