// Package i18n renders user-facing grading messages through an x/text
// message catalog. Messages missing from the catalog fall back to the
// English format string.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

type Catalog struct {
	b *catalog.Builder
}

func NewCatalog() *Catalog {
	return &Catalog{b: catalog.NewBuilder(catalog.Fallback(language.English))}
}

// Add registers a translation of key for locale.
func (c *Catalog) Add(locale, key, msg string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("i18n: locale %q: %w", locale, err)
	}
	return c.b.SetString(tag, key, msg)
}

// AddAll registers a locale's translations, keyed by English format.
func (c *Catalog) AddAll(locale string, msgs map[string]string) error {
	for k, v := range msgs {
		if err := c.Add(locale, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Printer returns a translator for locale. An unparseable locale yields
// English.
func (c *Catalog) Printer(locale string) *Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Printer{p: message.NewPrinter(tag, message.Catalog(c.b))}
}

type Printer struct {
	p *message.Printer
}

func (p *Printer) Sprintf(format string, args ...interface{}) string {
	return p.p.Sprintf(format, args...)
}
