// Package i18n turns coded errors into the text a player reads, using the
// "errors" namespace of the message catalogs. Entries are text/template
// strings filled from the error's Metadata, e.g. "Character {{.CharacterID}} not found."
package i18n

import (
	"strings"
	"sync"
	"text/template"

	apperrors "github.com/louisbranch/macrotable/internal/platform/errors"
	i18ncatalog "github.com/louisbranch/macrotable/internal/platform/i18n/catalog"
)

const errorsNamespace = "errors"

// Code is an error code as it appears in the catalog.
type Code = string

// Catalog is one locale's error messages, parsed once.
type Catalog struct {
	locale    string
	raw       map[Code]string
	templates map[Code]*template.Template
}

// NewCatalog parses messages for locale. An entry that does not parse is
// kept and rendered verbatim.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	c := &Catalog{
		locale:    locale,
		raw:       make(map[Code]string, len(messages)),
		templates: make(map[Code]*template.Template, len(messages)),
	}
	for code, text := range messages {
		c.raw[code] = text
		if tmpl, err := template.New(code).Option("missingkey=default").Parse(text); err == nil {
			c.templates[code] = tmpl
		}
	}
	return c
}

func (c *Catalog) Locale() string { return c.locale }

// Format renders code with metadata. An unknown code renders as itself and a
// template that fails renders as its source text.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	text, ok := c.raw[code]
	if !ok {
		return code
	}
	tmpl, ok := c.templates[code]
	if !ok {
		return text
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, metadata); err != nil {
		return text
	}
	return out.String()
}

// registry caches catalogs by locale. Values are *Catalog.
var registry sync.Map

// RegisterCatalog installs cat for locale, replacing any cached catalog.
func RegisterCatalog(locale string, cat *Catalog) {
	registry.Store(locale, cat)
}

// GetCatalog returns the catalog for locale. Unknown locales resolve to the
// closest loaded one and finally to the base locale.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = i18ncatalog.BaseLocale
	}
	if cached, ok := registry.Load(requested); ok {
		return cached.(*Catalog)
	}

	bundle := i18ncatalog.Default()
	resolved := bundle.MatchLocale(requested)
	built := NewCatalog(resolved, bundle.Namespace(resolved, errorsNamespace))
	actual, _ := registry.LoadOrStore(resolved, built)
	return actual.(*Catalog)
}

// UserMessage renders err for locale and reports the locale actually used.
// Errors without a code render as the UNKNOWN entry.
func UserMessage(err error, locale string) (message, resolvedLocale string) {
	cat := GetCatalog(locale)
	coded, ok := apperrors.As(err)
	if !ok {
		return cat.Format(string(apperrors.CodeUnknown), nil), cat.Locale()
	}
	return cat.Format(string(coded.Code), coded.Metadata), cat.Locale()
}

// ToGRPCStatus converts err to a status whose LocalizedMessage is the
// rendered user message. Uncoded errors become UNKNOWN.
func ToGRPCStatus(err error, locale string) error {
	coded, ok := apperrors.As(err)
	if !ok {
		coded = apperrors.Wrap(apperrors.CodeUnknown, err.Error(), err)
	}
	message, resolved := UserMessage(coded, locale)
	return coded.ToGRPCStatus(resolved, message)
}
