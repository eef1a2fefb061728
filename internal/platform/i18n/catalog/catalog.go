// Package catalog loads the YAML message catalogs shipped with the binary and
// registers them with x/text so printers can localize card and error text.
//
// Catalogs live at locales/<locale>/<namespace>.yaml. Every key belongs to
// exactly one namespace per locale, and every locale falls back to en-US for
// keys it does not define.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the locale every other catalog falls back to.
const BaseLocale = "en-US"

const catalogGlob = "locales/*/*.yaml"

//go:embed locales/*/*.yaml
var embedded embed.FS

var defaultBundle = mustRegister(LoadEmbedded())

// Default returns the embedded bundle, already registered with x/text.
func Default() *Bundle {
	return defaultBundle
}

type fileDoc struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle holds messages per locale and namespace.
type Bundle struct {
	// locale -> namespace -> key -> message
	locales map[string]map[string]map[string]string
	matcher language.Matcher
	order   []string
}

// LoadEmbedded loads the catalogs compiled into this package.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embedded)
}

// LoadFromFS loads every catalog under locales/ in fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, catalogGlob)
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	slices.Sort(paths)

	b := &Bundle{locales: map[string]map[string]map[string]string{}}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var doc fileDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if err := b.add(p, doc); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", p, err)
		}
	}
	if _, ok := b.locales[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}

	// The base locale leads so it wins ties in MatchLocale.
	b.order = append([]string{BaseLocale}, slices.DeleteFunc(b.Locales(), func(l string) bool { return l == BaseLocale })...)
	tags := make([]language.Tag, 0, len(b.order))
	for _, locale := range b.order {
		tags = append(tags, language.Make(locale))
	}
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

func (b *Bundle) add(p string, doc fileDoc) error {
	dirLocale := path.Base(path.Dir(p))
	fileNamespace := strings.TrimSuffix(path.Base(p), path.Ext(p))

	locale := strings.TrimSpace(doc.Locale)
	namespace := strings.TrimSpace(doc.Namespace)
	switch {
	case locale == "":
		return fmt.Errorf("locale is required")
	case locale != dirLocale:
		return fmt.Errorf("locale %q must match directory %q", locale, dirLocale)
	case namespace == "":
		return fmt.Errorf("namespace is required")
	case namespace != fileNamespace:
		return fmt.Errorf("namespace %q must match file name %q", namespace, fileNamespace)
	case len(doc.Messages) == 0:
		return fmt.Errorf("messages are required")
	}

	namespaces, ok := b.locales[locale]
	if !ok {
		namespaces = map[string]map[string]string{}
		b.locales[locale] = namespaces
	}
	if _, dup := namespaces[namespace]; dup {
		return fmt.Errorf("namespace %q already defined for %s", namespace, locale)
	}

	messages := make(map[string]string, len(doc.Messages))
	for rawKey, value := range doc.Messages {
		key := strings.TrimSpace(rawKey)
		if key == "" {
			return fmt.Errorf("message key cannot be blank")
		}
		if prefix, _, dotted := strings.Cut(key, "."); dotted && prefix != namespace {
			return fmt.Errorf("key %q must be prefixed with namespace %q", key, namespace)
		}
		for other, otherMessages := range namespaces {
			if _, dup := otherMessages[key]; dup {
				return fmt.Errorf("key %q already defined in namespace %q", key, other)
			}
		}
		messages[key] = value
	}
	namespaces[namespace] = messages
	return nil
}

// Register installs every message with x/text/message. Locales also register
// under their base language, so "pt" resolves like "pt-BR".
func (b *Bundle) Register() error {
	for _, locale := range b.Locales() {
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		tags := []language.Tag{tag}
		if base, conf := tag.Base(); conf != language.No {
			if baseTag := language.Make(base.String()); baseTag.String() != tag.String() {
				tags = append(tags, baseTag)
			}
		}
		messages := b.merged(locale, "")
		for _, key := range slices.Sorted(maps.Keys(messages)) {
			for _, t := range tags {
				if err := message.SetString(t, key, messages[key]); err != nil {
					return fmt.Errorf("register %s %q: %w", locale, key, err)
				}
			}
		}
	}
	return nil
}

// Locales returns the loaded locales in sorted order.
func (b *Bundle) Locales() []string {
	if b == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(b.locales))
}

// HasLocale reports whether locale has its own catalogs.
func (b *Bundle) HasLocale(locale string) bool {
	if b == nil {
		return false
	}
	_, ok := b.locales[strings.TrimSpace(locale)]
	return ok
}

// MatchLocale resolves a requested locale ("pt", "pt-PT", "en-GB") to the
// closest loaded one, defaulting to BaseLocale.
func (b *Bundle) MatchLocale(requested string) string {
	requested = strings.TrimSpace(requested)
	if b == nil || b.matcher == nil || requested == "" {
		return BaseLocale
	}
	if b.HasLocale(requested) {
		return requested
	}
	_, index, confidence := b.matcher.Match(language.Make(requested))
	if confidence == language.No {
		return BaseLocale
	}
	return b.order[index]
}

// Namespace returns a copy of one namespace for locale, with base-locale
// messages filling any key the locale does not define.
func (b *Bundle) Namespace(locale, namespace string) map[string]string {
	return b.merged(strings.TrimSpace(locale), strings.TrimSpace(namespace))
}

// Lookup returns one message with base-locale fallback.
func (b *Bundle) Lookup(locale, key string) (string, bool) {
	key = strings.TrimSpace(key)
	if b == nil || key == "" {
		return "", false
	}
	for _, candidate := range []string{strings.TrimSpace(locale), BaseLocale} {
		for _, messages := range b.locales[candidate] {
			if value, ok := messages[key]; ok {
				return value, true
			}
		}
	}
	return "", false
}

// Printer returns an x/text printer for the closest loaded locale.
func (b *Bundle) Printer(locale string) *message.Printer {
	return message.NewPrinter(language.Make(b.MatchLocale(locale)))
}

// merged flattens the base locale and then locale on top. An empty namespace
// selects every namespace.
func (b *Bundle) merged(locale, namespace string) map[string]string {
	out := map[string]string{}
	if b == nil {
		return out
	}
	for _, candidate := range []string{BaseLocale, locale} {
		for name, messages := range b.locales[candidate] {
			if namespace == "" || name == namespace {
				maps.Copy(out, messages)
			}
		}
	}
	return out
}

func mustRegister(b *Bundle, err error) *Bundle {
	if err != nil {
		panic(err)
	}
	if err := b.Register(); err != nil {
		panic(err)
	}
	return b
}
