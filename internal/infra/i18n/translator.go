package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLang is used for vendors without a locale and for missing keys.
const DefaultLang = "en"

type Translator struct {
	translations map[string]string
}

func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))

	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(data)
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

func (t *Translator) lookup(key string) (string, bool) {
	v, ok := t.translations[key]
	return v, ok
}

// T returns key itself when no translation exists.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.lookup(key)
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Catalog holds one Translator per language and falls back to DefaultLang.
type Catalog struct {
	langs map[string]*Translator
}

// LoadCatalog reads every locales/<lang>.yaml in fsys.
func LoadCatalog(fsys fs.FS) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	c := &Catalog{langs: map[string]*Translator{}}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		lang := strings.TrimSuffix(name, ".yaml")
		tr, err := NewTranslator(fsys, lang)
		if err != nil {
			return nil, err
		}
		c.langs[lang] = tr
	}
	if _, ok := c.langs[DefaultLang]; !ok {
		return nil, fmt.Errorf("locales: missing %s.yaml", DefaultLang)
	}
	return c, nil
}

// T translates key for lang, trying DefaultLang for unknown languages or keys.
func (c *Catalog) T(lang, key string, args ...interface{}) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if tr, ok := c.langs[lang]; ok {
		if _, found := tr.lookup(key); found {
			return tr.T(key, args...)
		}
	}
	return c.langs[DefaultLang].T(key, args...)
}
