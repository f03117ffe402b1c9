package templates

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultLanguage is used when a lookup asks for a language the registry does not know.
const DefaultLanguage = "en"

// Registry maps a Type to its Template. It is read-only once constructed,
// so concurrent lookups need no locking.
type Registry struct {
	defaultLang string
	base        map[Type]Template
	localized   map[string]map[Type]Text
}

// NewRegistry builds the built-in registry and layers catalog on top.
// A nil catalog yields the built-ins only.
func NewRegistry(catalog *Catalog) (*Registry, error) {
	r := &Registry{
		defaultLang: DefaultLanguage,
		base:        builtin(),
		localized:   map[string]map[Type]Text{},
	}
	if catalog == nil {
		return r, nil
	}
	if err := r.apply(catalog); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns a copy of the template for typ, localized for lang when a
// translation exists. Unknown types yield ErrTemplateNotFound.
func (r *Registry) Lookup(typ Type, lang string) (Template, error) {
	t, ok := r.base[typ]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, typ)
	}
	t = t.clone()

	for _, l := range languageChain(lang, r.defaultLang) {
		tr, ok := r.localized[l][typ]
		if !ok {
			continue
		}
		if tr.Title != "" {
			t.Title = tr.Title
		}
		if tr.Message != "" {
			t.Message = tr.Message
		}
		break
	}
	return t, nil
}

// Types lists every registered type, sorted.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.base))
	for t := range r.base {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Languages lists languages that have at least one translation.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.localized))
	for l := range r.localized {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// languageChain yields "zh-CN", "zh", then the default language.
func languageChain(lang, def string) []string {
	lang = strings.TrimSpace(lang)
	chain := make([]string, 0, 3)
	if lang != "" {
		chain = append(chain, lang)
		if i := strings.IndexAny(lang, "-_"); i > 0 {
			chain = append(chain, lang[:i])
		}
	}
	if def != "" && def != lang {
		chain = append(chain, def)
	}
	return chain
}
