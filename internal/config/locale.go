package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Locale is the server's interface language. The numeric values are what
// the server core expects after -lang.
type Locale int

const (
	English Locale = iota + 1
	German
	Italian
	French
	Spanish
	Russian
	Chinese
	Portuguese
	Polish
)

var localeTags = [...]language.Tag{
	English:    language.English,
	German:     language.German,
	Italian:    language.Italian,
	French:     language.French,
	Spanish:    language.Spanish,
	Russian:    language.Russian,
	Chinese:    language.Chinese,
	Portuguese: language.Portuguese,
	Polish:     language.Polish,
}

// Valid reports whether l is one of the supported languages.
func (l Locale) Valid() bool {
	return l >= English && l <= Polish
}

// Tag returns the BCP 47 tag of l, or language.Und.
func (l Locale) Tag() language.Tag {
	if !l.Valid() {
		return language.Und
	}
	return localeTags[l]
}

// String returns the English name of the language.
func (l Locale) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Locale(%d)", int(l))
	}
	return display.English.Languages().Name(l.Tag())
}

// DisplayName names l in the language in.
func (l Locale) DisplayName(in language.Tag) string {
	if !l.Valid() {
		return l.String()
	}
	return display.Languages(in).Name(l.Tag())
}

// Locales lists every supported language in numeric order.
func Locales() []Locale {
	out := make([]Locale, 0, int(Polish))
	for l := English; l <= Polish; l++ {
		out = append(out, l)
	}
	return out
}

// ParseLocale accepts the numeric value ("2"), the English name ("German")
// or a language tag ("de").
func ParseLocale(s string) (Locale, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if l := Locale(n); l.Valid() {
			return l, nil
		}
		return 0, fmt.Errorf("unknown language %d: expected 1 to %d", n, int(Polish))
	}
	for _, l := range Locales() {
		if strings.EqualFold(l.String(), s) {
			return l, nil
		}
	}
	if tag, err := language.Parse(s); err == nil {
		base, _ := tag.Base()
		for _, l := range Locales() {
			if b, _ := l.Tag().Base(); b == base {
				return l, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown language %q", s)
}

// LocaleHookFunc decodes numbers and names into a Locale.
func LocaleHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(Locale(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return ParseLocale(v)
		case int:
			return ParseLocale(strconv.Itoa(v))
		case int64:
			return ParseLocale(strconv.FormatInt(v, 10))
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("unknown language %v", v)
			}
			return ParseLocale(strconv.Itoa(int(v)))
		}
		return data, nil
	}
}
