package language

import (
	"strings"
	"unicode"

	xlang "golang.org/x/text/language"
)

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	alt3    string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	display string   // Human-readable name
	native  string   // Name used inside generation prompts
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", "English", "English", []string{"english"}},
	{"es", "spa", "", "Spanish", "Español", []string{"spanish"}},
	{"fr", "fra", "fre", "French", "Français", []string{"french"}},
	{"de", "deu", "ger", "German", "Deutsch", []string{"german"}},
	{"it", "ita", "", "Italian", "Italiano", []string{"italian"}},
	{"pt", "por", "", "Portuguese", "Português", []string{"portuguese"}},
	{"ja", "jpn", "", "Japanese", "日本語", []string{"japanese"}},
	{"ko", "kor", "", "Korean", "한국어", []string{"korean"}},
	{"zh", "zho", "chi", "Chinese", "中文（簡體）", []string{"chinese"}},
	{"ru", "rus", "", "Russian", "Русский", []string{"russian"}},
	{"ar", "ara", "", "Arabic", "العربية", []string{"arabic"}},
	{"hi", "hin", "", "Hindi", "हिन्दी", []string{"hindi"}},
	{"nl", "nld", "dut", "Dutch", "Nederlands", []string{"dutch"}},
	{"pl", "pol", "", "Polish", "Polski", []string{"polish"}},
	{"sv", "swe", "", "Swedish", "Svenska", []string{"swedish"}},
	{"da", "dan", "", "Danish", "Dansk", []string{"danish"}},
	{"no", "nor", "", "Norwegian", "Norsk", []string{"norwegian"}},
	{"fi", "fin", "", "Finnish", "Suomi", []string{"finnish"}},
}

// Traditional Chinese is addressed by region code in requests (zh-tw) but by
// script in BCP 47 (zh-Hant). Both resolve to the same prompt name.
const (
	traditionalChinese       = "zh-tw"
	traditionalChineseName   = "Traditional Chinese"
	traditionalChineseNative = "中文（繁體）"
)

// Index maps built at init time.
var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// Normalize lowercases a code, converts underscores to hyphens and maps
// 3-letter codes and word forms onto their 2-letter equivalent while keeping
// any region or script suffix ("ENG" -> "en", "zh_TW" -> "zh-tw").
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "_", "-")
	if code == "" {
		return ""
	}
	primary, rest, hasRest := strings.Cut(code, "-")
	if e := lookup(primary); e != nil {
		primary = e.code2
	}
	switch {
	case primary == "zh" && isTraditionalSuffix(rest):
		return traditionalChinese
	case hasRest:
		return primary + "-" + rest
	default:
		return primary
	}
}

func isTraditionalSuffix(rest string) bool {
	switch rest {
	case "tw", "hk", "mo", "hant", "hant-tw", "hant-hk":
		return true
	}
	return false
}

// Base returns the base language of a code as an ISO 639-1 code when one
// exists. Macro-language members collapse onto the macro-language, so "cmn",
// "zh-Hans" and "zh-TW" all report "zh". Unparseable input is returned
// normalized.
func Base(code string) string {
	normalized := Normalize(code)
	if normalized == "" {
		return ""
	}
	tag, err := xlang.Parse(normalized)
	if err != nil {
		primary, _, _ := strings.Cut(normalized, "-")
		return primary
	}
	base, _ := tag.Base()
	if e := lookup(base.String()); e != nil {
		return e.code2
	}
	if iso3 := base.ISO3(); iso3 != "" {
		if e := lookup(iso3); e != nil {
			return e.code2
		}
	}
	return base.String()
}

// Same reports whether two codes name the same base language. Empty codes
// never match.
func Same(a, b string) bool {
	ba, bb := Base(a), Base(b)
	if ba == "" || bb == "" {
		return false
	}
	return ba == bb
}

// ToISO2 converts any recognized language code or word to ISO 639-1 (2-letter).
// Returns empty string for unrecognized input.
// If the input is already a 2-letter code (even if unknown), it passes through.
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns an English name for the code, or the normalized code
// when it is not in the table.
func DisplayName(code string) string {
	normalized := Normalize(code)
	if normalized == traditionalChinese {
		return traditionalChineseName
	}
	primary, _, _ := strings.Cut(normalized, "-")
	if e := lookup(primary); e != nil {
		return e.display
	}
	return normalized
}

// PromptName returns the name a generation prompt should use when asking for
// output in the given language. Unknown codes fall back to English.
func PromptName(code string) string {
	normalized := Normalize(code)
	if normalized == traditionalChinese {
		return traditionalChineseNative
	}
	primary, _, _ := strings.Cut(normalized, "-")
	if e := lookup(primary); e != nil {
		return e.native
	}
	return "English"
}

// IsChinese reports whether the code names any Chinese variant.
func IsChinese(code string) bool {
	return Base(code) == "zh"
}

// Guess infers a language from text when no detection result is available.
// It only distinguishes the scripts it can tell apart reliably and returns
// "en" otherwise.
func Guess(text string) string {
	var han, kana, hangul, letters int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Han, r):
			han++
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters == 0 {
		return "en"
	}
	switch {
	case kana*10 > letters:
		return "ja"
	case hangul*10 > letters:
		return "ko"
	case han*10 > letters*3:
		return "zh"
	default:
		return "en"
	}
}
