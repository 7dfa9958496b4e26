package utils

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageAuto means "reply in whatever language the customer wrote in"
const LanguageAuto = "auto"

// Language codes
const (
	LangEnglish  = "en"
	LangHebrew   = "he"
	LangArabic   = "ar"
	LangRussian  = "ru"
	LangChinese  = "zh"
	LangJapanese = "ja"
	LangKorean   = "ko"
)

// Language represents a detected language
type Language struct {
	Code       string
	Name       string
	Confidence float64
}

// scripts are checked in order; Japanese precedes Chinese so kana wins over shared Han
var scripts = []struct {
	code   string
	tables []*unicode.RangeTable
}{
	{LangHebrew, []*unicode.RangeTable{unicode.Hebrew}},
	{LangArabic, []*unicode.RangeTable{unicode.Arabic}},
	{LangRussian, []*unicode.RangeTable{unicode.Cyrillic}},
	{LangJapanese, []*unicode.RangeTable{unicode.Hiragana, unicode.Katakana}},
	{LangKorean, []*unicode.RangeTable{unicode.Hangul}},
	{LangChinese, []*unicode.RangeTable{unicode.Han}},
}

// DetectLanguage guesses the language of text from its dominant non-Latin script.
// Text without a recognised script is reported as English.
func DetectLanguage(text string) Language {
	text = strings.TrimSpace(text)
	total := 0
	counts := make(map[string]int, len(scripts))
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		total++
		for _, s := range scripts {
			if unicode.IsOneOf(s.tables, r) {
				counts[s.code]++
				break
			}
		}
	}

	best := Language{Code: LangEnglish, Name: LanguageName(LangEnglish)}
	if total == 0 {
		return best
	}

	bestCount := 0
	for _, s := range scripts {
		if counts[s.code] > bestCount {
			bestCount = counts[s.code]
			best.Code = s.code
		}
	}
	// Kana marks Japanese even when Han characters dominate
	if counts[LangJapanese] > 0 && best.Code == LangChinese {
		best.Code = LangJapanese
	}

	if bestCount == 0 {
		best.Confidence = 1 - float64(total-countLatin(text))/float64(total)
		return best
	}
	best.Name = LanguageName(best.Code)
	best.Confidence = float64(bestCount) / float64(total)
	return best
}

func countLatin(text string) int {
	n := 0
	for _, r := range text {
		if unicode.Is(unicode.Latin, r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// LanguageName returns the English display name of a BCP 47 tag, e.g.
// "en-US" -> "American English". Unparseable values are title-cased as given.
func LanguageName(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return cases.Title(language.English).String(tag)
	}
	if name := display.English.Tags().Name(parsed); name != "" {
		return name
	}
	return tag
}

// LanguageInstruction tells the model which language to reply in. For the
// auto setting the language is detected from the customer's text.
func LanguageInstruction(setting, customerText string) string {
	setting = strings.TrimSpace(setting)
	if setting == "" || strings.EqualFold(setting, LanguageAuto) {
		detected := DetectLanguage(customerText)
		if detected.Code == LangEnglish {
			return "Reply in the same language the customer wrote in."
		}
		return fmt.Sprintf("Reply in the customer's language (%s).", detected.Name)
	}
	return fmt.Sprintf("Reply in %s.", LanguageName(setting))
}
