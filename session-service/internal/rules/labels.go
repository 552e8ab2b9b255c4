package rules

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// DefaultLanguage - язык меток исходов по умолчанию.
var DefaultLanguage = language.BrazilianPortuguese

var supportedLanguages = []language.Tag{language.BrazilianPortuguese, language.English}

var outcomeLabels = map[language.Tag]map[Outcome]string{
	language.BrazilianPortuguese: {
		OutcomeCriticalFailure: "FALHA CRITICA",
		OutcomeCriticalSuccess: "SUCESSO CRITICO",
		OutcomeMajorFailure:    "FALHA GRAVE",
		OutcomeMinorFailure:    "FALHA LEVE",
		OutcomeCostlySuccess:   "SUCESSO COM CUSTO",
		OutcomeFullSuccess:     "SUCESSO TOTAL",
		OutcomeImpossible:      "IMPOSSIVEL",
	},
	language.English: {
		OutcomeCriticalFailure: "CRITICAL FAILURE",
		OutcomeCriticalSuccess: "CRITICAL SUCCESS",
		OutcomeMajorFailure:    "MAJOR FAILURE",
		OutcomeMinorFailure:    "MINOR FAILURE",
		OutcomeCostlySuccess:   "SUCCESS AT A COST",
		OutcomeFullSuccess:     "FULL SUCCESS",
		OutcomeImpossible:      "IMPOSSIBLE",
	},
}

var (
	labelCatalog = mustBuildCatalog()
	matcher      = language.NewMatcher(supportedLanguages)
)

func mustBuildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(DefaultLanguage))
	for tag, labels := range outcomeLabels {
		for outcome, label := range labels {
			if err := b.SetString(tag, string(outcome), label); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Label возвращает локализованную метку исхода для ближайшего поддерживаемого языка.
func Label(outcome Outcome, tag language.Tag) string {
	_, idx, _ := matcher.Match(tag)
	p := message.NewPrinter(supportedLanguages[idx], message.Catalog(labelCatalog))
	return p.Sprintf(string(outcome))
}

// DefaultLabel - метка на языке по умолчанию.
func DefaultLabel(outcome Outcome) string {
	return Label(outcome, DefaultLanguage)
}

// ParseLanguage разбирает заголовок Accept-Language; при ошибке - язык по умолчанию.
func ParseLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, idx, _ := matcher.Match(tags...)
	return supportedLanguages[idx]
}
