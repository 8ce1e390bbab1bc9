// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the query compilation and safe-execution
// pipeline: decomposition, routing, planning, SQL building, validated
// execution and the human-in-the-loop gate.
package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianFinance/pkg/validation"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

// Intent labels understood by the router. Unknown labels route to the
// default template.
const (
	IntentOverview    = "overview"
	IntentRevenue     = "revenue"
	IntentNetIncome   = "net_income"
	IntentMargins     = "margins"
	IntentRDIntensity = "rd_intensity"
	IntentCompare     = "compare_metrics"
	IntentStockPrice  = "stock_price"
	IntentTTM         = "ttm"
	IntentMacro       = "macro"
)

// Period surface forms. Ordinal forms must be tried before the bare
// "Q<digit>" form so a naked digit inside an ordinal token is never
// misread as a quarter number.
var (
	ordinalQuarterPattern = regexp.MustCompile(`(?i)\b(1st|2nd|3rd|4th|first|second|third|fourth)\s*(?:q\b|quarter\b)`)
	qDigitPattern         = regexp.MustCompile(`(?i)\bq\s*([1-4])\b`)
	yearPattern           = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	comparePattern        = regexp.MustCompile(`(?i)\b(?:compare|vs\.?|versus)\b`)
	wordPattern           = regexp.MustCompile(`[A-Za-z&][A-Za-z&.\-']*`)
)

var ordinalQuarters = map[string]int{
	"1st": 1, "first": 1,
	"2nd": 2, "second": 2,
	"3rd": 3, "third": 3,
	"4th": 4, "fourth": 4,
}

// intentRule pairs an intent with the keywords that trigger it. Rules
// are checked in order; the first hit decides the intent, every hit
// contributes its measure.
type intentRule struct {
	intent   string
	measure  string
	keywords []string
}

var intentRules = []intentRule{
	{IntentRDIntensity, "rd_intensity", []string{"r&d intensity", "rd intensity", "research and development", "r&d"}},
	{IntentMargins, "margins", []string{"margin"}},
	{IntentTTM, "ttm", []string{"ttm", "trailing twelve", "trailing-twelve"}},
	{IntentNetIncome, "net_income", []string{"net income", "profit", "earnings", "eps"}},
	{IntentRevenue, "revenue", []string{"revenue", "sales", "top line"}},
	{IntentStockPrice, "stock_price", []string{"stock price", "share price", "closing price", "price"}},
	{IntentMacro, "macro", []string{"cpi", "gdp", "inflation", "interest rate"}},
}

// stopwords are tokens that never start an entity mention, even when
// capitalized at the head of a question.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"a an the and or of for in on by with from to at as is are was were be been " +
			"show me tell give find get what whats what's how much many did do does please " +
			"compare comparison vs versus between against their its his her " +
			"latest last recent current this that those these " +
			"q quarter quarters fiscal year years annual annually quarterly " +
			"first second third fourth 1st 2nd 3rd 4th " +
			"ttm trailing twelve month months " +
			"revenue revenues sales income profit profits earnings eps " +
			"margin margins gross net operating rd r&d research development intensity " +
			"price prices stock stocks share shares close closing volume ratio " +
			"cpi gdp inflation interest rate rates top line") {
		stopwords[w] = struct{}{}
	}
}

// Decomposer splits one question into one or more independent tasks.
// Stateless and safe for concurrent use.
type Decomposer struct{}

// NewDecomposer builds a Decomposer.
func NewDecomposer() *Decomposer {
	return &Decomposer{}
}

// Decompose extracts tasks from a question. It fails soft: an
// unparseable period defaults to latest, and an unparseable entity list
// yields a task with no entities, which proceeds to the default template
// with no ticker filter and surfaces as no data downstream.
func (d *Decomposer) Decompose(question string) []datatypes.Task {
	segments := splitCompound(question)
	tasks := make([]datatypes.Task, 0, len(segments))
	for _, segment := range segments {
		tasks = append(tasks, d.decomposeOne(segment))
	}
	return tasks
}

func (d *Decomposer) decomposeOne(segment string) datatypes.Task {
	period := extractPeriod(segment)
	entities := extractEntities(segment)
	intent, measures := classifyIntent(segment, len(entities))
	return datatypes.Task{
		Intent:   intent,
		Entities: entities,
		Period:   period,
		Measures: measures,
	}
}

// splitCompound splits a question into independently scoped
// sub-questions. Entities connected by compare/vs/and stay in one task;
// the question splits only when each side carries its own entity and its
// own metric keyword (distinct metrics per company).
func splitCompound(question string) []string {
	var segments []string
	for _, part := range strings.Split(question, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segments = append(segments, splitOnAnd(part)...)
	}
	if len(segments) == 0 {
		segments = []string{question}
	}
	return segments
}

func splitOnAnd(segment string) []string {
	idx := indexOfWord(segment, "and")
	if idx < 0 {
		return []string{segment}
	}
	left := strings.TrimSpace(segment[:idx])
	right := strings.TrimSpace(segment[idx+len("and"):])
	if standsAlone(left) && standsAlone(right) {
		return append(splitOnAnd(left), splitOnAnd(right)...)
	}
	return []string{segment}
}

func indexOfWord(s, word string) int {
	lower := strings.ToLower(s)
	start := 0
	for {
		idx := strings.Index(lower[start:], word)
		if idx < 0 {
			return -1
		}
		idx += start
		before := idx == 0 || !isWordByte(lower[idx-1])
		after := idx+len(word) >= len(lower) || !isWordByte(lower[idx+len(word)])
		if before && after {
			return idx
		}
		start = idx + len(word)
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b == '&' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// standsAlone reports whether a fragment is an independently answerable
// sub-question: it names its own entity and its own metric.
func standsAlone(fragment string) bool {
	if len(extractEntities(fragment)) == 0 {
		return false
	}
	lower := strings.ToLower(fragment)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// extractPeriod normalizes every supported fiscal-period surface form to
// the same {fy, fq}. "Q2 2023", "Q 2 2023", "2nd Q 2023", "2nd quarter
// 2023" and "second quarter 2023" are equivalent; a bare fiscal year
// yields an annual period; anything unparseable defaults to latest.
func extractPeriod(text string) datatypes.Period {
	var fq *int
	if m := ordinalQuarterPattern.FindStringSubmatch(text); m != nil {
		if q, ok := ordinalQuarters[strings.ToLower(m[1])]; ok {
			fq = &q
		}
	} else if m := qDigitPattern.FindStringSubmatch(text); m != nil {
		q := int(m[1][0] - '0')
		fq = &q
	}

	if m := yearPattern.FindString(text); m != "" {
		fy := int(m[0]-'0')*1000 + int(m[1]-'0')*100 + int(m[2]-'0')*10 + int(m[3]-'0')
		return datatypes.Period{FY: &fy, FQ: fq}
	}

	// A quarter with no year is not a resolvable period; fall back to
	// latest rather than guessing a year.
	return datatypes.Period{Latest: true}
}

// extractEntities pulls company/ticker mentions in first-appearance
// order. Ticker-shaped tokens stand alone; consecutive name-cased
// tokens merge into one mention ("Morgan Stanley").
func extractEntities(text string) []string {
	var (
		entities []string
		current  []string
		seen     = map[string]struct{}{}
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		mention := strings.Join(current, " ")
		current = nil
		key := strings.ToLower(mention)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			entities = append(entities, mention)
		}
	}

	for _, token := range wordPattern.FindAllString(text, -1) {
		token = strings.TrimSuffix(token, "'s")
		token = strings.TrimSuffix(token, "'")
		if token == "" {
			continue
		}
		if _, stop := stopwords[strings.ToLower(token)]; stop {
			flush()
			continue
		}
		if validation.TickerShaped(token) {
			flush()
			current = []string{token}
			flush()
			continue
		}
		first := []rune(token)[0]
		if unicode.IsUpper(first) {
			current = append(current, token)
			continue
		}
		flush()
	}
	flush()

	return entities
}

// classifyIntent picks the task intent and measure list. Two or more
// entities, or an explicit compare keyword alongside multiple entities,
// mean a comparison task regardless of which metric was named.
func classifyIntent(text string, entityCount int) (string, []string) {
	lower := strings.ToLower(text)

	intent := ""
	var measures []string
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				if intent == "" {
					intent = rule.intent
				}
				measures = append(measures, rule.measure)
				break
			}
		}
	}

	if entityCount >= 2 || (entityCount > 0 && comparePattern.MatchString(text)) {
		return IntentCompare, measures
	}
	if intent == "" {
		return IntentOverview, measures
	}
	return intent, measures
}
