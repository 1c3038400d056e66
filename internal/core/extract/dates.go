package extract

import (
	"regexp"
	"strings"
	"time"
)

type dateRole int

const (
	roleReporting dateRole = iota
	roleDropping
	roleGeneral
)

const dateToken = `(\d{4}-\d{1,2}-\d{1,2}` +
	`|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}` +
	`|\d{1,2}[ \t]*[A-Za-z]{3,9}\.?[ \t]*,?[ \t]*\d{4}` +
	`|[A-Za-z]{3,9}\.?[ \t]+\d{1,2}(?:st|nd|rd|th)?,?[ \t]+\d{4})`

type datePattern struct {
	re   *regexp.Regexp
	role dateRole
	// firstNamedDate resolves the role to the first month-name date in the
	// document instead of the captured group.
	firstNamedDate bool
}

func labelFirst(label string, role dateRole) datePattern {
	return datePattern{re: regexp.MustCompile(`(?i)` + label + `[:\s\-]*` + dateToken), role: role}
}

func dateFirst(label string, role dateRole) datePattern {
	return datePattern{re: regexp.MustCompile(`(?i)` + dateToken + `[ \t]*\n\s*` + label), role: role}
}

// Label-first patterns precede date-first ones: a date printed above a label
// usually belongs to the previous label.
var datePatterns = []datePattern{
	labelFirst(`reporting\s*date`, roleReporting),
	labelFirst(`journey\s*date`, roleReporting),
	labelFirst(`date\s*of\s*journey`, roleReporting),
	labelFirst(`travel\s*date`, roleReporting),
	labelFirst(`departure\s*date`, roleReporting),
	labelFirst(`boarding\s*date`, roleReporting),
	labelFirst(`report\s*date`, roleReporting),

	labelFirst(`dropping\s*point\s*date`, roleDropping),
	labelFirst(`dropping\s*date`, roleDropping),
	labelFirst(`drop\s*date`, roleDropping),
	labelFirst(`arrival\s*date`, roleDropping),
	labelFirst(`return\s*date`, roleDropping),
	labelFirst(`end\s*date`, roleDropping),

	dateFirst(`dropping\s*point\s*date`, roleDropping),
	dateFirst(`departure\s*time`, roleReporting),
	{re: regexp.MustCompile(`(?i)reporting\s*date\s*\n\s*\d{1,2}:\d{2}`), role: roleReporting, firstNamedDate: true},

	labelFirst(`invoice\s*date`, roleGeneral),
	labelFirst(`bill\s*date`, roleGeneral),
	labelFirst(`\bdate`, roleGeneral),
	{re: regexp.MustCompile(dateToken), role: roleGeneral},
}

var namedDate = regexp.MustCompile(`\d{1,2}[ \t]*[A-Za-z]{3,9}\.?[ \t]*,?[ \t]*\d{4}`)

// Tried in order, first successful parse wins.
var dateLayouts = []string{
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"January 2 2006",
	"2/1/2006",
	"2/1/06",
	"1/2/2006",
	"1/2/06",
	"2006-1-2",
}

type extractedDates struct {
	reporting *time.Time
	dropping  *time.Time
	general   *time.Time
}

func findDates(text string) extractedDates {
	var found extractedDates
	if strings.TrimSpace(text) == "" {
		return found
	}

	for _, p := range datePatterns {
		slot := found.slot(p.role)
		if *slot != nil {
			continue
		}
		if p.firstNamedDate {
			if !p.re.MatchString(text) {
				continue
			}
			for _, token := range namedDate.FindAllString(text, -1) {
				if t, ok := ParseDate(token); ok {
					*slot = &t
					break
				}
			}
			continue
		}
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if t, ok := ParseDate(m[1]); ok {
				*slot = &t
				break
			}
		}
	}
	return found
}

func (d *extractedDates) slot(role dateRole) **time.Time {
	switch role {
	case roleReporting:
		return &d.reporting
	case roleDropping:
		return &d.dropping
	default:
		return &d.general
	}
}

var (
	ordinalSuffix = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
	digitLetter   = regexp.MustCompile(`(\d)([A-Za-z])`)
	letterDigit   = regexp.MustCompile(`([A-Za-z])(\d)`)
)

// ParseDate parses a date token in any supported textual or numeric format.
func ParseDate(raw string) (time.Time, bool) {
	s := normalizeDateToken(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1990 || t.Year() > 2100 {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func normalizeDateToken(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.IndexFunc(s, isASCIILetter) < 0 {
		if len(s) >= 5 && s[4] == '-' {
			return s
		}
		return strings.NewReplacer(".", "/", "-", "/").Replace(s)
	}

	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = strings.NewReplacer(",", " ", ".", " ").Replace(s)
	s = digitLetter.ReplaceAllString(s, "$1 $2")
	s = letterDigit.ReplaceAllString(s, "$1 $2")
	s = strings.Join(strings.Fields(s), " ")
	return strings.Replace(s, "Sept ", "Sep ", 1)
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
