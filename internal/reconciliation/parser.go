package reconciliation

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/settlement-engine/pkg/money"
)

//go:embed patterns.yaml
var defaultPatterns []byte

// Notification is one parsed incoming bank transfer.
type Notification struct {
	Amount         int64
	Currency       string
	VariableSymbol string
	Date           time.Time
	Matcher        string
}

// MatcherSpec is one locale-specific matcher as written in the pattern file.
type MatcherSpec struct {
	Name            string `yaml:"name"`
	Amount          string `yaml:"amount"`
	Currency        string `yaml:"currency"`
	VariableSymbol  string `yaml:"variable_symbol"`
	Date            string `yaml:"date"`
	DateLayout      string `yaml:"date_layout"`
	DefaultCurrency string `yaml:"default_currency"`
}

type patternFile struct {
	Matchers []MatcherSpec `yaml:"matchers"`
}

type matcher struct {
	name            string
	amount          *regexp.Regexp
	currency        *regexp.Regexp
	symbol          *regexp.Regexp
	date            *regexp.Regexp
	dateLayout      string
	defaultCurrency string
}

// Parser extracts payments from notification bodies with a prioritized
// matcher list.
type Parser struct {
	matchers []matcher
	loc      *time.Location
}

// LoadParser reads matchers from path, or the built-in set when path is empty.
func LoadParser(path string, loc *time.Location) (*Parser, error) {
	raw := defaultPatterns
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read pattern file: %w", err)
		}
		raw = data
	}
	var file patternFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}
	return NewParser(file.Matchers, loc)
}

func NewParser(specs []MatcherSpec, loc *time.Location) (*Parser, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one matcher is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	p := &Parser{loc: loc}
	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("matcher-%d", i+1)
		}
		m := matcher{
			name:            name,
			dateLayout:      spec.DateLayout,
			defaultCurrency: strings.ToUpper(strings.TrimSpace(spec.DefaultCurrency)),
		}
		var err error
		if m.amount, err = compileRequired(name, "amount", spec.Amount); err != nil {
			return nil, err
		}
		if m.symbol, err = compileRequired(name, "variable_symbol", spec.VariableSymbol); err != nil {
			return nil, err
		}
		if m.currency, err = compileOptional(name, "currency", spec.Currency); err != nil {
			return nil, err
		}
		if m.date, err = compileOptional(name, "date", spec.Date); err != nil {
			return nil, err
		}
		p.matchers = append(p.matchers, m)
	}
	return p, nil
}

// Parse returns the result of the first matcher that finds both an amount and
// a variable symbol. ok is false when no matcher applies.
func (p *Parser) Parse(body string) (Notification, bool) {
	for _, m := range p.matchers {
		amountRaw := strings.TrimRight(submatch(m.amount, body), " .,\u00a0\u202f")
		symbol := submatch(m.symbol, body)
		if amountRaw == "" || symbol == "" {
			continue
		}
		amount, err := money.ParseMinor(amountRaw)
		if err != nil {
			continue
		}
		n := Notification{
			Amount:         amount,
			Currency:       m.defaultCurrency,
			VariableSymbol: strings.TrimLeft(symbol, "0"),
			Matcher:        m.name,
		}
		if n.VariableSymbol == "" {
			n.VariableSymbol = symbol
		}
		if cur := strings.ToUpper(submatch(m.currency, body)); cur != "" {
			n.Currency = cur
		}
		if rawDate := submatch(m.date, body); rawDate != "" && m.dateLayout != "" {
			if d, err := time.ParseInLocation(m.dateLayout, rawDate, p.loc); err == nil {
				n.Date = d
			}
		}
		return n, true
	}
	return Notification{}, false
}

func submatch(re *regexp.Regexp, body string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func compileRequired(matcher, field, expr string) (*regexp.Regexp, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("matcher %s: %s expression is required", matcher, field)
	}
	return compileOptional(matcher, field, expr)
}

func compileOptional(matcher, field, expr string) (*regexp.Regexp, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("matcher %s: compile %s: %w", matcher, field, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("matcher %s: %s needs a capture group", matcher, field)
	}
	return re, nil
}
