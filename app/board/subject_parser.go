package board

import (
	"fmt"
	"strconv"
	"strings"
)

// SubjectParser turns a subject.txt body into the ordered thread index.
//
// Each line has the shape
//
//	1685552696.dat,スレッドタイトル (123)
//
// with ".cgi" accepted in place of ".dat" for older gateways. Malformed
// lines are skipped; a non-empty body that yields no subjects at all is
// reported as an error so the caller can treat the refresh as failed.
type SubjectParser struct{}

func NewSubjectParser() *SubjectParser {
	return &SubjectParser{}
}

func (p *SubjectParser) Run(body string) ([]Subject, error) {
	lines := strings.Split(body, "\n")

	subjects := make([]Subject, 0, len(lines))
	nonEmpty := 0
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		nonEmpty++

		subject, ok := p.parseLine(line)
		if !ok {
			continue
		}
		subjects = append(subjects, subject)
	}

	if nonEmpty > 0 && len(subjects) == 0 {
		return nil, fmt.Errorf("no parsable subject lines in %d-line body", nonEmpty)
	}

	return subjects, nil
}

func (p *SubjectParser) parseLine(line string) (Subject, bool) {
	sep := strings.Index(line, ",")
	if sep <= 0 {
		return Subject{}, false
	}

	key := line[:sep]
	rest := line[sep+1:]

	key = strings.TrimSuffix(key, ".dat")
	key = strings.TrimSuffix(key, ".cgi")
	if key == "" {
		return Subject{}, false
	}

	title, count, ok := p.splitTitleCount(rest)
	if !ok {
		return Subject{}, false
	}

	return Subject{Key: key, Title: title, Count: count}, true
}

// splitTitleCount peels the trailing " (count)" off a subject title. The
// title itself may contain parentheses, so only the final group counts.
func (p *SubjectParser) splitTitleCount(s string) (string, int, bool) {
	s = strings.TrimRight(s, " ")
	if !strings.HasSuffix(s, ")") {
		return "", 0, false
	}

	open := strings.LastIndex(s, "(")
	if open < 0 {
		return "", 0, false
	}

	count, err := strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil || count < 0 {
		return "", 0, false
	}

	title := strings.TrimRight(s[:open], " ")
	return title, count, true
}
