package board

import (
	"strings"
)

// DatParser turns a thread's DAT body into the ordered post stream.
//
// Each line carries five "<>"-delimited fields:
//
//	name<>mail<>2023/05/12(金) 12:34:56.78 ID:AbCdEf12<>body<>title
//
// The third field mixes the post date with the poster ID; the date part is
// kept verbatim as DateString for the momentum calculator to interpret.
// Lines with fewer than four fields are skipped.
type DatParser struct{}

func NewDatParser() *DatParser {
	return &DatParser{}
}

func (p *DatParser) Run(body string) []Post {
	lines := strings.Split(body, "\n")

	posts := make([]Post, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		fields := strings.Split(line, "<>")
		if len(fields) < 4 {
			continue
		}

		dateString, id := p.splitDateID(fields[2])

		post := Post{
			Name:       unescapeDat(fields[0]),
			Mail:       fields[1],
			DateString: dateString,
			ID:         id,
			Body:       unescapeDat(fields[3]),
			Ordinal:    len(posts) + 1,
		}
		posts = append(posts, post)
	}

	return posts
}

func (p *DatParser) splitDateID(field string) (string, string) {
	if idx := strings.Index(field, " ID:"); idx >= 0 {
		return field[:idx], field[idx+4:]
	}
	return field, ""
}

var datUnescaper = strings.NewReplacer(
	"<br>", "\n",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&amp;", "&",
)

func unescapeDat(s string) string {
	return datUnescaper.Replace(s)
}
