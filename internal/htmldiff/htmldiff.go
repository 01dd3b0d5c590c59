// Package htmldiff renders a side-by-side HTML comparison of two line
// sequences.
package htmldiff

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	DefaultTabSize    = 8
	DefaultWrapColumn = 0 // no wrapping
	DefaultTitle      = "Diff"
)

// Segment classes. They double as CSS class names in the rendered page.
const (
	ClassAdd    = "diff_add"
	ClassChange = "diff_chg"
	ClassSub    = "diff_sub"
)

// Renderer produces a full HTML page comparing two line sequences. The zero
// value renders with 8-column tabs and no wrapping.
type Renderer struct {
	TabSize    int    // columns per tab stop; <= 0 means DefaultTabSize
	WrapColumn int    // wrap lines longer than this many runes; <= 0 disables
	Title      string // page title; empty means DefaultTitle
	ID         string // written as <meta name="report-id"> when set
}

// Segment is a run of text sharing one highlight class. Class is empty for
// unchanged text.
type Segment struct {
	Text  string
	Class string
}

// Cell is one side of a table row.
type Cell struct {
	Num      string // line number, ">" on a wrapped continuation, "" when absent
	Segments []Segment
}

// Row is one table row of the rendered diff.
type Row struct {
	Left, Right Cell
	Changed     bool
}

type page struct {
	ID       string
	Title    string
	FromDesc string
	ToDesc   string
	Rows     []Row
}

var pageTmpl = template.Must(template.New("diff").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
{{- with .ID}}
<meta name="report-id" content="{{.}}">
{{- end}}
<title>{{.Title}}</title>
<style>
table.diff {font-family:Courier; border:medium;}
table.diff td {white-space:pre}
.diff_header {background-color:#e0e0e0}
td.diff_header {text-align:right}
.diff_next {background-color:#c0c0c0}
.diff_add {background-color:#aaffaa}
.diff_chg {background-color:#ffff77}
.diff_sub {background-color:#ffaaaa}
</style>
</head>
<body>
<table class="diff" summary="{{.Title}}">
<colgroup></colgroup> <colgroup></colgroup> <colgroup></colgroup>
<colgroup></colgroup> <colgroup></colgroup> <colgroup></colgroup>
<thead><tr><th class="diff_next"><br /></th><th colspan="2" class="diff_header">{{.FromDesc}}</th><th class="diff_next"><br /></th><th colspan="2" class="diff_header">{{.ToDesc}}</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr><td class="diff_next">{{if .Changed}}*{{end}}</td><td class="diff_header">{{.Left.Num}}</td><td nowrap="nowrap">{{template "segments" .Left.Segments}}</td><td class="diff_next">{{if .Changed}}*{{end}}</td><td class="diff_header">{{.Right.Num}}</td><td nowrap="nowrap">{{template "segments" .Right.Segments}}</td></tr>
{{- end}}
</tbody>
</table>
<table class="diff" summary="Legends">
<tr><th colspan="2">Legends</th></tr>
<tr><td><table border="" summary="Colors">
<tr><th>Colors</th></tr>
<tr><td class="diff_add">&nbsp;Added&nbsp;</td></tr>
<tr><td class="diff_chg">Changed</td></tr>
<tr><td class="diff_sub">Deleted</td></tr>
</table></td></tr>
</table>
</body>
</html>
{{define "segments"}}{{range .}}{{if .Class}}<span class="{{.Class}}">{{.Text}}</span>{{else}}{{.Text}}{{end}}{{end}}{{end}}`))

// Render writes an HTML page comparing a and b, with fromDesc and toDesc as
// the column headers.
func (r Renderer) Render(w io.Writer, a, b []string, fromDesc, toDesc string) error {
	p := page{
		ID:       r.ID,
		Title:    r.Title,
		FromDesc: fromDesc,
		ToDesc:   toDesc,
		Rows:     r.Rows(a, b),
	}
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if err := pageTmpl.Execute(w, p); err != nil {
		return fmt.Errorf("render diff page: %w", err)
	}
	return nil
}

// Rows aligns a and b and returns the table rows of the comparison, after
// tab expansion and wrapping.
func (r Renderer) Rows(a, b []string) []Row {
	tab := r.TabSize
	if tab <= 0 {
		tab = DefaultTabSize
	}
	a = expandAll(a, tab)
	b = expandAll(b, tab)

	var rows []Row
	emit := func(ln, rn int, left, right []Segment, changed bool) {
		rows = append(rows, r.wrap(ln, rn, left, right, changed)...)
	}

	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for i, j := op.I1, op.J1; i < op.I2; i, j = i+1, j+1 {
				emit(i+1, j+1, plain(a[i]), plain(b[j]), false)
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				emit(i+1, 0, whole(a[i], ClassSub), nil, true)
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				emit(0, j+1, nil, whole(b[j], ClassAdd), true)
			}
		case 'r':
			n := max(op.I2-op.I1, op.J2-op.J1)
			for k := range n {
				i, j := op.I1+k, op.J1+k
				switch {
				case i < op.I2 && j < op.J2:
					left, right := intraline(a[i], b[j])
					emit(i+1, j+1, left, right, true)
				case i < op.I2:
					emit(i+1, 0, whole(a[i], ClassSub), nil, true)
				default:
					emit(0, j+1, nil, whole(b[j], ClassAdd), true)
				}
			}
		}
	}
	return rows
}

func plain(s string) []Segment {
	if s == "" {
		return nil
	}
	return []Segment{{Text: s}}
}

func whole(s, class string) []Segment {
	if s == "" {
		return nil
	}
	return []Segment{{Text: s, Class: class}}
}

// intraline marks the characters that differ between two paired lines.
func intraline(a, b string) (left, right []Segment) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(a, b, false))
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			left = append(left, Segment{Text: d.Text})
			right = append(right, Segment{Text: d.Text})
		case diffmatchpatch.DiffDelete:
			left = append(left, Segment{Text: d.Text, Class: ClassChange})
		case diffmatchpatch.DiffInsert:
			right = append(right, Segment{Text: d.Text, Class: ClassChange})
		}
	}
	return left, right
}

// wrap splits a logical row into as many table rows as the longer side
// needs. Continuation rows carry ">" instead of a line number.
func (r Renderer) wrap(ln, rn int, left, right []Segment, changed bool) []Row {
	ls := split(left, r.WrapColumn)
	rs := split(right, r.WrapColumn)
	n := max(len(ls), len(rs), 1)
	rows := make([]Row, n)
	for k := range rows {
		rows[k].Changed = changed
		rows[k].Left = cell(ln, ls, k)
		rows[k].Right = cell(rn, rs, k)
	}
	return rows
}

func cell(num int, chunks [][]Segment, k int) Cell {
	var c Cell
	switch {
	case num == 0:
	case k == 0:
		c.Num = strconv.Itoa(num)
	case k < len(chunks):
		c.Num = ">"
	}
	if k < len(chunks) {
		c.Segments = chunks[k]
	}
	return c
}

// split cuts segs into chunks of at most width runes, keeping classes.
func split(segs []Segment, width int) [][]Segment {
	if len(segs) == 0 {
		return nil
	}
	if width <= 0 {
		return [][]Segment{segs}
	}
	var (
		chunks [][]Segment
		cur    []Segment
		used   int
	)
	for _, s := range segs {
		rs := []rune(s.Text)
		for len(rs) > 0 {
			if used == width {
				chunks = append(chunks, cur)
				cur, used = nil, 0
			}
			take := min(width-used, len(rs))
			cur = append(cur, Segment{Text: string(rs[:take]), Class: s.Class})
			used += take
			rs = rs[take:]
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func expandAll(lines []string, tab int) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = ExpandTabs(l, tab)
	}
	return out
}

// ExpandTabs replaces each tab in s with spaces up to the next multiple of
// tab columns.
func ExpandTabs(s string, tab int) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var sb strings.Builder
	col := 0
	for _, c := range s {
		if c == '\t' {
			n := tab - col%tab
			sb.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		sb.WriteRune(c)
		col++
	}
	return sb.String()
}

// SplitLines splits s on newlines without keeping the terminators. A trailing
// newline does not produce an extra empty line.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
