package workspace

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ocrdesk/ocrdesk/internal/models"
)

// Class names that make up the saved markup contract.
const (
	ClassEntry   = "generated-content"
	ClassTable   = "table-content"
	ClassText    = "text-content"
	ClassTitle   = "entry-title"
	ClassEditing = "editable-cell"

	importedTitle = "Imported"
	defaultTitle  = "Table"
)

func divContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
}

func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// appendText adds s to n, turning newlines into <br>.
func appendText(n *html.Node, s string) {
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			n.AppendChild(element(atom.Br))
		}
		if line != "" {
			n.AppendChild(&html.Node{Type: html.TextNode, Data: line})
		}
	}
}

func renderMarkup(entries []*Entry) string {
	var b strings.Builder
	for _, e := range entries {
		_ = html.Render(&b, entryNode(e))
	}
	return b.String()
}

func entryNode(e *Entry) *html.Node {
	root := element(atom.Div, "class", "table-container "+ClassEntry, "id", e.ID)

	header := element(atom.Div, "class", "entry-header")
	label := element(atom.Label, "class", ClassTitle)
	label.AppendChild(&html.Node{Type: html.TextNode, Data: e.Title})
	header.AppendChild(label)
	root.AppendChild(header)

	if e.Kind == models.SessionTypeText {
		body := element(atom.Div, "class", ClassText, "style", "white-space: pre-wrap;")
		if e.Editable {
			body.Attr = append(body.Attr, html.Attribute{Key: "contenteditable", Val: "true"})
		}
		if e.Text != "" {
			body.AppendChild(&html.Node{Type: html.TextNode, Data: e.Text})
		}
		root.AppendChild(body)
		return root
	}

	body := element(atom.Div, "class", "table-responsive "+ClassTable)
	switch {
	case e.Table != nil:
		body.AppendChild(tableNode(e.Table))
	case e.Raw != "":
		nodes, err := html.ParseFragment(strings.NewReader(e.Raw), divContext())
		if err != nil {
			body.AppendChild(&html.Node{Type: html.TextNode, Data: e.Raw})
			break
		}
		for _, n := range nodes {
			body.AppendChild(n)
		}
	}
	root.AppendChild(body)
	return root
}

func tableNode(t *Table) *html.Node {
	table := element(atom.Table, "class", "table table-bordered")
	if len(t.Head) > 0 {
		thead := element(atom.Thead)
		for _, r := range t.Head {
			thead.AppendChild(rowNode(r))
		}
		table.AppendChild(thead)
	}
	if t.HasBody || len(t.Body) > 0 {
		tbody := element(atom.Tbody)
		for _, r := range t.Body {
			tbody.AppendChild(rowNode(r))
		}
		table.AppendChild(tbody)
	}
	return table
}

func rowNode(r Row) *html.Node {
	tr := element(atom.Tr)
	for _, c := range r {
		a := atom.Td
		if c.Header {
			a = atom.Th
		}
		cell := element(a)
		if c.ColSpan > 1 {
			cell.Attr = append(cell.Attr, html.Attribute{Key: "colspan", Val: strconv.Itoa(c.ColSpan)})
		}
		if c.RowSpan > 1 {
			cell.Attr = append(cell.Attr, html.Attribute{Key: "rowspan", Val: strconv.Itoa(c.RowSpan)})
		}
		if c.Editable {
			cell.Attr = append(cell.Attr,
				html.Attribute{Key: "contenteditable", Val: "true"},
				html.Attribute{Key: "class", Val: ClassEditing})
		}
		appendText(cell, c.Text)
		tr.AppendChild(cell)
	}
	return tr
}

func renderTableString(t *Table) string {
	var b strings.Builder
	_ = html.Render(&b, tableNode(t))
	return b.String()
}

// parseTable returns the first table found in raw, or nil.
func parseTable(raw string) *Table {
	nodes, err := html.ParseFragment(strings.NewReader(raw), divContext())
	if err != nil {
		return nil
	}
	for _, n := range nodes {
		if t := findElement(n, atom.Table); t != nil {
			return tableFromNode(t)
		}
	}
	return nil
}

func tableFromNode(n *html.Node) *Table {
	t := &Table{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Thead:
			t.Head = append(t.Head, rowsOf(c)...)
		case atom.Tbody:
			t.HasBody = true
			t.Body = append(t.Body, rowsOf(c)...)
		case atom.Tfoot:
			t.Body = append(t.Body, rowsOf(c)...)
		case atom.Tr:
			t.Body = append(t.Body, rowOf(c))
		}
	}
	return t
}

func rowsOf(section *html.Node) []Row {
	var rows []Row
	for c := section.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Tr {
			rows = append(rows, rowOf(c))
		}
	}
	return rows
}

func rowOf(tr *html.Node) Row {
	var r Row
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		r = append(r, Cell{
			Text:    trimLayout(textOf(c)),
			Header:  c.DataAtom == atom.Th,
			ColSpan: intAttr(c, "colspan"),
			RowSpan: intAttr(c, "rowspan"),
		})
	}
	return r
}

// trimLayout drops the indentation a pretty-printed table puts around cell
// text. A leading or trailing whitespace run is only layout when it holds a
// line break; plain spaces are cell content.
func trimLayout(s string) string {
	rest := strings.TrimLeft(s, " \t\r\n")
	if strings.ContainsAny(s[:len(s)-len(rest)], "\r\n") {
		s = rest
	}
	rest = strings.TrimRight(s, " \t\r\n")
	if strings.ContainsAny(s[len(rest):], "\r\n") {
		s = rest
	}
	return s
}

func intAttr(n *html.Node, key string) int {
	v, err := strconv.Atoi(attr(n, key))
	if err != nil || v < 1 {
		return 0
	}
	return v
}

// parseMarkup rebuilds entries from saved markup. Any text-content block
// makes the whole session a text session. Top-level content that is not an
// entry block is kept as an extra entry so nothing is lost on the next save.
func parseMarkup(content string) ([]*Entry, models.SessionType, error) {
	nodes, err := html.ParseFragment(strings.NewReader(content), divContext())
	if err != nil {
		return nil, "", err
	}

	typ := models.SessionTypeTable
	for _, n := range nodes {
		if findClass(n, ClassText) != nil {
			typ = models.SessionTypeText
			break
		}
	}

	var entries []*Entry
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case hasClass(n, ClassEntry):
			entries = append(entries, entryFromNode(n, typ))
		case n.Type == html.ElementNode && findClass(n, ClassEntry) != nil:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		case n.Type == html.ElementNode || (n.Type == html.TextNode && strings.TrimSpace(n.Data) != ""):
			entries = append(entries, strayEntry(n, typ))
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return entries, typ, nil
}

func entryFromNode(n *html.Node, typ models.SessionType) *Entry {
	e := &Entry{ID: attr(n, "id"), Title: defaultTitle, Kind: typ}
	if e.ID == "" {
		e.ID = "tbl-" + uuid.NewString()[:13]
	}
	if label := findElement(n, atom.Label); label != nil {
		if title := strings.TrimSpace(textOf(label)); title != "" {
			e.Title = title
		}
	}

	if body := findClass(n, ClassText); body != nil {
		e.Kind = models.SessionTypeText
		e.Text = textOf(body)
		return e
	}

	e.Kind = models.SessionTypeTable
	if body := findClass(n, ClassTable); body != nil {
		if t := findElement(body, atom.Table); t != nil {
			e.Table = tableFromNode(t)
		} else {
			e.Raw = renderChildren(body)
		}
	}
	return e
}

func strayEntry(n *html.Node, typ models.SessionType) *Entry {
	e := &Entry{ID: "tbl-" + uuid.NewString()[:13], Title: importedTitle, Kind: typ}
	if typ == models.SessionTypeText {
		e.Text = textOf(n)
		return e
	}
	if t := findElement(n, atom.Table); t != nil {
		e.Table = tableFromNode(t)
		return e
	}
	var b strings.Builder
	_ = html.Render(&b, n)
	e.Raw = b.String()
	return e
}

func renderChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return strings.TrimSpace(b.String())
}

// textOf concatenates the text under n, with <br> read as a newline.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func findClass(n *html.Node, class string) *html.Node {
	if hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findClass(c, class); f != nil {
			return f
		}
	}
	return nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findElement(c, a); f != nil {
			return f
		}
	}
	return nil
}
