package epub

import (
	"strings"

	"github.com/beevik/etree"

	"bookmill/book"
)

// chapterToXHTML converts one chapter's print markup into a standalone XHTML
// document. Sectioning commands become headings, list and quote environments
// keep their structure, tables and figures collapse to placeholders, and
// everything else is reduced to styled text.
func chapterToXHTML(frag *book.Fragment) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")

	head := html.CreateElement("head")

	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")

	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("href", "stylesheet.css")

	titleElem := head.CreateElement("title")
	titleElem.SetText(frag.Title)

	body := html.CreateElement("body")

	h1 := body.CreateElement("h1")
	h1.CreateAttr("class", "title")
	h1.SetText(frag.Title)

	writeBlocks(body, strings.Split(frag.Content, "\n"))
	return doc
}

// environments whose body is not worth reflowing; each becomes a placeholder
// paragraph instead.
var opaqueEnvs = map[string]string{
	"table":      "[table omitted]",
	"tabular":    "[table omitted]",
	"longtable":  "[table omitted]",
	"figure":     "[figure omitted]",
	"wrapfigure": "[figure omitted]",
}

var boxEnvs = map[string]bool{
	"callout":    true,
	"tipbox":     true,
	"warningbox": true,
	"examplebox": true,
}

func writeBlocks(parent *etree.Element, lines []string) {
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		p := parent.CreateElement("p")
		appendInline(p, strings.Join(para, " "))
		para = nil
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "%"):
			// comment
		case strings.HasPrefix(line, `\chapter{`):
			// chapter heading is rendered from fragment metadata
			flush()
		case strings.HasPrefix(line, `\section{`):
			flush()
			h := parent.CreateElement("h2")
			appendInline(h, braceArg(line, `\section`))
		case strings.HasPrefix(line, `\subsection{`):
			flush()
			h := parent.CreateElement("h3")
			appendInline(h, braceArg(line, `\subsection`))
		case strings.HasPrefix(line, `\subsubsection{`):
			flush()
			h := parent.CreateElement("h4")
			appendInline(h, braceArg(line, `\subsubsection`))
		case strings.HasPrefix(line, `\begin{`):
			flush()
			env := envName(line)
			body, next := envBody(lines, i, env)
			writeEnvironment(parent, env, body)
			i = next
		case strings.HasPrefix(line, `\end{`):
			// orphan closer, nothing to do
			flush()
		default:
			para = append(para, line)
		}
	}
	flush()
}

func writeEnvironment(parent *etree.Element, env string, body []string) {
	switch {
	case env == "itemize" || env == "description":
		writeList(parent.CreateElement("ul"), body)
	case env == "enumerate":
		writeList(parent.CreateElement("ol"), body)
	case env == "quote" || env == "quotation" || env == "verse":
		writeBlocks(parent.CreateElement("blockquote"), body)
	case boxEnvs[env]:
		div := parent.CreateElement("div")
		div.CreateAttr("class", "box")
		writeBlocks(div, body)
	case opaqueEnvs[env] != "":
		p := parent.CreateElement("p")
		p.CreateAttr("class", "placeholder")
		p.SetText(opaqueEnvs[env])
	default:
		// center, minipage and anything unknown are transparent wrappers
		writeBlocks(parent, body)
	}
}

func writeList(list *etree.Element, body []string) {
	var item []string
	flush := func() {
		if len(item) == 0 {
			return
		}
		li := list.CreateElement("li")
		appendInline(li, strings.Join(item, " "))
		item = nil
	}
	for _, line := range body {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, `\item`); ok {
			flush()
			rest = strings.TrimSpace(rest)
			// description items carry a [term] label
			if after, found := strings.CutPrefix(rest, "["); found {
				if end := strings.Index(after, "]"); end >= 0 {
					rest = strings.TrimSpace(after[:end]) + ": " + strings.TrimSpace(after[end+1:])
				}
			}
			if rest != "" {
				item = append(item, rest)
			}
			continue
		}
		if line != "" && !strings.HasPrefix(line, "%") {
			item = append(item, line)
		}
	}
	flush()
}

// envName extracts NAME from a `\begin{NAME}` line.
func envName(line string) string {
	name := strings.TrimPrefix(line, `\begin{`)
	if end := strings.Index(name, "}"); end >= 0 {
		return name[:end]
	}
	return name
}

// envBody returns the lines between \begin at start and the matching \end,
// plus the index of the closing line. Nested same-name environments are
// honored; a missing closer consumes the rest of the input.
func envBody(lines []string, start int, env string) (body []string, end int) {
	open := `\begin{` + env + `}`
	closer := `\end{` + env + `}`
	depth := 1
	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, open) {
			depth++
		} else if strings.HasPrefix(line, closer) {
			depth--
			if depth == 0 {
				return body, i
			}
		}
		body = append(body, lines[i])
	}
	return body, len(lines) - 1
}

func braceArg(line, cmd string) string {
	rest := strings.TrimPrefix(line, cmd)
	rest = strings.TrimPrefix(rest, "{")
	if end := strings.LastIndex(rest, "}"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// appendInline writes s into parent, mapping the common text styling commands
// to XHTML tags and dropping everything else while keeping the visible text.
func appendInline(parent *etree.Element, s string) {
	var plain strings.Builder
	flush := func() {
		if plain.Len() > 0 {
			appendText(parent, plain.String())
			plain.Reset()
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 >= len(s) {
				i++
				continue
			}
			next := s[i+1]
			if !isLetter(next) {
				// escaped literal
				plain.WriteByte(next)
				i += 2
				continue
			}
			name, after := commandName(s, i+1)
			i = after
			// skip an optional [..] argument
			if i < len(s) && s[i] == '[' {
				if end := strings.IndexByte(s[i:], ']'); end >= 0 {
					i += end + 1
				}
			}
			if i < len(s) && s[i] == '{' {
				arg, after := braceSpan(s, i)
				i = after
				switch name {
				case "textbf":
					flush()
					appendInline(parent.CreateElement("strong"), arg)
				case "textit", "emph":
					flush()
					appendInline(parent.CreateElement("em"), arg)
				case "texttt":
					flush()
					appendInline(parent.CreateElement("code"), arg)
				default:
					// keep the visible text of unknown commands
					flush()
					appendInline(parent, arg)
				}
				continue
			}
			if name == "ldots" || name == "dots" {
				plain.WriteString("...")
			}
		case c == '{' || c == '}':
			i++
		case c == '~':
			plain.WriteByte(' ')
			i++
		case c == '%':
			// trailing comment
			flush()
			return
		default:
			plain.WriteByte(c)
			i++
		}
	}
	flush()
}

// appendText adds character data to parent after any existing children.
func appendText(parent *etree.Element, s string) {
	children := parent.ChildElements()
	if len(children) == 0 {
		parent.SetText(parent.Text() + s)
		return
	}
	last := children[len(children)-1]
	last.SetTail(last.Tail() + s)
}

func commandName(s string, start int) (name string, after int) {
	i := start
	for i < len(s) && isLetter(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '*' {
		i++
	}
	return s[start:i], i
}

// braceSpan returns the content of the balanced brace group starting at
// s[open] == '{' and the index after its closer.
func braceSpan(s string, open int) (arg string, after int) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[open+1 : i], i + 1
			}
		case '\\':
			i++
		}
	}
	return s[open+1:], len(s)
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
