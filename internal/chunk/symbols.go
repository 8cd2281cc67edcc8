package chunk

import "strings"

// extractSymbol builds a Symbol for a declaration node, or nil when the
// node has no extractable name.
func extractSymbol(n *node, source []byte, kind SymbolType, language string) *Symbol {
	name := symbolName(n, source, language)
	if name == "" {
		return nil
	}

	return &Symbol{
		Name:       name,
		Type:       kind,
		StartLine:  int(n.startRow) + 1,
		EndLine:    int(n.endRow) + 1,
		Signature:  signatureLine(n.text(source), kind, language),
		DocComment: docComment(n, source, language),
	}
}

func symbolName(n *node, source []byte, language string) string {
	switch language {
	case "go":
		return goSymbolName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return jsSymbolName(n, source)
	default:
		if id := n.child("identifier"); id != nil {
			return id.text(source)
		}
	}
	return ""
}

func goSymbolName(n *node, source []byte) string {
	switch n.kind {
	case "function_declaration":
		if id := n.child("identifier"); id != nil {
			return id.text(source)
		}
	case "method_declaration":
		if id := n.child("field_identifier"); id != nil {
			return id.text(source)
		}
	case "type_declaration":
		if spec := n.child("type_spec"); spec != nil {
			if id := spec.child("type_identifier"); id != nil {
				return id.text(source)
			}
		}
	case "const_declaration":
		// const Name = v, or the first name of a grouped block
		if spec := n.child("const_spec"); spec != nil {
			if id := spec.child("identifier"); id != nil {
				return id.text(source)
			}
		}
	case "var_declaration":
		if spec := n.child("var_spec"); spec != nil {
			if id := spec.child("identifier"); id != nil {
				return id.text(source)
			}
		}
	}
	return ""
}

func jsSymbolName(n *node, source []byte) string {
	if n.kind == "lexical_declaration" || n.kind == "variable_declaration" {
		if decl := n.child("variable_declarator"); decl != nil {
			if id := decl.child("identifier"); id != nil {
				return id.text(source)
			}
		}
		return ""
	}
	for _, c := range n.children {
		if c.kind == "identifier" || c.kind == "type_identifier" {
			return c.text(source)
		}
	}
	return ""
}

// arrowFunctionSymbol recognizes `const f = () => {}` and
// `const f = function() {}` declarations, which should surface as
// functions rather than constants.
func arrowFunctionSymbol(n *node, source []byte) *Symbol {
	decl := n.child("variable_declarator")
	if decl == nil {
		return nil
	}

	var name string
	var isFunc bool
	for _, c := range decl.children {
		switch c.kind {
		case "identifier":
			name = c.text(source)
		case "arrow_function", "function", "function_expression":
			isFunc = true
		}
	}
	if name == "" || !isFunc {
		return nil
	}

	return &Symbol{
		Name:      name,
		Type:      SymbolTypeFunction,
		StartLine: int(n.startRow) + 1,
		EndLine:   int(n.endRow) + 1,
		Signature: signatureLine(n.text(source), SymbolTypeFunction, "javascript"),
	}
}

// signatureLine reduces a declaration to its first line, trimmed at the
// opening brace. Python keeps the colon-terminated line as-is.
func signatureLine(content string, kind SymbolType, language string) string {
	switch kind {
	case SymbolTypeFunction, SymbolTypeMethod, SymbolTypeClass, SymbolTypeInterface, SymbolTypeType:
	default:
		return ""
	}

	firstLine, _, _ := strings.Cut(content, "\n")
	firstLine = strings.TrimSpace(firstLine)
	if language == "python" {
		return firstLine
	}
	if idx := strings.Index(firstLine, "{"); idx != -1 {
		return strings.TrimSpace(firstLine[:idx])
	}
	return firstLine
}

// docComment collects the contiguous run of line comments immediately
// above a declaration. Python docstrings live inside the body and are
// already part of the chunk, so only # comment lines are considered.
func docComment(n *node, source []byte, language string) string {
	var prefix string
	switch language {
	case "go", "typescript", "tsx", "javascript", "jsx":
		prefix = "//"
	case "python":
		prefix = "#"
	default:
		return ""
	}

	lineStart := int(n.startByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}

	var lines []string
	pos := lineStart - 1 // the newline ending the previous line
	for pos > 0 {
		prevEnd := pos
		pos--
		for pos > 0 && source[pos] != '\n' {
			pos--
		}
		prevStart := pos
		if pos > 0 {
			prevStart++
		}

		line := strings.TrimSpace(string(source[prevStart:prevEnd]))
		if strings.HasPrefix(line, prefix) {
			lines = append([]string{strings.TrimPrefix(line, prefix)}, lines...)
			continue
		}
		break
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
