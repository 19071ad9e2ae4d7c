package classify

import "regexp"

// Signature describes how to recognise one language
type Signature struct {
	Language   string
	Patterns   []*regexp.Regexp
	Keywords   []string
	Extensions []string
}

// DefaultSignatures returns the built-in language set
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Language: "javascript",
			Patterns: compile(
				`function\s+\w+\s*\(`,
				`const\s+\w+\s*=`,
				`let\s+\w+\s*=`,
				`var\s+\w+\s*=`,
				`=>\s*\{`,
				`console\.log\(`,
				"require\\(['\"`]",
				`import\s+.*from`,
				`export\s+(default\s+)?`,
			),
			Keywords:   []string{"function", "const", "let", "var", "if", "else", "for", "while", "return", "import", "export"},
			Extensions: []string{".js", ".jsx", ".ts", ".tsx"},
		},
		{
			Language: "python",
			Patterns: compile(
				`def\s+\w+\s*\(`,
				`import\s+\w+`,
				`from\s+\w+\s+import`,
				"if\\s+__name__\\s*==\\s*['\"`]__main__['\"`]",
				`print\s*\(`,
				`class\s+\w+`,
				`(?m)^\s*#.*$`,
			),
			Keywords:   []string{"def", "class", "import", "from", "if", "elif", "else", "for", "while", "return", "try", "except"},
			Extensions: []string{".py", ".pyw"},
		},
		{
			Language: "java",
			Patterns: compile(
				`public\s+class\s+\w+`,
				`public\s+static\s+void\s+main`,
				`System\.out\.println`,
				`private\s+\w+\s+\w+`,
				`public\s+\w+\s+\w+\s*\(`,
				`import\s+java\.`,
			),
			Keywords:   []string{"public", "private", "protected", "class", "interface", "static", "void", "int", "String"},
			Extensions: []string{".java"},
		},
		{
			Language: "cpp",
			Patterns: compile(
				`#include\s*<.*>`,
				`int\s+main\s*\(`,
				`std::`,
				`cout\s*<<`,
				`cin\s*>>`,
				`using\s+namespace\s+std`,
			),
			Keywords:   []string{"#include", "int", "char", "float", "double", "void", "class", "public", "private", "protected"},
			Extensions: []string{".cpp", ".cc", ".cxx", ".c++", ".c"},
		},
		{
			Language: "html",
			Patterns: compile(
				`<html.*?>`,
				`<head.*?>`,
				`<body.*?>`,
				`<div.*?>`,
				`<script.*?>`,
				`<style.*?>`,
				`(?i)<!DOCTYPE\s+html>`,
			),
			Keywords:   []string{"html", "head", "body", "div", "span", "p", "a", "img", "script", "style"},
			Extensions: []string{".html", ".htm"},
		},
		{
			Language: "css",
			Patterns: compile(
				`\w+\s*\{[^}]*\}`,
				`\.\w+\s*\{`,
				`#\w+\s*\{`,
				`@media\s+`,
				`background-color:`,
				`font-family:`,
			),
			Keywords:   []string{"color", "background", "font", "margin", "padding", "border", "width", "height"},
			Extensions: []string{".css", ".scss", ".sass", ".less"},
		},
		{
			Language: "sql",
			Patterns: compile(
				`(?i)SELECT\s+.*\s+FROM`,
				`(?i)INSERT\s+INTO`,
				`(?i)UPDATE\s+.*\s+SET`,
				`(?i)DELETE\s+FROM`,
				`(?i)CREATE\s+TABLE`,
				`(?i)ALTER\s+TABLE`,
			),
			Keywords:   []string{"SELECT", "FROM", "WHERE", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"},
			Extensions: []string{".sql"},
		},
		{
			Language: "json",
			Patterns: compile(
				`^\s*\{[\s\S]*\}$`,
				`^\s*\[[\s\S]*\]$`,
				`"[\w-]+"\s*:\s*"[^"]*"`,
				`"[\w-]+"\s*:\s*\d+`,
				`"[\w-]+"\s*:\s*(true|false|null)`,
			),
			Extensions: []string{".json"},
		},
		{
			Language: "xml",
			Patterns: compile(
				`<\?xml.*?\?>`,
				`<\w+.*?>[\s\S]*?</\w+>`,
				`<\w+.*?/>`,
			),
			Extensions: []string{".xml"},
		},
	}
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}
