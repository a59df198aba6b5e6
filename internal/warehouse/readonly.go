package warehouse

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// ErrNotReadOnly rejects any statement that is not a single SELECT/WITH query.
var ErrNotReadOnly = eris.New("statement is not read-only")

// mutatingKeywords are rejected anywhere after the leading SELECT/WITH: data
// modifying CTEs and SELECT ... INTO. Statement-level commands are already
// excluded by the leading keyword and single-statement checks.
var mutatingKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "INTO": true,
}

// Guard normalizes statement (trimmed, trailing semicolons removed) and
// rejects it unless it is a single read-only query.
func Guard(statement string) (string, error) {
	stmt := strings.TrimSpace(statement)
	for strings.HasSuffix(stmt, ";") {
		stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	}

	masked := mask(stmt)
	if strings.Contains(masked, ";") {
		return "", eris.Wrap(ErrNotReadOnly, "warehouse: multiple statements")
	}

	words := strings.FieldsFunc(strings.ToUpper(masked), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	if len(words) == 0 || (words[0] != "SELECT" && words[0] != "WITH") {
		return "", eris.Wrap(ErrNotReadOnly, "warehouse: statement must start with SELECT or WITH")
	}
	for _, w := range words {
		if mutatingKeywords[w] {
			return "", eris.Wrapf(ErrNotReadOnly, "warehouse: %s is not allowed", w)
		}
	}
	return stmt, nil
}

// IsReadOnly reports whether Guard accepts statement.
func IsReadOnly(statement string) bool {
	_, err := Guard(statement)
	return err == nil
}

// mask blanks out comments, string literals, quoted identifiers and
// dollar-quoted bodies so keyword and separator checks only see SQL tokens.
func mask(s string) string {
	out := []byte(s)
	blank := func(from, to int) {
		for k := from; k < to && k < len(out); k++ {
			out[k] = ' '
		}
	}

	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "--"):
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				end = len(s) - i
			}
			blank(i, i+end)
			i += end
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				blank(i, len(s))
				return string(out)
			}
			blank(i, i+2+end+2)
			i += 2 + end + 2
		case s[i] == '\'' || s[i] == '"':
			q := s[i]
			j := i + 1
			for j < len(s) {
				if s[j] == q {
					if j+1 < len(s) && s[j+1] == q {
						j += 2
						continue
					}
					break
				}
				j++
			}
			blank(i, j+1)
			i = j + 1
		case s[i] == '$':
			tag, ok := dollarTag(s[i:])
			if !ok {
				i++
				continue
			}
			end := strings.Index(s[i+len(tag):], tag)
			if end < 0 {
				blank(i, len(s))
				return string(out)
			}
			blank(i, i+len(tag)+end+len(tag))
			i += len(tag) + end + len(tag)
		default:
			i++
		}
	}
	return string(out)
}

// dollarTag returns the opening tag of a dollar-quoted string ($$ or $tag$).
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1], true
		}
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (j > 1 && c >= '0' && c <= '9')) {
			return "", false
		}
	}
	return "", false
}
