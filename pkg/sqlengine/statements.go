package sqlengine

import (
	"regexp"
	"strings"
)

var (
	createTablePattern = regexp.MustCompile("(?is)^\\s*CREATE\\s+(?:TEMP(?:ORARY)?\\s+)?TABLE\\s+(?:IF\\s+NOT\\s+EXISTS\\s+)?[`\"\\[]?([A-Za-z_][A-Za-z0-9_]*)")
	intPrimaryKey      = regexp.MustCompile(`(?i)\b(INT|INTEGER|BIGINT|SMALLINT|SERIAL|BIGSERIAL)\s+(NOT\s+NULL\s+)?PRIMARY\s+KEY(\s+AUTOINCREMENT)?`)
	mysqlAutoIncrement = regexp.MustCompile(`(?i)\s+AUTO_INCREMENT\b`)
	serialType         = regexp.MustCompile(`(?i)\b(BIG)?SERIAL\b`)
)

// SplitStatements splits a script on semicolons that are not inside quotes or comments.
// Comments are dropped and empty statements are skipped.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
		quote      rune
	)

	runes := []rune(script)
	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			current.WriteRune(r)
			if r == quote {
				// Doubled quote is an escaped quote inside the literal.
				if i+1 < len(runes) && runes[i+1] == quote {
					current.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}

		switch {
		case r == '\'' || r == '"' || r == '`':
			quote = r
			current.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			current.WriteRune(' ')
		case r == ';':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return statements
}

// NormalizeSchema rewrites integer primary keys to auto-increment rowid aliases so
// setup scripts written for other engines insert rows without explicit ids.
func NormalizeSchema(statement string) string {
	if createTablePattern.FindStringSubmatch(statement) == nil {
		return statement
	}

	normalized := mysqlAutoIncrement.ReplaceAllString(statement, "")
	normalized = intPrimaryKey.ReplaceAllString(normalized, "INTEGER PRIMARY KEY AUTOINCREMENT")
	normalized = serialType.ReplaceAllString(normalized, "INTEGER")
	return normalized
}

// CreatedTable returns the table name a CREATE TABLE statement defines, or "".
func CreatedTable(statement string) string {
	match := createTablePattern.FindStringSubmatch(statement)
	if match == nil {
		return ""
	}
	return match[1]
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
