package infrastructure

import "strings"

// shellSpecialChars are the characters that make an argument need quoting
const shellSpecialChars = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// shellQuote renders s as a single POSIX shell word, for log output only
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecialChars) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// commandLine renders an exec invocation as a copy-pasteable shell line
func commandLine(name string, args ...string) string {
	words := make([]string, 0, len(args)+1)
	words = append(words, shellQuote(name))
	for _, arg := range args {
		words = append(words, shellQuote(arg))
	}
	return strings.Join(words, " ")
}
