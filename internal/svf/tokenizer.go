package svf

import (
	"strings"

	"github.com/mzec/jtagprog/internal/jtagerr"
)

// Statement is one fully-joined, tokenized, uppercased SVF command.
type Statement struct {
	Line   int
	Tokens []string
}

// Tokenize splits the ASCII contents of an SVF program (or a JED
// translator's in-memory SVF buffer) into a sequence of Statements,
// joining continuation lines until a terminating ';', stripping '!'
// comments, validating that '(' ... ')' pairs are balanced and never
// nested within a statement, and uppercasing every token — exactly the behavior of
// ujprog.c's exec_svf_mem() line-joining tokenizer, adapted from
// NUL-terminated in-place scanning to a line slice since Go strings
// don't need the original's in-place buffer trick.
func Tokenize(lines []string) ([]Statement, error) {
	var stmts []Statement
	var cmd strings.Builder
	parenOpen := false
	complete := false
	startLine := 0

	for lno, raw := range lines {
		lineNo := lno + 1
		line := raw
		if i := strings.IndexByte(line, '!'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) > 0 && cmd.Len() == 0 && !complete {
			startLine = lineNo
		}

		for _, item := range fields {
			if complete {
				return nil, jtagerr.New(jtagerr.BadSVF, "line %d: multiple commands on single line", lineNo)
			}

			term := false
			if strings.HasSuffix(item, ";") {
				item = item[:len(item)-1]
				term = true
			}

			if strings.HasPrefix(item, "(") {
				item = item[1:]
				if parenOpen {
					return nil, jtagerr.New(jtagerr.BadSVF, "line %d: too many '('s", lineNo)
				}
				parenOpen = true
			}
			if strings.HasSuffix(item, ")") {
				item = item[:len(item)-1]
				if !parenOpen {
					return nil, jtagerr.New(jtagerr.BadSVF, "line %d: too many ')'s", lineNo)
				}
				parenOpen = false
			}

			if item != "" {
				if cmd.Len() > 0 {
					cmd.WriteByte(' ')
				}
				cmd.WriteString(strings.ToUpper(item))
			}
			if term {
				complete = true
			}
		}

		if !complete {
			continue
		}
		if parenOpen {
			return nil, jtagerr.New(jtagerr.BadSVF, "line %d: missing ')'", lineNo)
		}

		toks := strings.Fields(cmd.String())
		if len(toks) > 0 {
			stmts = append(stmts, Statement{Line: startLine, Tokens: toks})
		}
		cmd.Reset()
		complete = false
		parenOpen = false
	}

	if cmd.Len() > 0 || parenOpen {
		return nil, jtagerr.New(jtagerr.BadSVF, "unterminated statement at end of file")
	}

	return stmts, nil
}
