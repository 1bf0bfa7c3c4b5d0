package captcha

import (
	"strconv"
	"strings"
)

// The solving service sometimes returns an arithmetic challenge instead of
// plain text, in human style ("6 x 3"). At most one operator is present.
var operators = []string{"X", "x", "*", "+", "-"}

// Normalize evaluates a reply of the shape <int><operator><int> and returns
// the result as a decimal string. Any reply that does not match that exact
// shape is returned verbatim so the caller's verification step decides.
// This is deliberately not a general expression evaluator.
func Normalize(text string) string {
	expr := strings.TrimSpace(text)
	for _, op := range operators {
		pos := strings.Index(expr, op)
		if pos <= 0 || pos >= len(expr)-1 {
			continue
		}
		left, errL := strconv.Atoi(strings.TrimSpace(expr[:pos]))
		right, errR := strconv.Atoi(strings.TrimSpace(expr[pos+len(op):]))
		if errL != nil || errR != nil {
			return text
		}
		switch op {
		case "+":
			return strconv.Itoa(left + right)
		case "-":
			return strconv.Itoa(left - right)
		default:
			// X, x and * all mean multiplication
			return strconv.Itoa(left * right)
		}
	}
	return text
}
