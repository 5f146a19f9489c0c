package predicate

import "fmt"

// Diagnostic is a parse or lex failure anchored to a byte offset in the
// original expression text, so the config layer can report a readable
// "at offset N" message rather than a bare error string.
type Diagnostic struct {
	Pos     int
	Message string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("predicate: at offset %d: %s", d.Pos, d.Message)
}
