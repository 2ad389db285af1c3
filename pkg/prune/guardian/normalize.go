package guardian

import (
	"encoding/hex"
	"regexp"

	"lukechampine.com/blake3"
)

// Volatile tokens are replaced before digesting so that literal output
// differences between runs (clocks, temp paths, pointers) do not read as
// behavioral change.
var normalizers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T\s]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`), "[TIMESTAMP]"},
	{regexp.MustCompile(`\d+(\.\d+)?(ns|us|µs|ms|s)\b`), "[DURATION]"},
	{regexp.MustCompile(`0x[0-9a-fA-F]+`), "[ADDRESS]"},
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), "[GUID]"},
	// Absolute paths collapse to their final element, Windows then Unix.
	{regexp.MustCompile(`[A-Za-z]:[\\/][^\s]*[\\/]([^\s\\/]+)`), "$1"},
	{regexp.MustCompile(`/[^\s]+/([^\s/]+)`), "$1"},
	{regexp.MustCompile(`Test Run \w+`), "Test Run [ID]"},
}

// Normalize strips volatile tokens from raw test output. Applying it twice
// yields the same result as applying it once.
func Normalize(output string) string {
	for _, n := range normalizers {
		output = n.re.ReplaceAllString(output, n.repl)
	}
	return output
}

// Digest returns the hex BLAKE3 digest of the normalized output.
func Digest(output string) string {
	sum := blake3.Sum256([]byte(Normalize(output)))
	return hex.EncodeToString(sum[:])
}
