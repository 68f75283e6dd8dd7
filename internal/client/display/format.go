package display

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrettyPrintJSON writes indented JSON, or the raw bytes when data is not JSON
func PrettyPrintJSON(w io.Writer, data []byte) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		fmt.Fprintln(w, string(data))
		return
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%sError formatting JSON: %s%s\n", Red, err.Error(), Reset)
		return
	}
	fmt.Fprintln(w, string(pretty))
}

// FormatEval renders an evaluation in pawns from White's point of view
func FormatEval(eval float64) string {
	color := White
	switch {
	case eval > 0.5:
		color = Blue
	case eval < -0.5:
		color = Red
	}
	return fmt.Sprintf("%s%+.2f%s", color, eval, Reset)
}
