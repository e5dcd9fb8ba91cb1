package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/warp/ledger-engine/ledger"
)

// WriteCSV writes the window as CSV with a header row. Amounts keep two
// decimal places.
func WriteCSV(out io.Writer, w ledger.Window) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, l := range lines(w) {
		if err := cw.Write(l.strings()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
