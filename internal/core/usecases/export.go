package usecases

import (
	"strconv"
	"strings"

	"github.com/aitzolm/basomap/internal/core/domain"
)

// ExportColumns is the default column order for inventory CSV export.
var ExportColumns = []string{"id", "lat", "lon", "species", "diameter_cm", "height_m", "volume_m3"}

// utf8BOM lets spreadsheet applications detect UTF-8.
const utf8BOM = "\uFEFF"

// ExportCSV serializes records to CSV text: a header row from columns,
// one row per record in input order, RFC 4180 quoting. Absent values
// render as empty fields, never a "null" literal. The output is
// prefixed with a UTF-8 byte-order-mark; an empty record set yields
// the BOM and header only.
func ExportCSV(records []domain.TreeRecord, columns []string) string {
	if len(columns) == 0 {
		columns = ExportColumns
	}

	var b strings.Builder
	b.WriteString(utf8BOM)

	writeRow := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(csvEscape(f))
		}
		b.WriteString("\r\n")
	}

	writeRow(columns)
	for _, r := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = columnValue(r, col)
		}
		writeRow(row)
	}
	return b.String()
}

func columnValue(r domain.TreeRecord, col string) string {
	switch col {
	case "id":
		return r.ID
	case "lat":
		return strconv.FormatFloat(r.Location.Lat, 'f', -1, 64)
	case "lon", "lng":
		return strconv.FormatFloat(r.Location.Lon, 'f', -1, 64)
	case "species":
		return r.Species
	case "diameter_cm":
		return formatOptional(r.DiameterCm)
	case "height_m":
		return formatOptional(r.HeightM)
	case "volume_m3":
		return formatOptional(r.VolumeM3)
	default:
		return ""
	}
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func csvEscape(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
