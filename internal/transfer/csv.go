// Package transfer moves project device data in and out of the database as
// CSV and XLSX files, using the column names the machine configuration
// spreadsheets have always used.
package transfer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"confdb/internal/core"
	"confdb/internal/model"
)

// ColumnMapping ties a spreadsheet column name to a device attribute.
type ColumnMapping struct {
	Column string
	Attr   string
}

// KeyMap is the ordered list of spreadsheet columns and the attributes they
// map to. Exports write columns in this order; imports ignore any column
// not listed here.
var KeyMap = []ColumnMapping{
	{"FC", model.KeyFC},
	{"Fungible", "fg"},
	{"TC_part_no", "tc_part_no"},
	{"Device_Type", model.KeyDeviceType},
	{"State", model.KeyState},
	{"Stand", "stand"},
	{"Comments", "comment"},
	{"LCLS_Z_loc", "nom_loc_z"},
	{"LCLS_X_loc", "nom_loc_x"},
	{"LCLS_Y_loc", "nom_loc_y"},
	{"LCLS_Z_roll", "nom_ang_z"},
	{"LCLS_X_pitch", "nom_ang_x"},
	{"LCLS_Y_yaw", "nom_ang_y"},
	{"Must_Ray_Trace", "ray_trace"},
}

func columnToAttr() map[string]string {
	m := make(map[string]string, len(KeyMap))
	for _, cm := range KeyMap {
		m[cm.Column] = cm.Attr
	}
	return m
}

// quoteSanitizer strips the unicode quotes spreadsheet applications love to
// substitute into device names.
var quoteSanitizer = strings.NewReplacer("“", "", "”", "", "‘", "", "’", "")

// ImportCSV reads device rows from r and applies them to the project as one
// batch update. The header row is discovered by scanning for a line that
// mentions the required FC column; any preamble above it is skipped. A row
// without an FC value counts as failed, rows equal to the stored record
// count as ignored.
func ImportCSV(svc *core.Service, user, projectID string, r io.Reader, logger core.Logger) (core.ImportCounter, error) {
	counter := core.ImportCounter{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	headerAt := -1
	for scanner.Scan() {
		line := scanner.Text()
		if headerAt < 0 && strings.Contains(line, "FC") && strings.Contains(line, ",") {
			headerAt = len(lines)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return counter, fmt.Errorf("reading import file: %w", err)
	}
	if headerAt < 0 {
		return counter, fmt.Errorf("import rejected: FC header is required in a CSV format for import")
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[headerAt:], "\n")))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return counter, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	colAttrs := columnToAttr()
	fcCol := -1
	for i, col := range header {
		if col == "FC" {
			fcCol = i
		}
		if _, ok := colAttrs[col]; ok {
			counter.Headers++
		}
	}
	if fcCol < 0 {
		return counter, fmt.Errorf("import rejected: FC header is required in a CSV format for import")
	}

	var uploads []model.Device
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return counter, fmt.Errorf("reading CSV row: %w", err)
		}
		if fcCol >= len(row) {
			counter.Fail++
			continue
		}
		fc := quoteSanitizer.Replace(strings.TrimSpace(row[fcCol]))
		if fc == "" {
			counter.Fail++
			continue
		}

		upload := model.Device{model.KeyFC: fc}
		for i, col := range header {
			if i == fcCol || i >= len(row) {
				continue
			}
			attr, ok := colAttrs[col]
			if !ok {
				continue
			}
			upload[attr] = row[i]
		}
		uploads = append(uploads, upload)
	}
	if len(uploads) == 0 {
		return counter, fmt.Errorf("import error: no data detected in import file")
	}
	if counter.Fail > 0 {
		logger.Debug("malformed import rows, FC values likely missing", "count", counter.Fail)
	}

	status, err := svc.UpdateDevices(user, projectID, uploads)
	if err != nil {
		return counter, err
	}
	counter.Add(status)
	return counter, nil
}

// StatusMessage renders a human-readable import summary.
func StatusMessage(projectName string, counter core.ImportCounter) string {
	lineBreak := strings.Repeat("_", 40)
	return strings.Join([]string{
		lineBreak,
		"Summary of Results:",
		fmt.Sprintf("Project Name: %s.", projectName),
		fmt.Sprintf("Valid headers recognized: %d.", counter.Headers),
		lineBreak,
		fmt.Sprintf("Successful row imports: %d.", counter.Success),
		fmt.Sprintf("Failed row imports: %d.", counter.Fail),
		fmt.Sprintf("Ignored row imports: %d.", counter.Ignored),
	}, "\n")
}

// ExportCSV writes the project's current devices to w, one row per device,
// columns in KeyMap order. Attributes without a column stay internal.
func ExportCSV(svc *core.Service, projectID string, w io.Writer) error {
	header, rows, err := exportRows(svc, projectID)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// exportRows flattens the project's devices into spreadsheet rows, sorted
// by device name.
func exportRows(svc *core.Service, projectID string) (header []string, rows [][]string, err error) {
	devices, err := svc.ProjectDevices(projectID)
	if err != nil {
		return nil, nil, err
	}

	for _, cm := range KeyMap {
		header = append(header, cm.Column)
	}

	var fcs []string
	for fc := range devices {
		fcs = append(fcs, fc)
	}
	sort.Strings(fcs)

	for _, fc := range fcs {
		device := devices[fc]
		row := make([]string, len(KeyMap))
		for i, cm := range KeyMap {
			value, ok := device[cm.Attr]
			if !ok || value == nil {
				continue
			}
			row[i] = fmt.Sprint(value)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}
