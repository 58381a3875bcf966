package transfer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"confdb/internal/core"
	"confdb/internal/testutil"
	"confdb/internal/transfer"
)

const importFile = `Machine Configuration Export
,,,
FC,Fungible,Stand,Comments,Not_A_Column
AT1L0,,B-12,solid attenuator,ignored
AT2L0,FG-7,B-13,gas attenuator,ignored
,,B-14,row without a device name,
`

func importProject(t *testing.T, h *testutil.Harness) string {
	t.Helper()
	project, err := h.Service.CreateProject("alice", "LCLS Upgrade", "", nil)
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	h.Clock.Advance(time.Minute)
	return project.ID
}

func TestImportCSV(t *testing.T) {
	t.Parallel()
	t.Run("preamble and malformed rows", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		projectID := importProject(t, h)

		counter, err := transfer.ImportCSV(h.Service, "alice", projectID, strings.NewReader(importFile), core.NewNopLogger())
		if err != nil {
			t.Fatalf("ImportCSV() error = %v", err)
		}
		if counter.Headers != 4 {
			t.Errorf("Headers = %d, want 4 (FC, Fungible, Stand, Comments)", counter.Headers)
		}
		if counter.Success != 2 || counter.Fail != 1 || counter.Ignored != 0 {
			t.Errorf("counter = %+v, want 2 succeeded, 1 failed", counter)
		}

		devices, err := h.Service.ProjectDevices(projectID)
		if err != nil {
			t.Fatalf("ProjectDevices() error = %v", err)
		}
		if len(devices) != 2 {
			t.Fatalf("imported %d devices, want 2", len(devices))
		}
		at2 := devices["AT2L0"]
		if at2 == nil {
			t.Fatal("AT2L0 was not imported")
		}
		if at2["stand"] != "B-13" || at2["fg"] != "FG-7" || at2["comment"] != "gas attenuator" {
			t.Errorf("AT2L0 attributes = %v", at2)
		}
		if _, ok := at2["Not_A_Column"]; ok {
			t.Error("unrecognized column leaked into the device record")
		}
	})

	t.Run("identical re-import is ignored", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		projectID := importProject(t, h)

		if _, err := transfer.ImportCSV(h.Service, "alice", projectID, strings.NewReader(importFile), core.NewNopLogger()); err != nil {
			t.Fatalf("first ImportCSV() error = %v", err)
		}
		h.Clock.Advance(time.Minute)

		counter, err := transfer.ImportCSV(h.Service, "alice", projectID, strings.NewReader(importFile), core.NewNopLogger())
		if err != nil {
			t.Fatalf("second ImportCSV() error = %v", err)
		}
		if counter.Success != 0 || counter.Ignored != 2 {
			t.Errorf("counter = %+v, want both rows ignored", counter)
		}
	})

	t.Run("unicode quotes stripped from device names", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		projectID := importProject(t, h)

		file := "FC,Stand\n\u201cAT1L0\u201d,B-12\n"
		if _, err := transfer.ImportCSV(h.Service, "alice", projectID, strings.NewReader(file), core.NewNopLogger()); err != nil {
			t.Fatalf("ImportCSV() error = %v", err)
		}
		devices, _ := h.Service.ProjectDevices(projectID)
		if _, ok := devices["AT1L0"]; !ok {
			t.Errorf("device names = %v, want sanitized AT1L0", devices)
		}
	})

	t.Run("missing FC header", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		projectID := importProject(t, h)

		file := "Stand,Comments\nB-12,no names here\n"
		_, err := transfer.ImportCSV(h.Service, "alice", projectID, strings.NewReader(file), core.NewNopLogger())
		if err == nil || !strings.Contains(err.Error(), "FC header is required") {
			t.Errorf("ImportCSV() error = %v, want FC header rejection", err)
		}
	})

	t.Run("no data rows", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		projectID := importProject(t, h)

		file := "FC,Stand\n,B-12\n"
		_, err := transfer.ImportCSV(h.Service, "alice", projectID, strings.NewReader(file), core.NewNopLogger())
		if err == nil || !strings.Contains(err.Error(), "no data detected") {
			t.Errorf("ImportCSV() error = %v, want no-data rejection", err)
		}
	})

	t.Run("non-editor may not import", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)
		projectID := importProject(t, h)

		_, err := transfer.ImportCSV(h.Service, "mallory", projectID, strings.NewReader(importFile), core.NewNopLogger())
		if err == nil || !strings.Contains(err.Error(), "not allowed") {
			t.Errorf("ImportCSV() error = %v, want permission rejection", err)
		}
	})
}

func TestStatusMessage(t *testing.T) {
	t.Parallel()
	counter := core.ImportCounter{Headers: 4, Success: 2, Fail: 1, Ignored: 3}
	msg := transfer.StatusMessage("LCLS Upgrade", counter)
	for _, want := range []string{
		"Project Name: LCLS Upgrade.",
		"Valid headers recognized: 4.",
		"Successful row imports: 2.",
		"Failed row imports: 1.",
		"Ignored row imports: 3.",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("StatusMessage() missing %q:\n%s", want, msg)
		}
	}
}

func TestExportCSV(t *testing.T) {
	t.Parallel()
	h := testutil.NewHarness(t, nil)
	projectID := importProject(t, h)

	if _, err := transfer.ImportCSV(h.Service, "alice", projectID, strings.NewReader(importFile), core.NewNopLogger()); err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}

	var buf bytes.Buffer
	if err := transfer.ExportCSV(h.Service, projectID, &buf); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("exported %d lines, want header plus 2 devices:\n%s", len(lines), buf.String())
	}

	var columns []string
	for _, cm := range transfer.KeyMap {
		columns = append(columns, cm.Column)
	}
	if lines[0] != strings.Join(columns, ",") {
		t.Errorf("header = %q, want spreadsheet column order", lines[0])
	}

	// rows come out sorted by device name
	if !strings.HasPrefix(lines[1], "AT1L0,") || !strings.HasPrefix(lines[2], "AT2L0,") {
		t.Errorf("row order:\n%s", buf.String())
	}
	if !strings.Contains(lines[2], "B-13") {
		t.Errorf("AT2L0 row = %q, want its stand exported", lines[2])
	}
}
