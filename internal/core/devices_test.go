package core_test

import (
	"strings"
	"testing"
	"time"

	"confdb/internal/model"
	"confdb/internal/testutil"
)

func TestService_AddDevice(t *testing.T) {
	t.Parallel()
	t.Run("creates a record and extends the membership", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)

		project, err := h.Service.CreateProject("alice", "Source", "", nil)
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		deviceID, err := h.Service.AddDevice("alice", project.ID, testDevice("AT1L0"))
		if err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}

		device, err := h.Service.GetDevice(deviceID)
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if device == nil {
			t.Fatal("device record was not stored")
		}
		if device.FC() != "AT1L0" {
			t.Errorf("fc = %q, want %q", device.FC(), "AT1L0")
		}
		if device.ProjectID() != project.ID {
			t.Errorf("project_id = %q, want %q", device.ProjectID(), project.ID)
		}
		if created, ok := device.Created(); !ok || !created.Equal(h.Clock.Now()) {
			t.Errorf("created = %v, want %v", created, h.Clock.Now())
		}

		snapshot, _ := h.Service.RecentSnapshot(project.ID)
		if len(snapshot.Devices) != 1 || snapshot.Devices[0] != deviceID {
			t.Errorf("membership = %v, want [%s]", snapshot.Devices, deviceID)
		}
	})

	t.Run("rejects edits from non-editors", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)

		project, err := h.Service.CreateProject("alice", "Source", "", nil)
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		if _, err := h.Service.AddDevice("mallory", project.ID, testDevice("AT1L0")); err == nil {
			t.Error("AddDevice() expected permission error")
		}
	})
}

func TestService_UpdateDeviceInProject(t *testing.T) {
	t.Parallel()
	setup := func(t *testing.T) (*testutil.Harness, string, string) {
		t.Helper()
		h := testutil.NewHarness(t, nil)
		project, err := h.Service.CreateProject("alice", "Source", "", nil)
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		deviceID, err := h.Service.AddDevice("alice", project.ID, testDevice("AT1L0"))
		if err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		return h, project.ID, deviceID
	}

	t.Run("an attribute change produces a new record", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		newID, err := h.Service.UpdateDeviceInProject("alice", projectID, model.Device{
			model.KeyID: deviceID,
			model.KeyFC: "AT1L0",
			"nom_loc_z": "120.5",
		})
		if err != nil {
			t.Fatalf("UpdateDeviceInProject() error = %v", err)
		}
		if newID == deviceID {
			t.Fatal("expected a new record id")
		}

		// old record is untouched, new record carries the converted value
		old, _ := h.Service.GetDevice(deviceID)
		if _, ok := old["nom_loc_z"]; ok {
			t.Error("old record was mutated")
		}
		updated, _ := h.Service.GetDevice(newID)
		if got := updated["nom_loc_z"]; got != 120.5 {
			t.Errorf("nom_loc_z = %v (%T), want 120.5", got, got)
		}

		// membership swapped the old id for the new one
		snapshot, _ := h.Service.RecentSnapshot(projectID)
		if len(snapshot.Devices) != 1 || snapshot.Devices[0] != newID {
			t.Errorf("membership = %v, want [%s]", snapshot.Devices, newID)
		}

		// the snapshot records the field-level change
		if len(snapshot.Changelog) != 1 {
			t.Fatalf("changelog entries = %d, want 1", len(snapshot.Changelog))
		}
		entry := snapshot.Changelog[0]
		if entry.Field != "nom_loc_z" || entry.Value != 120.5 || entry.FC != "AT1L0" {
			t.Errorf("changelog entry = %+v", entry)
		}
	})

	t.Run("a no-op update returns the existing id and writes nothing", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		before, _ := h.DB.ProjectSnapshots(projectID)

		gotID, err := h.Service.UpdateDeviceInProject("alice", projectID, model.Device{
			model.KeyID:    deviceID,
			model.KeyFC:    "AT1L0",
			model.KeyState: string(model.StateConceptual),
		})
		if err != nil {
			t.Fatalf("UpdateDeviceInProject() error = %v", err)
		}
		if gotID != deviceID {
			t.Errorf("id = %q, want the unchanged %q", gotID, deviceID)
		}

		after, _ := h.DB.ProjectSnapshots(projectID)
		if len(after) != len(before) {
			t.Errorf("snapshots = %d, want %d (no-op must not snapshot)", len(after), len(before))
		}
	})

	t.Run("unknown attributes are skipped silently", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		gotID, err := h.Service.UpdateDeviceInProject("alice", projectID, model.Device{
			model.KeyID:     deviceID,
			model.KeyFC:     "AT1L0",
			"made_up_field": "whatever",
		})
		if err != nil {
			t.Fatalf("UpdateDeviceInProject() error = %v", err)
		}
		if gotID != deviceID {
			t.Errorf("id = %q, want %q (skipped attribute is a no-op)", gotID, deviceID)
		}
	})

	t.Run("a value of the wrong type is rejected", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		_, err := h.Service.UpdateDeviceInProject("alice", projectID, model.Device{
			model.KeyID: deviceID,
			model.KeyFC: "AT1L0",
			"nom_loc_z": "not a number",
		})
		if err == nil {
			t.Fatal("UpdateDeviceInProject() expected conversion error")
		}
		if !strings.Contains(err.Error(), "wrong type") {
			t.Errorf("error = %v, want wrong type mention", err)
		}
	})

	t.Run("a timestamp behind the newest snapshot is rejected", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		before, _ := h.DB.ProjectSnapshots(projectID)
		h.Clock.Rewind(time.Hour)

		_, err := h.Service.UpdateDeviceInProject("alice", projectID, model.Device{
			model.KeyID: deviceID,
			model.KeyFC: "AT1L0",
			"stand":     "B-12",
		})
		if err == nil {
			t.Fatal("UpdateDeviceInProject() expected monotonic timestamp error")
		}
		if !strings.Contains(err.Error(), "is before the most recent change") {
			t.Errorf("error = %v, want monotonic timestamp message", err)
		}

		after, _ := h.DB.ProjectSnapshots(projectID)
		if len(after) != len(before) {
			t.Error("rejected update still appended a snapshot")
		}
	})
}

func TestService_UpdateDevices(t *testing.T) {
	t.Parallel()
	t.Run("batch counts created, changed and ignored rows", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)

		project, err := h.Service.CreateProject("alice", "Source", "", nil)
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		existingID, err := h.Service.AddDevice("alice", project.ID, testDevice("AT1L0"))
		if err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		untouchedID, err := h.Service.AddDevice("alice", project.ID, testDevice("AT2L0"))
		if err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		h.Clock.Advance(time.Minute)

		counter, err := h.Service.UpdateDevices("alice", project.ID, []model.Device{
			{model.KeyID: untouchedID, model.KeyFC: "AT2L0", model.KeyState: string(model.StateConceptual)}, // no-op
			{model.KeyID: existingID, model.KeyFC: "AT1L0", "stand": "B-12"},                               // change
			testDevice("SL1K2"),                                                                            // new device
		})
		if err != nil {
			t.Fatalf("UpdateDevices() error = %v", err)
		}
		if counter.Success != 2 || counter.Ignored != 1 || counter.Fail != 0 {
			t.Errorf("counter = %+v, want 2 success, 1 ignored", counter)
		}

		snapshot, _ := h.Service.RecentSnapshot(project.ID)
		if len(snapshot.Devices) != 3 {
			t.Fatalf("membership size = %d, want 3", len(snapshot.Devices))
		}
		if !containsString(snapshot.Devices, untouchedID) {
			t.Error("no-op device did not carry forward into the new snapshot")
		}
		if containsString(snapshot.Devices, existingID) {
			t.Error("replaced record id still in the membership")
		}
	})

	t.Run("refuses projects outside development", func(t *testing.T) {
		h := testutil.NewHarness(t, nil)

		project, err := h.Service.CreateProject("alice", "Source", "", nil)
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		if _, err := h.Service.SubmitForApproval("alice", project.ID, nil, []string{"bob"}); err != nil {
			t.Fatalf("SubmitForApproval() error = %v", err)
		}

		h.Clock.Advance(time.Minute)
		_, err = h.Service.UpdateDevices("alice", project.ID, []model.Device{testDevice("AT1L0")})
		if err == nil {
			t.Error("UpdateDevices() expected error for submitted project")
		}
	})
}

func TestService_RemoveDevices(t *testing.T) {
	t.Parallel()
	setup := func(t *testing.T) (*testutil.Harness, string, string) {
		t.Helper()
		h := testutil.NewHarness(t, nil)
		project, err := h.Service.CreateProject("alice", "Source", "", nil)
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		deviceID, err := h.Service.AddDevice("alice", project.ID, testDevice("AT1L0"))
		if err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		return h, project.ID, deviceID
	}

	t.Run("removes devices from the membership", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		if err := h.Service.RemoveDevices("alice", projectID, []string{deviceID}); err != nil {
			t.Fatalf("RemoveDevices() error = %v", err)
		}
		snapshot, _ := h.Service.RecentSnapshot(projectID)
		if len(snapshot.Devices) != 0 {
			t.Errorf("membership = %v, want empty", snapshot.Devices)
		}

		// the record itself survives in history
		device, err := h.Service.GetDevice(deviceID)
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if device == nil {
			t.Error("removal deleted the historical record")
		}
	})

	t.Run("reports unknown device ids", func(t *testing.T) {
		h, projectID, _ := setup(t)

		err := h.Service.RemoveDevices("alice", projectID, []string{"no-such-id"})
		if err == nil {
			t.Fatal("RemoveDevices() expected error for unknown ids")
		}
		if !strings.Contains(err.Error(), "do not exist") {
			t.Errorf("error = %v, want missing devices message", err)
		}
	})
}

func TestService_CopyDeviceValues(t *testing.T) {
	t.Parallel()
	setup := func(t *testing.T) (*testutil.Harness, string, string) {
		t.Helper()
		h := testutil.NewHarness(t, nil)
		from, err := h.Service.CreateProject("alice", "From", "", nil)
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		source := testDevice("AT1L0")
		source["stand"] = "B-12"
		source["nom_loc_z"] = 120.5
		if _, err := h.Service.AddDevice("alice", from.ID, source); err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}

		h.Clock.Advance(time.Minute)
		to, err := h.Service.CreateProject("alice", "To", "", nil)
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		if _, err := h.Service.AddDevice("alice", to.ID, testDevice("AT1L0")); err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		return h, from.ID, to.ID
	}

	t.Run("copies the named attributes into a new destination record", func(t *testing.T) {
		h, fromID, toID := setup(t)

		updated, err := h.Service.CopyDeviceValues("alice", fromID, toID, "AT1L0", []string{"stand", "nom_loc_z"})
		if err != nil {
			t.Fatalf("CopyDeviceValues() error = %v", err)
		}
		if updated["stand"] != "B-12" {
			t.Errorf("stand = %v, want B-12", updated["stand"])
		}
		if updated["nom_loc_z"] != 120.5 {
			t.Errorf("nom_loc_z = %v, want 120.5", updated["nom_loc_z"])
		}
		if updated.ProjectID() != toID {
			t.Errorf("project_id = %q, want destination %q", updated.ProjectID(), toID)
		}

		snapshot, _ := h.Service.RecentSnapshot(toID)
		if !containsString(snapshot.Devices, updated.ID()) {
			t.Error("destination snapshot does not carry the new record")
		}
	})

	t.Run("structural fields cannot be copied", func(t *testing.T) {
		h, fromID, toID := setup(t)

		_, err := h.Service.CopyDeviceValues("alice", fromID, toID, "AT1L0", []string{"created"})
		if err == nil {
			t.Fatal("CopyDeviceValues() expected error for structural field")
		}
		if !strings.Contains(err.Error(), "should not be copied") {
			t.Errorf("error = %v, want invalid-keys message", err)
		}
	})

	t.Run("copy-all is not supported", func(t *testing.T) {
		h, fromID, toID := setup(t)

		if _, err := h.Service.CopyDeviceValues("alice", fromID, toID, "AT1L0", []string{"ALL"}); err == nil {
			t.Error("CopyDeviceValues() expected error for ALL")
		}
	})

	t.Run("missing source attribute is an error", func(t *testing.T) {
		h, fromID, toID := setup(t)

		if _, err := h.Service.CopyDeviceValues("alice", fromID, toID, "AT1L0", []string{"geom_len"}); err == nil {
			t.Error("CopyDeviceValues() expected error for absent source attribute")
		}
	})
}

func TestService_Comments(t *testing.T) {
	t.Parallel()
	setup := func(t *testing.T) (*testutil.Harness, string, string) {
		t.Helper()
		h := testutil.NewHarness(t, nil)
		project, err := h.Service.CreateProject("alice", "Source", "", []string{"bob"})
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		deviceID, err := h.Service.AddDevice("alice", project.ID, testDevice("AT1L0"))
		if err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		return h, project.ID, deviceID
	}

	t.Run("comments are prepended newest first", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		if err := h.Service.AddComment("alice", projectID, deviceID, "first"); err != nil {
			t.Fatalf("AddComment() error = %v", err)
		}
		h.Clock.Advance(time.Minute)
		if err := h.Service.AddComment("bob", projectID, deviceID, "second"); err != nil {
			t.Fatalf("AddComment() error = %v", err)
		}

		device, _ := h.Service.GetDevice(deviceID)
		discussion := device.Discussion()
		if len(discussion) != 2 {
			t.Fatalf("discussion length = %d, want 2", len(discussion))
		}
		if discussion[0].Comment != "second" || discussion[1].Comment != "first" {
			t.Errorf("discussion order = [%s, %s], want newest first", discussion[0].Comment, discussion[1].Comment)
		}
		if discussion[0].Author != "bob" {
			t.Errorf("author = %q, want bob", discussion[0].Author)
		}
	})

	t.Run("strangers may not comment", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		if err := h.Service.AddComment("mallory", projectID, deviceID, "hi"); err == nil {
			t.Error("AddComment() expected permission error")
		}
	})

	t.Run("approvers may comment only while submitted", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		if err := h.Service.AddComment("carol", projectID, deviceID, "early"); err == nil {
			t.Fatal("AddComment() expected error before submission")
		}
		if _, err := h.Service.SubmitForApproval("alice", projectID, []string{"bob"}, []string{"carol"}); err != nil {
			t.Fatalf("SubmitForApproval() error = %v", err)
		}
		if err := h.Service.AddComment("carol", projectID, deviceID, "review note"); err != nil {
			t.Errorf("AddComment() error = %v", err)
		}
	})

	t.Run("author or owner may delete a comment", func(t *testing.T) {
		h, projectID, deviceID := setup(t)

		if err := h.Service.AddComment("bob", projectID, deviceID, "to be removed"); err != nil {
			t.Fatalf("AddComment() error = %v", err)
		}
		device, _ := h.Service.GetDevice(deviceID)
		commentID := device.Discussion()[0].ID

		if err := h.Service.DeleteComment("mallory", projectID, deviceID, commentID); err == nil {
			t.Error("DeleteComment() expected permission error")
		}
		if err := h.Service.DeleteComment("alice", projectID, deviceID, commentID); err != nil {
			t.Fatalf("DeleteComment() error = %v", err)
		}

		device, _ = h.Service.GetDevice(deviceID)
		if len(device.Discussion()) != 0 {
			t.Error("comment was not removed")
		}
	})
}

func TestService_FCNames(t *testing.T) {
	t.Parallel()
	h := testutil.NewHarness(t, nil)

	project, err := h.Service.CreateProject("alice", "Source", "", nil)
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	h.Clock.Advance(time.Minute)
	if _, err := h.Service.AddDevice("alice", project.ID, testDevice("AT1L0")); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	h.Clock.Advance(time.Minute)
	if _, err := h.Service.SubmitForApproval("alice", project.ID, nil, []string{"bob"}); err != nil {
		t.Fatalf("SubmitForApproval() error = %v", err)
	}
	h.Clock.Advance(time.Minute)
	if _, _, err := h.Service.Approve("bob", project.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	names, err := h.Service.FCNames()
	if err != nil {
		t.Fatalf("FCNames() error = %v", err)
	}
	if !equalStrings(names, []string{"AT1L0"}) {
		t.Errorf("FCNames() = %v, want [AT1L0]", names)
	}
}

func containsString(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
