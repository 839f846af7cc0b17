package service

import (
	"testing"
	"time"

	"github.com/prepware/examhall-backend/internal/model"
)

func testMoment() time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func TestCodePrefix(t *testing.T) {
	tests := []struct {
		name     string
		testType model.TestType
		short    string
		date     string
		want     string
	}{
		{"mock ignores track", model.TestTypeMock, "rda", "2026-03-14", "MOCK-20260314"},
		{"partial uppercases short name", model.TestTypePartial, "rda", "2026-03-14", "RDA-20260314"},
		{"already upper", model.TestTypePartial, "LSB", "2026-12-01", "LSB-20261201"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := codePrefix(tc.testType, tc.short, tc.date); got != tc.want {
				t.Errorf("codePrefix() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatExamCodePadsSequence(t *testing.T) {
	tests := []struct {
		seq  int
		want string
	}{
		{1, "RDA-20260314-001"},
		{42, "RDA-20260314-042"},
		{100, "RDA-20260314-100"},
		{1000, "RDA-20260314-1000"},
	}
	for _, tc := range tests {
		if got := FormatExamCode("RDA-20260314", tc.seq); got != tc.want {
			t.Errorf("FormatExamCode(%d) = %q, want %q", tc.seq, got, tc.want)
		}
	}
}

func TestBatchAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		batch   string
		want    bool
	}{
		{"listed", []string{"batch-1", "batch-2"}, "batch-2", true},
		{"not listed", []string{"batch-1"}, "batch-3", false},
		{"wildcard admits anyone", []string{"*"}, "batch-9", true},
		{"empty list admits no one", nil, "batch-1", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := batchAllowed(tc.allowed, tc.batch); got != tc.want {
				t.Errorf("batchAllowed(%v, %q) = %v, want %v", tc.allowed, tc.batch, got, tc.want)
			}
		})
	}
}

func TestFolderForGroupsMockUnderMockTrack(t *testing.T) {
	tracks := model.ModuleTracks{Listening: "10m-listening", Reading: "10m-reading"}
	session := &model.ExamSession{
		Code:         "MOCK-20260314-001",
		TestType:     model.TestTypeMock,
		TrackName:    "March Mock",
		ModuleTracks: &tracks,
		CreatedAt:    testMoment(),
	}

	folder := folderFor(session, "admin")
	if folder.TrackID != "mock" {
		t.Errorf("TrackID = %q, want mock", folder.TrackID)
	}
	if folder.ExamCode != "MOCK-20260314-001" || folder.TestType != model.TestTypeMock {
		t.Errorf("folder = %+v", folder)
	}
	if folder.ModuleTracks == nil || folder.ModuleTracks.Reading != "10m-reading" {
		t.Error("module tracks not carried onto the folder")
	}
	if folder.CreatedBy != "admin" || !folder.CreatedAt.Equal(testMoment()) {
		t.Errorf("provenance = %q %v", folder.CreatedBy, folder.CreatedAt)
	}
}

func TestFolderForPartialUsesTrackID(t *testing.T) {
	session := &model.ExamSession{
		Code:      "RDA-20260314-001",
		TestType:  model.TestTypePartial,
		TrackID:   "10m-reading",
		TrackName: "Reading A",
		CreatedAt: testMoment(),
	}

	folder := folderFor(session, "admin")
	if folder.TrackID != "10m-reading" {
		t.Errorf("TrackID = %q, want 10m-reading", folder.TrackID)
	}
}

func TestBuildStatusDerivesGlobalWindow(t *testing.T) {
	session := &model.ExamSession{
		Code:            "RDA-20260314-001",
		TestType:        model.TestTypePartial,
		TrackID:         "10m-reading",
		TrackName:       "Reading A",
		DurationMinutes: 60,
	}
	topo, err := session.Topology()
	if err != nil {
		t.Fatalf("Topology: %v", err)
	}

	start := testMoment()
	status := buildStatus(session, topo, start, "admin@prepware.io")

	if !status.IsStarted || status.ExamCode != session.Code {
		t.Fatalf("status = %+v", status)
	}
	if !status.GlobalStartTime.Equal(start) {
		t.Errorf("GlobalStartTime = %v, want %v", status.GlobalStartTime, start)
	}
	if want := start.Add(60 * time.Minute); !status.GlobalEndTime.Equal(want) {
		t.Errorf("GlobalEndTime = %v, want %v", status.GlobalEndTime, want)
	}
	if status.DurationMinutes != 60 {
		t.Errorf("DurationMinutes = %d", status.DurationMinutes)
	}
}

func TestBuildStatusMockUsesTopologyTotal(t *testing.T) {
	tracks := model.ModuleTracks{Listening: "10m-listening", Reading: "10m-reading", Writing: "10m-writing"}
	durations := model.ModuleDurations{Listening: 30, Reading: 45, Writing: 60}
	session := &model.ExamSession{
		Code:            "MOCK-20260314-001",
		TestType:        model.TestTypeMock,
		TrackName:       "March Mock",
		ModuleTracks:    &tracks,
		ModuleDurations: &durations,
	}
	topo, err := session.Topology()
	if err != nil {
		t.Fatalf("Topology: %v", err)
	}

	start := testMoment()
	status := buildStatus(session, topo, start, "admin@prepware.io")

	if status.DurationMinutes != 135 {
		t.Errorf("DurationMinutes = %d, want 135", status.DurationMinutes)
	}
	if want := start.Add(135 * time.Minute); !status.GlobalEndTime.Equal(want) {
		t.Errorf("GlobalEndTime = %v, want %v", status.GlobalEndTime, want)
	}
}
