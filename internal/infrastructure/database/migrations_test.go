package database

import "testing"

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"valid up", "20260115_120000_device_states.up.sql", "20260115_120000", true, true},
		{"valid down", "20260115_120000_device_states.down.sql", "20260115_120000", false, true},
		{"no direction", "20260115_120000_device_states.sql", "", false, false},
		{"not sql", "20260115_120000_notes.up.txt", "", false, false},
		{"too few parts", "20260115.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if isUp != tt.wantUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	got := extractMigrationName("20260115_120000_device_states.up.sql")
	if got != "device states" {
		t.Errorf("extractMigrationName() = %q, want %q", got, "device states")
	}
}
