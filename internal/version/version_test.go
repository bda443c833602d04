package version

import (
	"runtime/debug"
	"testing"
)

func TestFillFromVCS(t *testing.T) {
	tests := []struct {
		name       string
		settings   []debug.BuildSetting
		wantCommit string
		wantDate   string
	}{
		{
			name: "clean checkout",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef"},
				{Key: "vcs.time", Value: "2026-01-27T10:30:00Z"},
				{Key: "vcs.modified", Value: "false"},
			},
			wantCommit: "0123456",
			wantDate:   "2026-01-27 10:30",
		},
		{
			name: "dirty tree",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "fedcba9876"},
				{Key: "vcs.modified", Value: "true"},
			},
			wantCommit: "fedcba9-dirty",
			wantDate:   "unknown",
		},
		{
			name:       "no vcs stamp",
			wantCommit: "unknown",
			wantDate:   "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Info{GitCommit: "unknown", BuildDate: "unknown"}
			fillFromVCS(&info, tt.settings)
			if info.GitCommit != tt.wantCommit {
				t.Errorf("GitCommit = %q, want %q", info.GitCommit, tt.wantCommit)
			}
			if info.BuildDate != tt.wantDate {
				t.Errorf("BuildDate = %q, want %q", info.BuildDate, tt.wantDate)
			}
		})
	}
}

func TestLdflagsWin(t *testing.T) {
	info := Info{GitCommit: "abc1234", BuildDate: "2026-02-01 00:00"}
	fillFromVCS(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789"},
		{Key: "vcs.time", Value: "2026-01-27T10:30:00Z"},
	})
	if info.GitCommit != "abc1234" || info.BuildDate != "2026-02-01 00:00" {
		t.Errorf("ldflags values overwritten: %+v", info)
	}
}
