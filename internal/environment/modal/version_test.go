package modal

import (
	"errors"
	"strings"
	"testing"
)

type staticConfig struct {
	out string
	err error
}

func (s staticConfig) ReadConfig() ([]byte, error) {
	return []byte(s.out), s.err
}

func TestCheckImageBuilderVersion(t *testing.T) {
	tests := []struct {
		name    string
		reader  staticConfig
		wantErr string
	}{
		{name: "minimum", reader: staticConfig{out: `{"image_builder_version": "2025.06"}`}},
		{name: "newer", reader: staticConfig{out: `{"image_builder_version": "2025.12"}`}},
		{name: "null", reader: staticConfig{out: `{"image_builder_version": null}`}, wantErr: "is not set"},
		{name: "missing", reader: staticConfig{out: `{}`}, wantErr: "is not set"},
		{name: "old", reader: staticConfig{out: `{"image_builder_version": "2024.10"}`}, wantErr: "older than 2025.06"},
		{name: "cli missing", reader: staticConfig{err: errors.New("modal CLI not found")}, wantErr: "reading modal config"},
		{name: "garbage", reader: staticConfig{out: "Traceback"}, wantErr: "parsing modal config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkImageBuilderVersion(tt.reader)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
