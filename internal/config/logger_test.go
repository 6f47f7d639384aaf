package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestNewLogger(t *testing.T) {
	cases := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "defaults", level: "", format: ""},
		{name: "json info", level: "info", format: "json"},
		{name: "json debug", level: "debug", format: "json"},
		{name: "console warn", level: "warn", format: "console"},
		{name: "bad level", level: "banana", format: "json", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			if tc.level != "" {
				v.Set("logging.level", tc.level)
			}
			if tc.format != "" {
				v.Set("logging.format", tc.format)
			}

			logger, err := NewLogger(v)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}
