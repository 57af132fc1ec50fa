package tag

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "Compliance", "Compliance", false},
		{"trimmed", "  AI Policy  ", "AI Policy", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"max length", strings.Repeat("a", MaxNameLength), strings.Repeat("a", MaxNameLength), false},
		{"too long", strings.Repeat("a", MaxNameLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("expected ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidateName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateColor(t *testing.T) {
	valid := []string{"blue", "green", "purple", "orange", "pink", "red", "yellow", "cyan"}
	for _, color := range valid {
		t.Run(color, func(t *testing.T) {
			got, err := ValidateColor(color)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != color {
				t.Errorf("ValidateColor(%q) = %q", color, got)
			}
		})
	}

	t.Run("defaults to blue", func(t *testing.T) {
		got, err := ValidateColor("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != DefaultColor {
			t.Errorf("expected %q, got %q", DefaultColor, got)
		}
	})

	t.Run("normalizes case", func(t *testing.T) {
		got, err := ValidateColor(" BLUE ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "blue" {
			t.Errorf("expected %q, got %q", "blue", got)
		}
	})

	t.Run("rejects unknown color", func(t *testing.T) {
		_, err := ValidateColor("magenta")
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid, got %v", err)
		}
	})
}
