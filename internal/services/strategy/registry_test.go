package strategy

import (
	"testing"

	"github.com/ternarybob/obsoleta/internal/models"
)

func TestNormalizeMaker(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"Omron", "omron"},
		{"  OMRON  ", "omron"},
		{"Mitsubishi   Electric", "mitsubishi electric"},
		{"fuji\telectric", "fuji electric"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizeMaker(tc.input); got != tc.expected {
			t.Errorf("normalizeMaker(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestLookupKnownMakers(t *testing.T) {
	desc, ok := Lookup("OMRON")
	if !ok {
		t.Fatal("Expected Omron to resolve")
	}
	if desc.Method != models.ScrapingMethodRenderer {
		t.Errorf("Expected renderer method for Omron, got %s", desc.Method)
	}
	if desc.Validation != ValidationNoResults {
		t.Errorf("Expected no_results validation for Omron, got %s", desc.Validation)
	}

	desc, ok = Lookup("Keyence")
	if !ok {
		t.Fatal("Expected Keyence to resolve")
	}
	if desc.Validation != ValidationNone || !desc.ModelHint {
		t.Errorf("Expected probe-free site_search entry for Keyence, got %+v", desc)
	}
}

func TestLookupUnknownMaker(t *testing.T) {
	if _, ok := Lookup("Acme Robotics"); ok {
		t.Error("Expected unknown manufacturer to miss the registry")
	}
}

func TestExpandTemplateEscapesModel(t *testing.T) {
	got := expandTemplate("https://example.com/search?q={model}", "E3X NA11/2")
	expected := "https://example.com/search?q=E3X+NA11%2F2"
	if got != expected {
		t.Errorf("expandTemplate = %q, expected %q", got, expected)
	}
}
