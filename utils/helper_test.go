package utils

import (
	"testing"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"ana@tiendaluna.com.co", "a.b+c@example.org"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("%q rejected", e)
		}
	}
	invalid := []string{"", "ana", "ana@", "@example.org", "ana@example"}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("%q accepted", e)
		}
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := ValidatePhoneNumber("+573001234567", CountryCode); err != nil {
		t.Errorf("valid mobile rejected: %v", err)
	}
	if err := ValidatePhoneNumber("3001234567", CountryCode); err != nil {
		t.Errorf("national format rejected: %v", err)
	}
	if err := ValidatePhoneNumber("123", CountryCode); err == nil {
		t.Errorf("short number accepted")
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 7
	if got := DereferencePtr(&v, 0); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	if got := DereferencePtr[int](nil, 3); got != 3 {
		t.Errorf("got %d, want fallback 3", got)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (order preserved)", got, want)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 45000.50 ")
	if err != nil {
		t.Fatalf("ParseDecimal: %v", err)
	}
	if d.String() != "45000.5" {
		t.Errorf("got %s", d)
	}
	if _, err := ParseDecimal(""); err == nil {
		t.Errorf("empty string accepted")
	}
	if _, err := ParseDecimal("abc"); err == nil {
		t.Errorf("garbage accepted")
	}
}

func TestExecTemplate(t *testing.T) {
	sql, err := ExecTemplate("SELECT 1 {{- if .flag }} WHERE x = @x {{- end }}", map[string]interface{}{"flag": 0})
	if err != nil {
		t.Fatalf("ExecTemplate: %v", err)
	}
	if sql != "SELECT 1" {
		t.Errorf("falsy branch rendered: %q", sql)
	}

	sql, err = ExecTemplate("SELECT 1 {{- if .flag }} WHERE x = @x {{- end }}", map[string]interface{}{"flag": 5})
	if err != nil {
		t.Fatalf("ExecTemplate: %v", err)
	}
	if sql != "SELECT 1 WHERE x = @x" {
		t.Errorf("truthy branch missing: %q", sql)
	}
}

func TestGetTypeName(t *testing.T) {
	type widget struct{}
	if got := GetTypeName[widget](); got != "widget" {
		t.Errorf("got %q", got)
	}
}
