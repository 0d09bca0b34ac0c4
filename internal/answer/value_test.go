package answer

import (
	"encoding/json"
	"testing"
)

func TestValue_IsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  bool
	}{
		{"null", Null{}, true},
		{"empty text", Text(""), true},
		{"whitespace text", Text(" "), false},
		{"text", Text("x"), false},
		{"zero number", Number(0), false},
		{"false bool", Bool(false), false},
		{"empty list", List{}, true},
		{"nil list", List(nil), true},
		{"list", List{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		value Value
		want  string
	}{
		{Text("Hello"), "Hello"},
		{Number(5), "5"},
		{Number(2.5), "2.5"},
		{Bool(true), "true"},
		{List{"a", "b"}, "a,b"},
		{Null{}, ""},
	}

	for _, tt := range tests {
		if got := tt.value.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		value  Value
		want   float64
		wantOK bool
	}{
		{Number(3), 3, true},
		{Text(" 42.5 "), 42.5, true},
		{Text("abc"), 0, false},
		{Bool(true), 0, false},
		{List{"1"}, 0, false},
		{Null{}, 0, false},
	}

	for _, tt := range tests {
		got, ok := Float(tt.value)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Float(%#v) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFromAny(t *testing.T) {
	if _, ok := FromAny(nil).(Null); !ok {
		t.Error("FromAny(nil) should be Null")
	}
	if got := FromAny("x"); got != Text("x") {
		t.Errorf("FromAny(string) = %#v", got)
	}
	if got := FromAny(float64(7)); got != Number(7) {
		t.Errorf("FromAny(float64) = %#v", got)
	}
	if got := FromAny(true); got != Bool(true) {
		t.Errorf("FromAny(bool) = %#v", got)
	}

	list, ok := FromAny([]any{"a", float64(2), true}).(List)
	if !ok {
		t.Fatal("FromAny([]any) should be List")
	}
	if list.String() != "a,2,true" {
		t.Errorf("list = %q, want %q", list.String(), "a,2,true")
	}
}

func TestMap_UnmarshalJSON(t *testing.T) {
	var m Map
	body := `{"country":"US","age":31,"agree":true,"tags":["x","y, z"],"missing":null}`
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m.Get("country") != Text("US") {
		t.Errorf("country = %#v", m.Get("country"))
	}
	if m.Get("age") != Number(31) {
		t.Errorf("age = %#v", m.Get("age"))
	}
	if m.Get("agree") != Bool(true) {
		t.Errorf("agree = %#v", m.Get("agree"))
	}
	if tags, ok := m.Get("tags").(List); !ok || len(tags) != 2 || tags[1] != "y, z" {
		t.Errorf("tags = %#v", m.Get("tags"))
	}
	if !IsNull(m.Get("missing")) {
		t.Errorf("missing = %#v, want Null", m.Get("missing"))
	}
	if !IsNull(m.Get("never-set")) {
		t.Error("Get on absent key should return Null")
	}
}

func TestMerge_OverlayWins(t *testing.T) {
	base := Map{"a": Text("stored"), "b": Text("keep")}
	overlay := Map{"a": Text("edited"), "c": Number(1)}

	merged := Merge(base, overlay)

	if merged.Get("a") != Text("edited") {
		t.Errorf("a = %#v, want edited", merged.Get("a"))
	}
	if merged.Get("b") != Text("keep") {
		t.Errorf("b = %#v, want keep", merged.Get("b"))
	}
	if merged.Get("c") != Number(1) {
		t.Errorf("c = %#v, want 1", merged.Get("c"))
	}
	if base.Get("a") != Text("stored") {
		t.Error("Merge must not modify base")
	}
}

func TestMap_NonEmpty(t *testing.T) {
	if (Map{"a": Text(""), "b": Null{}}).NonEmpty() {
		t.Error("map of empty answers should not be NonEmpty")
	}
	if !(Map{"a": Text(""), "b": Number(0)}).NonEmpty() {
		t.Error("map with a number answer should be NonEmpty")
	}
}
