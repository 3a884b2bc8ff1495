package nlu

import "testing"

func TestResolveAction(t *testing.T) {
	tests := []struct {
		name   string
		intent string
		action string
		want   string
	}{
		{"action preserved", "orderPizza", "order.create", "order.create"},
		{"empty action falls back to intent", "bookFlight", "", "bookFlight"},
		{"unknown sentinel maps to default", "Fallback", UnknownActionSentinel, DefaultAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveAction(tt.intent, tt.action); got != tt.want {
				t.Errorf("ResolveAction(%q, %q) = %q, want %q", tt.intent, tt.action, got, tt.want)
			}
		})
	}
}

func TestStripBlankParameters(t *testing.T) {
	got := StripBlankParameters(map[string]string{
		"size":    "large",
		"topping": "",
		"qty":     "2",
	})

	if len(got) != 2 || got["size"] != "large" || got["qty"] != "2" {
		t.Errorf("StripBlankParameters = %v", got)
	}
}

func TestParseModelClassification(t *testing.T) {
	cls, err := parseModelClassification("```json\n{\"intent\":\"greet\",\"action\":\"\",\"parameters\":{\"name\":\"ada\",\"blank\":\"\"},\"response\":\"hi!\"}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if cls.Intent != "greet" || cls.Action != "greet" {
		t.Errorf("classification = %+v", cls)
	}
	if cls.Parameters["name"] != "ada" {
		t.Errorf("parameters = %v", cls.Parameters)
	}
	if _, ok := cls.Parameters["blank"]; ok {
		t.Error("blank parameter should be stripped")
	}
	if !cls.Fulfillment.NotEmpty() {
		t.Error("response text should populate fulfillment")
	}
}

func TestParseModelClassificationGarbage(t *testing.T) {
	cls, err := parseModelClassification("sorry, I can't help with that")
	if err != nil {
		t.Fatal(err)
	}
	if cls.Intent != DefaultIntent || cls.Action != DefaultAction {
		t.Errorf("garbage output should degrade to default, got %+v", cls)
	}
}

func TestDefaultClassification(t *testing.T) {
	cls := DefaultClassification()
	if cls.Intent != DefaultIntent || cls.Action != DefaultAction {
		t.Errorf("DefaultClassification = %+v", cls)
	}
	if cls.Fulfillment.NotEmpty() {
		t.Error("default classification must not carry fulfillment")
	}
}
