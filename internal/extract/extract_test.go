package extract

import (
	"reflect"
	"testing"
)

var recSchema = Schema{Fields: []Field{
	{Name: "name", Required: true},
	{Name: "tier", Required: true, Allowed: []string{"high", "low"}},
	{Name: "notes"},
}}

const recPayload = `{"name": "acme", "tier": "high", "notes": "fine"}`

func TestExtractWrappingEquivalence(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"labeled_fence", "Here is the result:\n```json\n" + recPayload + "\n```\nDone."},
		{"bare_fence", "```\n" + recPayload + "\n```"},
		{"prose_embedded", "Sure! Based on the analysis, " + recPayload + " covers it."},
		{"verbatim", recPayload},
	}
	want := map[string]any{"name": "acme", "tier": "high", "notes": "fine"}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.raw, recSchema)
			if got.Degraded {
				t.Fatalf("degraded: %s", got.Failure)
			}
			if !reflect.DeepEqual(got.Record, want) {
				t.Errorf("record=%v want=%v", got.Record, want)
			}
		})
	}
}

func TestExtractMalformedFallsBack(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose_only", "I could not produce the requested structure."},
		{"truncated_json", `{"name": "acme", "tier": `},
		{"unbalanced_fence", "```json\n{\"name\": \"acme\""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.raw, recSchema)
			if !got.Degraded {
				t.Fatalf("expected degraded result, got record %v", got.Record)
			}
			if got.Failure == "" {
				t.Error("expected a failure reason")
			}
			for _, f := range recSchema.Fields {
				if got.Record[f.Name] != Sentinel {
					t.Errorf("field %s=%v want sentinel", f.Name, got.Record[f.Name])
				}
			}
		})
	}
}

func TestExtractMissingRequiredFieldFallsBack(t *testing.T) {
	got := Extract(`{"tier": "high"}`, recSchema)
	if !got.Degraded {
		t.Fatal("expected degraded result for missing required field")
	}
}

func TestExtractEnumViolationFallsBack(t *testing.T) {
	got := Extract(`{"name": "acme", "tier": "medium"}`, recSchema)
	if !got.Degraded {
		t.Fatal("expected degraded result for enum violation")
	}
}

func TestExtractOptionalFieldFilledWithNull(t *testing.T) {
	got := Extract(`{"name": "acme", "tier": "low"}`, recSchema)
	if got.Degraded {
		t.Fatalf("degraded: %s", got.Failure)
	}
	v, ok := got.Record["notes"]
	if !ok {
		t.Fatal("optional field absent from record")
	}
	if v != nil {
		t.Errorf("notes=%v want nil", v)
	}
}

func TestExtractParsedButInvalidDoesNotTryLaterSteps(t *testing.T) {
	// The fence parses but violates the enum; the balanced span inside
	// the prose would validate. Validation failure must route to the
	// fallback, not fall through.
	raw := "```json\n" + `{"name": "acme", "tier": "medium"}` + "\n```\n" +
		`{"name": "acme", "tier": "high"}`
	got := Extract(raw, recSchema)
	if !got.Degraded {
		t.Fatalf("expected degraded result, got record %v", got.Record)
	}
}

func TestExtractFirstBalancedSpanWins(t *testing.T) {
	raw := `First {"name": "acme", "tier": "high"} then {"name": "other", "tier": "low"}`
	got := Extract(raw, recSchema)
	if got.Degraded {
		t.Fatalf("degraded: %s", got.Failure)
	}
	if got.Record["name"] != "acme" {
		t.Errorf("name=%v want acme", got.Record["name"])
	}
}

func TestExtractBalancedSpanHonorsStringLiterals(t *testing.T) {
	raw := `Result: {"name": "brace } inside", "tier": "low", "notes": "x"}`
	got := Extract(raw, recSchema)
	if got.Degraded {
		t.Fatalf("degraded: %s", got.Failure)
	}
	if got.Record["name"] != "brace } inside" {
		t.Errorf("name=%v", got.Record["name"])
	}
}

func TestDecodeIntoRefusesDegraded(t *testing.T) {
	got := Extract("nonsense", recSchema)
	var out struct{ Name string }
	if err := got.DecodeInto(&out); err == nil {
		t.Fatal("expected DecodeInto to refuse a degraded record")
	}
}

func TestDecodeIntoTyped(t *testing.T) {
	got := Extract(recPayload, recSchema)
	var out struct {
		Name  string `json:"name"`
		Tier  string `json:"tier"`
		Notes string `json:"notes"`
	}
	if err := got.DecodeInto(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != "acme" || out.Tier != "high" || out.Notes != "fine" {
		t.Errorf("decoded=%+v", out)
	}
}
