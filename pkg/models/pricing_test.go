package models

import (
	"encoding/json"
	"testing"
)

// Rule expressions arrive as inline JSON objects in the request body, not
// as base64 strings, and must survive a decode untouched.
func TestCalculateRequestDecodesInlineRuleExpression(t *testing.T) {
	body := []byte(`{
		"proposalId": "p-1",
		"tenantId": "t-1",
		"rules": [
			{
				"modifierId": "m1",
				"expression": {"op": "gte", "left": {"op": "field", "path": "computed.subtotal"}, "right": {"op": "literal", "value": 100}}
			}
		]
	}`)

	var req CalculateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(req.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(req.Rules))
	}

	var expr map[string]interface{}
	if err := json.Unmarshal(req.Rules[0].Expression, &expr); err != nil {
		t.Fatalf("expression did not survive as a JSON object: %v", err)
	}
	if expr["op"] != "gte" {
		t.Errorf("expression op = %v, want gte", expr["op"])
	}

	out, err := json.Marshal(req.Rules[0])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back Rule
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-decode failed: %v", err)
	}
	if string(back.Expression) != string(req.Rules[0].Expression) {
		t.Errorf("expression changed across a round trip: %s", back.Expression)
	}
}
