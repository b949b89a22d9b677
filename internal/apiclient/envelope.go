package apiclient

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Every backend response looks like {"code": 1000, "message": "...", "result": ...}.
// Anything else is passed through untouched.
type envelope struct {
	Code    int
	Message string
	Result  json.RawMessage
}

// parseEnvelope returns ok=false when body is not a JSON object with a code field. Message and
// result are still filled in from any JSON object, error bodies often carry a message alone.
func parseEnvelope(body []byte) (envelope, bool) {
	var env envelope

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return env, false
	}

	if rawMsg, ok := fields["message"]; ok {
		var msg string
		if json.Unmarshal(rawMsg, &msg) == nil {
			env.Message = msg
		}
	}
	env.Result = fields["result"]

	rawCode, ok := fields["code"]
	if !ok {
		return env, false
	}
	env.Code = parseCode(rawCode)

	return env, true
}

// Codes are numbers, but some services send them quoted. A code that is neither becomes 0,
// which is never the success code.
func parseCode(raw json.RawMessage) int {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
	}

	return 0
}
