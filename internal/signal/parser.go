package signal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ParseRaw decodes an inbound signal document. Providers wrap the payload in
// different envelopes ({"signal": {...}} or a bare object), so extraction is
// lenient; the schema check afterwards is strict.
func ParseRaw(raw []byte) (TradingSignal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return TradingSignal{}, fmt.Errorf("signal payload is empty")
	}
	if !gjson.Valid(text) {
		return TradingSignal{}, fmt.Errorf("signal payload is not valid JSON")
	}

	parsed := gjson.Parse(text)
	if inner := parsed.Get("signal"); inner.Exists() && inner.IsObject() {
		parsed = inner
	}
	if !parsed.IsObject() {
		return TradingSignal{}, fmt.Errorf("signal root must be a JSON object")
	}

	var doc any
	if err := json.Unmarshal([]byte(parsed.Raw), &doc); err != nil {
		return TradingSignal{}, fmt.Errorf("decoding signal failed: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return TradingSignal{}, err
	}

	sig := TradingSignal{
		ID:               uuid.NewString(),
		Symbol:           strings.ToUpper(strings.TrimSpace(parsed.Get("symbol").String())),
		Direction:        strings.ToLower(strings.TrimSpace(parsed.Get("direction").String())),
		Entry:            parsed.Get("entry").Float(),
		OriginalStopLoss: parsed.Get("stop_loss").Float(),
		OriginalLeverage: int(parsed.Get("leverage").Int()),
	}
	parsed.Get("targets").ForEach(func(_, v gjson.Result) bool {
		sig.Targets = append(sig.Targets, v.Float())
		return true
	})
	if id := strings.TrimSpace(parsed.Get("signal_id").String()); id != "" {
		sig.ID = id
	}
	return sig, nil
}
