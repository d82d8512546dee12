package okx

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"tickflow/models"
)

type optSummaryPayload struct {
	InstID     string `json:"instId"`
	Underlying string `json:"uly"`
	Delta      string `json:"delta"`
	Gamma      string `json:"gamma"`
	Vega       string `json:"vega"`
	Theta      string `json:"theta"`
	MarkVol    string `json:"markVol"`
	BidVol     string `json:"bidVol"`
	AskVol     string `json:"askVol"`
	ForwardPx  string `json:"fwdPx"`
	TS         string `json:"ts"`
}

// OptionSummaryMapper translates the opt-summary channel. Option type,
// strike and expiry are encoded in the instrument id
// (BTC-USD-241227-60000-C); OKX options expire at 08:00 UTC.
type OptionSummaryMapper struct{}

func NewOptionSummaryMapper() *OptionSummaryMapper { return &OptionSummaryMapper{} }

func (m *OptionSummaryMapper) CanHandle(raw []byte) bool {
	env, ok := decodeEnvelope(raw)
	return ok && env.Arg.Channel == "opt-summary"
}

func (m *OptionSummaryMapper) Filters(symbols []string) []models.Filter {
	return []models.Filter{{Channel: "opt-summary", Symbols: symbols}}
}

func (m *OptionSummaryMapper) Map(raw []byte, localTimestamp time.Time) ([]models.Event, error) {
	env, ok := decodeEnvelope(raw)
	if !ok {
		return nil, nil
	}
	var pages []optSummaryPayload
	if err := json.Unmarshal(env.Data, &pages); err != nil {
		return nil, nil
	}

	events := make([]models.Event, 0, len(pages))
	for _, p := range pages {
		optionType, strike, expiry := parseOptionInstrument(p.InstID)
		timestamp := localTimestamp
		if ts, ok := parseMillis(p.TS); ok {
			timestamp = ts
		}
		events = append(events, &models.OptionSummary{
			Symbol:          p.InstID,
			Exchange:        Exchange,
			OptionType:      optionType,
			StrikePrice:     strike,
			Expiry:          expiry,
			BestBidIV:       parseOptional(p.BidVol),
			BestAskIV:       parseOptional(p.AskVol),
			MarkIV:          parseOptional(p.MarkVol),
			UnderlyingPrice: parseOptional(p.ForwardPx),
			UnderlyingIndex: p.Underlying,
			Delta:           parseOptional(p.Delta),
			Gamma:           parseOptional(p.Gamma),
			Vega:            parseOptional(p.Vega),
			Theta:           parseOptional(p.Theta),
			Timestamp:       timestamp,
			LocalTimestamp:  localTimestamp,
		})
	}
	return events, nil
}

func (m *OptionSummaryMapper) Reset() {}

func parseOptionInstrument(instID string) (optionType string, strike *float64, expiry *time.Time) {
	parts := strings.Split(instID, "-")
	if len(parts) < 5 {
		return "", nil, nil
	}
	switch parts[len(parts)-1] {
	case "C":
		optionType = "call"
	case "P":
		optionType = "put"
	}
	if v, err := strconv.ParseFloat(parts[len(parts)-2], 64); err == nil {
		strike = &v
	}
	if day, err := time.Parse("060102", parts[len(parts)-3]); err == nil {
		e := day.Add(8 * time.Hour)
		expiry = &e
	}
	return optionType, strike, expiry
}
