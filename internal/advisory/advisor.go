// Package advisory holds the generative AI features: asset growth advice,
// receipt scanning and the farm forecast. Everything here is advisory
// only; output is schema-checked, returned to the caller for review and
// never written into the ledger directly. The model is unreliable by
// contract, so failures must degrade the feature, not the dashboard.
package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"casacore/internal/core"
)

const requestTimeout = 30 * time.Second

type Advisor struct {
	client *genai.Client
	model  string
}

func NewAdvisor(ctx context.Context, model string) (*Advisor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Advisor{client: client, model: model}, nil
}

// GrowthAdvice is the model's estimate for one asset. The rate is a
// suggestion to store on the asset, never applied automatically.
type GrowthAdvice struct {
	AnnualGrowthPct   decimal.Decimal `json:"annual_growth_pct"`
	Reasoning         string          `json:"reasoning"`
	HistoricalContext string          `json:"historical_context"`
}

// ReceiptLine is one candidate transaction extracted from a receipt
// image. The user confirms or discards each line before anything is
// recorded.
type ReceiptLine struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
}

// FarmForecast is the projected milk output for the coming season.
type FarmForecast struct {
	ForecastLiters     decimal.Decimal `json:"forecast_liters"`
	ConfidenceInterval string          `json:"confidence_interval"`
	Assumptions        string          `json:"assumptions"`
}

const strictJSONRules = "Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n"

// AssetGrowthAdvice asks the model for a growth estimate for one asset.
func (a *Advisor) AssetGrowthAdvice(ctx context.Context, asset core.Asset) (GrowthAdvice, error) {
	prompt := "You are a conservative financial advisor estimating long-term asset appreciation.\n\n" +
		"Task:\n" +
		"- Estimate a realistic annual growth rate for the asset below.\n" +
		"- Output a single JSON object with these fields:\n" +
		"- \"annual_growth_pct\": number (percent per year, e.g. 3.5)\n" +
		"- \"reasoning\": string (2-3 sentences)\n" +
		"- \"historical_context\": string (comparable market data you relied on)\n\n" +
		strictJSONRules +
		"Output must begin with \"{\" and end with \"}\".\n\n" +
		fmt.Sprintf("Asset: %s (%s) in %q, purchased %s for %s %s, current value %s %s.\n",
			asset.Name, asset.Type, asset.Location,
			asset.PurchaseDate.Format("2006-01-02"),
			asset.PurchasePrice, asset.Currency,
			asset.CurrentValue, asset.Currency)

	var advice GrowthAdvice
	if err := a.generateJSON(ctx, []*genai.Part{{Text: prompt}}, &advice); err != nil {
		return GrowthAdvice{}, err
	}
	return advice, nil
}

// ScanReceipt extracts candidate transactions from a receipt image.
func (a *Advisor) ScanReceipt(ctx context.Context, image []byte, mimeType string) ([]ReceiptLine, error) {
	prompt := "You are a receipt parser for a household expense tracker.\n\n" +
		"Task:\n" +
		"- Extract every purchase line from the attached receipt image.\n" +
		"- Output a JSON array of objects with these fields:\n" +
		"- \"date\": string, ISO format \"YYYY-MM-DD\" (receipt date for every line)\n" +
		"- \"description\": string\n" +
		"- \"amount\": number (always positive)\n" +
		"- \"currency\": string (e.g. \"EUR\", \"NOK\")\n" +
		"- \"category\": string (a short household category like \"Groceries\")\n\n" +
		strictJSONRules +
		"Output must begin with \"[\" and end with \"]\".\n"

	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
	}

	var lines []ReceiptLine
	if err := a.generateJSON(ctx, parts, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// Forecast projects next-season farm output from the operation history.
func (a *Advisor) Forecast(ctx context.Context, ops []core.FarmOperation) (FarmForecast, error) {
	history, err := json.Marshal(farmHistory(ops))
	if err != nil {
		return FarmForecast{}, fmt.Errorf("encode farm history: %w", err)
	}

	prompt := "You are an agricultural analyst forecasting dairy output for a small farm.\n\n" +
		"Task:\n" +
		"- Project next season's milk production from the operation history below.\n" +
		"- Output a single JSON object with these fields:\n" +
		"- \"forecast_liters\": number\n" +
		"- \"confidence_interval\": string (e.g. \"12000-15000 liters\")\n" +
		"- \"assumptions\": string\n\n" +
		strictJSONRules +
		"Output must begin with \"{\" and end with \"}\".\n\n" +
		"Operation history (JSON): " + string(history) + "\n"

	var forecast FarmForecast
	if err := a.generateJSON(ctx, []*genai.Part{{Text: prompt}}, &forecast); err != nil {
		return FarmForecast{}, err
	}
	return forecast, nil
}

func (a *Advisor) generateJSON(ctx context.Context, parts []*genai.Part, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return fmt.Errorf("generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return fmt.Errorf("empty response from model")
	}

	clean := cleanModelJSON(rawText)
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return fmt.Errorf("unmarshal model JSON: %w\nraw response: %s", err, rawText)
	}
	return nil
}

func farmHistory(ops []core.FarmOperation) []map[string]any {
	history := make([]map[string]any, 0, len(ops))
	for _, op := range ops {
		history = append(history, map[string]any{
			"date":        op.Date.Format("2006-01-02"),
			"type":        string(op.Type),
			"category":    op.Category,
			"amount":      op.Amount.String(),
			"description": op.Description,
		})
	}
	return history
}

// cleanModelJSON strips Markdown fences and surrounding junk if the
// model ignored the formatting instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	// Remove trailing ``` if present.
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only the outermost JSON value if there is still junk around it.
	// Whichever bracket appears first decides whether we trim to an
	// object or an array.
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")
	opener, closer := "{", "}"
	if arrStart != -1 && (objStart == -1 || arrStart < objStart) {
		opener, closer = "[", "]"
	}
	start := strings.Index(s, opener)
	end := strings.LastIndex(s, closer)
	if start != -1 && end > start {
		return strings.TrimSpace(s[start : end+1])
	}

	return s
}
