package agentruntime

type TokenRates struct {
	Input  float64
	Output float64
}

// Pricing constants in dollars per million tokens
const (
	GPT4oInputRate          = 2.5
	GPT4oOutputRate         = 10.0
	GPT4oMiniInputRate      = 0.15
	GPT4oMiniOutputRate     = 0.60
	DeepSeekV31InputRate    = 0.27
	DeepSeekV31OutputRate   = 1.0
	ClaudeSonnet4InputRate  = 3.0
	ClaudeSonnet4OutputRate = 15.0
)

// ModelPricings is a map of model names to their pricing information
var ModelPricings = map[string]TokenRates{
	"gpt-4o": {
		Input:  GPT4oInputRate,
		Output: GPT4oOutputRate,
	},
	"gpt-4o-mini": {
		Input:  GPT4oMiniInputRate,
		Output: GPT4oMiniOutputRate,
	},
	"deepseek/deepseek-v3.1-terminus": {
		Input:  DeepSeekV31InputRate,
		Output: DeepSeekV31OutputRate,
	},
	"deepseek/deepseek-v3.1": {
		Input:  DeepSeekV31InputRate,
		Output: DeepSeekV31OutputRate,
	},
	"claude-sonnet-4-20250514": {
		Input:  ClaudeSonnet4InputRate,
		Output: ClaudeSonnet4OutputRate,
	},
}

// CostDetails represents detailed cost information for a session
type CostDetails struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// Cost returns the accumulated cost of the session, priced with the session model's rates.
// It reports false when the model has no known pricing.
func (s *Session) Cost() (*CostDetails, bool) {
	pricing, exists := ModelPricings[s.model.Name()]
	if !exists {
		return nil, false
	}

	usage := s.Usage()
	inputCost := float64(usage.InputTokens) * pricing.Input / 1000000
	outputCost := float64(usage.OutputTokens) * pricing.Output / 1000000

	return &CostDetails{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalCost:    inputCost + outputCost,
	}, true
}
