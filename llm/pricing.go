package llm

// catalog is the static model registry the router's candidate
// selection and cost computation consult. Entries and prices are
// representative, not live-synced to provider pricing pages.
var catalog = []ModelInfo{
	{Provider: "openai", Model: "gpt-4o", Tier: TierFlagship, SupportsVision: true, SupportsTools: true, InputCostPerM: 2.50, OutputCostPerM: 10.00},
	{Provider: "openai", Model: "gpt-4o-mini", Tier: TierStandard, SupportsVision: true, SupportsTools: true, InputCostPerM: 0.15, OutputCostPerM: 0.60},
	{Provider: "anthropic", Model: "claude-3-5-sonnet", Tier: TierFlagship, SupportsVision: true, SupportsTools: true, InputCostPerM: 3.00, OutputCostPerM: 15.00},
	{Provider: "anthropic", Model: "claude-3-haiku", Tier: TierBasic, SupportsVision: true, SupportsTools: true, InputCostPerM: 0.25, OutputCostPerM: 1.25},
	{Provider: "google", Model: "gemini-1.5-pro", Tier: TierAdvanced, SupportsVision: true, SupportsTools: true, InputCostPerM: 1.25, OutputCostPerM: 5.00},
	{Provider: "google", Model: "gemini-1.5-flash", Tier: TierStandard, SupportsVision: true, SupportsTools: true, InputCostPerM: 0.075, OutputCostPerM: 0.30},
	{Provider: "ollama", Model: "llama3.1", Tier: TierBasic, SupportsVision: false, SupportsTools: true, InputCostPerM: 0, OutputCostPerM: 0},
}

// ModelCatalog returns the static price/capability table.
func ModelCatalog() []ModelInfo {
	out := make([]ModelInfo, len(catalog))
	copy(out, catalog)
	return out
}

// LookupModel finds a catalog entry for provider/model, returning ok=false
// for unknown pairs (e.g. a self-hosted or local-only model).
func LookupModel(provider, model string) (ModelInfo, bool) {
	for _, m := range catalog {
		if m.Provider == provider && m.Model == model {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ComputeCost applies the per-model price table to an input/output
// token split; unknown models cost 0 rather than erroring, since a
// local model with no catalog entry is still a valid candidate.
func ComputeCost(provider, model string, promptTokens, completionTokens int) float64 {
	info, ok := LookupModel(provider, model)
	if !ok {
		return 0
	}
	return float64(promptTokens)/1_000_000*info.InputCostPerM +
		float64(completionTokens)/1_000_000*info.OutputCostPerM
}
