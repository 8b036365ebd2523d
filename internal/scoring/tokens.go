package scoring

// EstimateTokens approximates the token cost of text as length/4, the
// budgeting heuristic used for selection and compiled-cache sizing.
func EstimateTokens(text string) int {
	return len(text) / 4
}
