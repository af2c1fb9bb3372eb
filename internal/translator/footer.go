package translator

import (
	"regexp"
	"strings"
)

var quantizationSuffix = regexp.MustCompile(`(?i)[-:](q[0-9].*|fp16|int8|gguf|awq|gptq)$`)

// ShortModelName strips trailing quantization/format suffixes from a model
// id, e.g. "llama-3.1-70b-q4_k_m" -> "llama-3.1-70b".
func ShortModelName(model string) string {
	return quantizationSuffix.ReplaceAllString(model, "")
}

// AppendAttributionFooter adds the model attribution line the spec
// requires on every end-of-stream and buffered response.
func AppendAttributionFooter(text, model string) string {
	short := ShortModelName(model)
	if short == "" {
		return text
	}
	return strings.TrimRight(text, "\n") + "\n\n_[via " + short + "]_"
}
