package embedding

// Info describes a registered embedding model. The declared dimension is
// authoritative when validating query vectors.
type Info struct {
	Dimension   int    `json:"dimension"`
	Description string `json:"description"`
}

// defaultModels is the static registry of models known to work well. The
// provider serves them through an OpenAI-compatible inference endpoint.
var defaultModels = map[string]Info{
	"all-MiniLM-L6-v2": {
		Dimension:   384,
		Description: "Good general purpose model, fast and efficient",
	},
	"paraphrase-MiniLM-L6-v2": {
		Dimension:   384,
		Description: "Optimized for paraphrase detection and similarity",
	},
	"all-mpnet-base-v2": {
		Dimension:   768,
		Description: "Higher quality, but slower and larger",
	},
}

// Models returns a copy of the model registry. No I/O.
func Models() map[string]Info {
	out := make(map[string]Info, len(defaultModels))
	for k, v := range defaultModels {
		out[k] = v
	}
	return out
}

// Lookup returns registry info for a model id.
func Lookup(modelID string) (Info, bool) {
	info, ok := defaultModels[modelID]
	return info, ok
}
