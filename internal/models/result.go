package models

// ResultKind tags the shape of a terminal result. Both the cache writer
// and the query aggregator switch on it instead of sniffing payload keys.
type ResultKind string

const (
	// KindGeneration is a normal generation run: one cache element per
	// produced audio artifact.
	KindGeneration ResultKind = "generation"
	// KindFullAnalysis is an audio-understanding run whose single result
	// payload is passed through to clients verbatim.
	KindFullAnalysis ResultKind = "full_analysis"
)

// Metas is the metadata block attached to generation results and cache
// entries.
type Metas struct {
	BPM           int     `json:"bpm,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	Genres        string  `json:"genres,omitempty"`
	Keyscale      string  `json:"keyscale,omitempty"`
	Timesignature string  `json:"timesignature,omitempty"`
	Prompt        string  `json:"prompt,omitempty"`
	Lyrics        string  `json:"lyrics,omitempty"`
}

// GenerationResult is the structured payload of a succeeded job.
type GenerationResult struct {
	Kind           ResultKind     `json:"kind"`
	StatusMessage  string         `json:"status_message"`
	AudioPaths     []string       `json:"audio_paths"`
	GenerationInfo string         `json:"generation_info,omitempty"`
	SeedValue      string         `json:"seed_value,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	Lyrics         string         `json:"lyrics,omitempty"`
	Metas          Metas          `json:"metas"`
	LMModel        string         `json:"lm_model,omitempty"`
	DiTModel       string         `json:"dit_model,omitempty"`
	Analysis       map[string]any `json:"analysis,omitempty"`
}

// CacheEntry is one element of the JSON array published to the result
// cache under {prefix}{job_id}. The list wrapping gives polling clients
// a uniform shape across progress and terminal payloads.
type CacheEntry struct {
	File           string  `json:"file"`
	Wave           string  `json:"wave"`
	Status         int     `json:"status"`
	CreateTime     int64   `json:"create_time"`
	Env            string  `json:"env"`
	Prompt         string  `json:"prompt,omitempty"`
	Lyrics         string  `json:"lyrics,omitempty"`
	Metas          *Metas  `json:"metas,omitempty"`
	GenerationInfo string  `json:"generation_info,omitempty"`
	SeedValue      string  `json:"seed_value,omitempty"`
	LMModel        string  `json:"lm_model,omitempty"`
	DiTModel       string  `json:"dit_model,omitempty"`
	Progress       float64 `json:"progress"`
	Stage          string  `json:"stage"`
	Error          string  `json:"error,omitempty"`
}
