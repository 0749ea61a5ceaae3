package chat

const (
	// DefaultProject is selected before the user picks a project.
	DefaultProject = "default"
	// DefaultThreadID is shown when a project has no threads.
	DefaultThreadID = "chat1"
	// ThreadPrefix prefixes generated thread ids (chat1, chat2, ...).
	ThreadPrefix = "chat"
	// MaxThreads caps the number of threads held in one session.
	MaxThreads = 10
)

// Turn is one prompt/response exchange. The backend may attach the model
// parameters that produced it.
type Turn struct {
	Prompt           string   `json:"prompt,omitempty"`
	Response         string   `json:"response,omitempty"`
	Model            string   `json:"model,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// Transcript is the ordered turn sequence of one thread.
type Transcript []Turn

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return Transcript{}
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Model            string  `json:"model"`
	Prompt           string  `json:"prompt"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	TopK             int     `json:"top_k"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	ChatID           string  `json:"chat_id"`
	ProjectID        string  `json:"project_id"`
}
