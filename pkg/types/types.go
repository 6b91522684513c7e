// Package types defines the shared data model for the vaultchat server.
package types

// Conversation is one chat thread with its metadata.
type Conversation struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	AutoTitle string           `json:"autoTitle,omitempty"`
	Mode      string           `json:"mode"`
	Knowledge []string         `json:"knowledge,omitempty"`
	Time      ConversationTime `json:"time"`
}

// ConversationTime holds creation/update timestamps in Unix milliseconds.
type ConversationTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Message is a single conversation turn.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"` // "user" or "assistant"
	Content        string `json:"content"`
	TokensUsed     int    `json:"tokensUsed,omitempty"`
	Created        int64  `json:"created"`
}

// Permissions are the user-facing capability switches. WriteFiles is kept in
// the shape for the wire contract but is never honored by the resolver.
type Permissions struct {
	WebSearch   bool `json:"webSearch" yaml:"webSearch"`
	VaultSearch bool `json:"vaultSearch" yaml:"vaultSearch"`
	ReadFiles   bool `json:"readFiles" yaml:"readFiles"`
	WriteFiles  bool `json:"writeFiles" yaml:"writeFiles"`
}

// Mode is a conversation preset: system prompt, model and capabilities.
type Mode struct {
	Name         string      `json:"name" yaml:"name"`
	Description  string      `json:"description,omitempty" yaml:"description"`
	SystemPrompt string      `json:"systemPrompt,omitempty" yaml:"systemPrompt"`
	Model        string      `json:"model,omitempty" yaml:"model"`
	Temperature  float64     `json:"temperature,omitempty" yaml:"temperature"`
	Permissions  Permissions `json:"permissions" yaml:"permissions"`
}

// KnowledgeResult is one hit from a vault search.
type KnowledgeResult struct {
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Matches int     `json:"matches"`
	Score   float64 `json:"score"`
}

// TokenEstimate is the result of a token estimation call.
type TokenEstimate struct {
	Tokens     int     `json:"tokens"`
	Characters int     `json:"characters"`
	Ratio      float64 `json:"ratio"`
	Cached     bool    `json:"cached"`
}
