// Package inference talks to an OpenAI-compatible chat-completions
// endpoint that accepts image input (LM Studio, Ollama, vLLM, llama.cpp
// server and friends).
//
// One exchange per call: an instruction plus a single frame goes out,
// a short text reply comes back. There is no streaming, batching, or
// retry; a failed request surfaces as an error and the caller decides
// what to do on the next tick.
//
// Example:
//
//	client := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:1234"),
//	    inference.WithModel("qwen/qwen2.5-vl-7b"),
//	)
//	defer client.Close()
//
//	resp, err := client.Describe(ctx, &inference.Request{
//	    Instruction:  "What do you see?",
//	    ImageDataURL: frame,
//	})
package inference

// Request is one instruction-plus-frame exchange. Ephemeral: built and
// consumed per tick, never persisted.
type Request struct {
	// Instruction is the text part of the user message.
	Instruction string

	// ImageDataURL is the frame as a base64 JPEG data URL.
	ImageDataURL string

	// Model overrides the client's default model.
	Model string

	// MaxTokens overrides the default reply token limit.
	MaxTokens int
}

// Response is the model's reply.
type Response struct {
	// Reply is the text content of the first choice, or EmptyReply
	// when the endpoint returned no content.
	Reply string

	// Model reported by the endpoint.
	Model string

	// Usage tracks token consumption.
	Usage Usage

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// EmptyReply is returned instead of an error when the endpoint answers
// 200 with no choice content.
const EmptyReply = "(no reply from model)"
