// Package services holds the completion backends and the helpers they share.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers, the selected
//     provider, and the report section for logging.
//   - One subpackage per backend (claude, deepseek, gemini, glm, volcengine,
//     siliconflow), each implementing ai.Service.
//   - openaicompat, the chat-completions transport reused by every
//     OpenAI-shaped backend.
//
// Backends perform exactly one exchange per call. Serialization, spacing, and
// retries are applied by the governor one level up.
package services
