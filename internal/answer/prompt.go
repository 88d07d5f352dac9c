package answer

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// supportPrompt is the answer template. {context} and {question} are the
// only variables.
const supportPrompt = `You are a helpful customer support assistant. Use the following context to answer the user's question.

Context:
{context}

User Question: {question}

Instructions:
- Provide a clear, helpful answer based on the context
- If the context comes from a support ticket, acknowledge similar past issues
- Be concise but complete
- If you're not sure, say so

Answer:`

func newTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString, schema.UserMessage(supportPrompt))
}
