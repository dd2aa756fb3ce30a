package orchestrator

import (
	"fmt"
	"strings"

	"github.com/relaydesk/voicegate/internal/types"
)

// Two distinct prompt shapes: grounded when retrieval produced snippets,
// and an explicit no-context shape otherwise. The completion service must
// be told when no knowledge is available instead of receiving an empty
// context block.

const promptHeader = `You are the voice assistant for %s. You are speaking with a caller on the phone, so keep answers short and natural to say out loud.

If the caller asks to book an appointment and provides their name, phone number, the issue and a time, finish your reply with a line of the form:
ACTION: {"intent":"schedule_appointment","customer_name":"...","customer_phone":"...","issue_type":"...","scheduled_time":"RFC3339 timestamp"}
`

const groundedSection = `Answer the caller's question using the knowledge base context below. Prefer the context over general knowledge; if the context does not contain the answer, say that you are not sure.

Context:
%s`

const noContextSection = `No knowledge base context is available for this question. Answer from general knowledge and make clear that the answer does not come from the business's own information.`

// BuildPrompt composes the completion input for one turn
func BuildPrompt(namespace, utterance string, snippets []types.Snippet) string {
	var b strings.Builder
	fmt.Fprintf(&b, promptHeader, namespace)
	b.WriteString("\n")

	if len(snippets) > 0 {
		var ctx strings.Builder
		for _, s := range snippets {
			ctx.WriteString("- ")
			ctx.WriteString(s.Text)
			ctx.WriteString("\n")
		}
		fmt.Fprintf(&b, groundedSection, ctx.String())
	} else {
		b.WriteString(noContextSection)
	}

	b.WriteString("\n\nCaller: ")
	b.WriteString(utterance)
	return b.String()
}
