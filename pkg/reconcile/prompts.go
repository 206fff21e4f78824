package reconcile

import (
	"encoding/json"
	"strings"
)

// FactExtractionPrompt asks the model to pull standalone facts out of a conversation.
const FactExtractionPrompt = `You are a personal information organizer. You read a conversation and
write down the facts about the user that are worth remembering later:
preferences, personal details, plans, relationships, opinions, habits and
anything else that would help in future conversations.

Rules:
- Each fact is a short, self-contained statement in the language of the conversation.
- Only record information stated or clearly implied by the user.
- Ignore greetings, small talk and questions that reveal nothing about the user.
- If there is nothing worth remembering, return an empty list.

Respond with a JSON object of the form:
{"facts": ["fact one", "fact two"]}`

// MemoryUpdatePrompt asks the model to reconcile new facts with existing memories.
const MemoryUpdatePrompt = `You manage a store of memories. You are given the existing memories that
are related to some newly learned facts. Decide, for every new fact and every
existing memory, which operation keeps the store accurate and free of
duplicates:

- ADD: the fact is new information. Use a new id; the text is the fact.
- UPDATE: an existing memory covers the same subject but the fact adds to or
  corrects it. Keep the existing id, put the merged statement in "text" and the
  previous text in "old_memory".
- DELETE: the fact contradicts an existing memory so that it is no longer true.
  Use the existing id.
- NONE: the fact is already captured, or the existing memory is unaffected.

Only use ids that appear in the existing memories for UPDATE, DELETE and NONE.

Respond with a JSON object of the form:
{"memory": [{"id": "0", "text": "...", "event": "ADD|UPDATE|DELETE|NONE", "old_memory": "..."}]}`

// candidate is an existing memory shown to the model under a temporary id.
type candidate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// formatFactExtractionInput renders the conversation transcript for extraction.
func formatFactExtractionInput(transcript string) string {
	return "Extract the facts from this conversation:\n\n" + transcript
}

// formatMemoryUpdateInput renders existing memories and new facts for planning.
func formatMemoryUpdateInput(existing []candidate, facts []string) (string, error) {
	if existing == nil {
		existing = []candidate{}
	}
	memories, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return "", err
	}
	newFacts, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Existing memories:\n")
	b.Write(memories)
	b.WriteString("\n\nNew facts:\n")
	b.Write(newFacts)
	return b.String(), nil
}
