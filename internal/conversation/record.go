package conversation

import "github.com/MikeSquared-Agency/arbiter/internal/extract"

// Column names read from the session records CSV.
const (
	ColID                  = "id"
	ColConversationA       = "conversation_a"
	ColConversationB       = "conversation_b"
	ColModelA              = "model_a"
	ColModelB              = "model_b"
	ColWinner              = "winner"
	ColTimestamp           = "timestamp"
	ColEvaluationOrder     = "evaluation_order"
	ColEvaluationSessionID = "evaluation_session_id"
)

// RawRow is one CSV row keyed by header name.
type RawRow map[string]string

// Get returns the value for col, or "" when the column is absent.
func (r RawRow) Get(col string) string {
	return r[col]
}

// Record is one pairwise comparison turn. Extracted fields are "" when the
// payload held nothing recoverable.
type Record struct {
	ID              string `json:"id"`
	UserPrompt      string `json:"user_prompt"`
	ModelA          string `json:"model_a"`
	ModelB          string `json:"model_b"`
	ResponseA       string `json:"response_a"`
	ResponseB       string `json:"response_b"`
	Winner          string `json:"winner"`
	Timestamp       string `json:"timestamp"`
	EvaluationOrder string `json:"evaluation_order"`
}

// Collection is a list of records in evaluation order.
type Collection []Record

// Assemble builds a Record from one row. Both conversation columns carry the
// same user turn, so the prompt is read from conversation_a only.
func Assemble(row RawRow) Record {
	convA := row.Get(ColConversationA)
	return Record{
		ID:              row.Get(ColID),
		UserPrompt:      extract.UserPrompt(convA),
		ModelA:          row.Get(ColModelA),
		ModelB:          row.Get(ColModelB),
		ResponseA:       extract.AssistantResponse(convA),
		ResponseB:       extract.AssistantResponse(row.Get(ColConversationB)),
		Winner:          row.Get(ColWinner),
		Timestamp:       row.Get(ColTimestamp),
		EvaluationOrder: row.Get(ColEvaluationOrder),
	}
}
