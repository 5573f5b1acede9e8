package reasoning

import "encoding/json"

// ToolRequest names a tool and carries its raw JSON input.
type ToolRequest struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// Decision is the model's choice for one loop iteration:
// either a tool to run or a final answer.
type Decision struct {
	Thought     string       `json:"thought"`
	Action      *ToolRequest `json:"action,omitempty"`
	FinalAnswer string       `json:"final_answer,omitempty"`
}

// Verification is the outcome of the answer self-check.
type Verification struct {
	Supported bool   `json:"supported"`
	Reason    string `json:"reason"`
}
