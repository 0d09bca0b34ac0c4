package validation

import (
	"github.com/hyperengineering/formpath/internal/types"
)

// MaxIdentifierLength bounds client supplied ids.
const MaxIdentifierLength = 128

// ValidateRenderRequest checks the body of a render call.
func ValidateRenderRequest(req types.RenderRequest) []ValidationError {
	var c Collector
	validateIdentifier(&c, "form_id", req.FormID, true)
	validateIdentifier(&c, "session_id", req.SessionID, true)
	validateAnswerNames(&c, req.CurrentAnswers.Names())
	return c.Errors()
}

// ValidateCreateSessionRequest checks the body of a session creation call.
// session_id is optional; one is generated when absent.
func ValidateCreateSessionRequest(req types.CreateSessionRequest) []ValidationError {
	var c Collector
	validateIdentifier(&c, "form_id", req.FormID, true)
	validateIdentifier(&c, "session_id", req.SessionID, false)
	return c.Errors()
}

// ValidateSubmitAnswerRequest checks the body of an answer submission.
func ValidateSubmitAnswerRequest(req types.SubmitAnswerRequest) []ValidationError {
	var c Collector
	validateIdentifier(&c, "field_id", req.FieldID, true)
	return c.Errors()
}

// ValidateAdvanceRequest checks the body of an advance call.
func ValidateAdvanceRequest(req types.AdvanceRequest) []ValidationError {
	var c Collector
	validateAnswerNames(&c, req.CurrentAnswers.Names())
	return c.Errors()
}

func validateIdentifier(c *Collector, field, value string, required bool) {
	if required {
		if err := ValidateRequired(field, value); err != nil {
			c.Add(err)
			return
		}
	}
	c.Add(ValidateUTF8(field, value))
	c.Add(ValidateNoNullBytes(field, value))
	c.Add(ValidateMaxLength(field, value, MaxIdentifierLength))
}

func validateAnswerNames(c *Collector, names []string) {
	for _, name := range names {
		c.Add(ValidateName("current_answers."+name, name))
	}
}
