package orchestrator

import (
	"fmt"

	"reachly/models"
)

// defaultLinkedInMessage is the channel-level static fallback; an outbound
// message is never empty.
const defaultLinkedInMessage = "Hi {{first_name}}, thanks for connecting — would love to hear how you're approaching this at {{company}}."

// ResolveLinkedInBody selects the literal message body for a LinkedIn step
// against the current delivery state. Replied variant wins over opened
// variant wins over primary; an empty selection falls back to the
// author-supplied fallback and then the channel default. Selection reads
// state — step content is never rewritten.
func ResolveLinkedInBody(step models.LinkedInStep, st *models.DeliveryState) string {
	body := step.Body
	if st != nil {
		if st.EmailReplied && step.BodyEmailReplied != "" {
			return step.BodyEmailReplied
		}
		if st.EmailOpened && step.BodyEmailOpened != "" {
			return step.BodyEmailOpened
		}
	}
	if body == "" {
		body = step.BodyFallback
	}
	if body == "" {
		body = defaultLinkedInMessage
	}
	return body
}

// NextLinkedInStep returns the first step past the delivered cursor, or nil
// when the channel is exhausted. Steps at or below the cursor are excluded so
// an already-sent step can never be re-resolved and re-sent.
func NextLinkedInStep(steps []models.LinkedInStep, st *models.DeliveryState) *models.LinkedInStep {
	for i := range steps {
		if steps[i].StepNumber > st.LinkedInStepCurrent {
			return &steps[i]
		}
	}
	return nil
}

// EmailCustomFields flattens the generated email threads into the custom
// field map pushed at provider enrollment
func EmailCustomFields(seq *models.Sequence) map[string]string {
	fields := make(map[string]string)
	n := 0
	for _, thread := range seq.EmailThreads {
		for _, email := range thread.Emails {
			n++
			fields[fmt.Sprintf("email_%d_subject", n)] = email.Subject
			fields[fmt.Sprintf("email_%d_body", n)] = email.Body
		}
	}
	return fields
}

// LinkedInCustomFields maps message steps to numbered custom fields for the
// LinkedIn provider, resolved against the state at enrollment time
func LinkedInCustomFields(seq *models.Sequence, st *models.DeliveryState) map[string]string {
	fields := make(map[string]string)
	n := 0
	for _, step := range seq.LinkedInSteps {
		if step.Type != models.LinkedInStepMessage {
			continue
		}
		n++
		fields[fmt.Sprintf("linkedin_message_%d", n)] = ResolveLinkedInBody(step, st)
	}
	return fields
}
