package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reachly/models"
)

func TestResolveLinkedInBody(t *testing.T) {
	step := models.LinkedInStep{
		StepNumber:       2,
		Type:             models.LinkedInStepMessage,
		Body:             "primary",
		BodyEmailOpened:  "opened variant",
		BodyEmailReplied: "replied variant",
	}

	t.Run("replied beats opened", func(t *testing.T) {
		st := &models.DeliveryState{EmailOpened: true, EmailReplied: true}
		assert.Equal(t, "replied variant", ResolveLinkedInBody(step, st))
	})

	t.Run("opened beats primary", func(t *testing.T) {
		st := &models.DeliveryState{EmailOpened: true}
		assert.Equal(t, "opened variant", ResolveLinkedInBody(step, st))
	})

	t.Run("no engagement yields primary", func(t *testing.T) {
		assert.Equal(t, "primary", ResolveLinkedInBody(step, &models.DeliveryState{}))
	})

	t.Run("missing replied variant falls through to primary", func(t *testing.T) {
		s := step
		s.BodyEmailReplied = ""
		st := &models.DeliveryState{EmailReplied: true}
		assert.Equal(t, "primary", ResolveLinkedInBody(s, st))
	})

	t.Run("empty primary uses author fallback", func(t *testing.T) {
		s := models.LinkedInStep{Type: models.LinkedInStepMessage, BodyFallback: "fallback copy"}
		assert.Equal(t, "fallback copy", ResolveLinkedInBody(s, &models.DeliveryState{}))
	})

	t.Run("nothing at all uses the channel default", func(t *testing.T) {
		s := models.LinkedInStep{Type: models.LinkedInStepMessage}
		assert.Equal(t, defaultLinkedInMessage, ResolveLinkedInBody(s, nil))
	})
}

func TestNextLinkedInStep(t *testing.T) {
	steps := []models.LinkedInStep{
		{StepNumber: 1, Type: models.LinkedInStepConnectionRequest},
		{StepNumber: 2, Type: models.LinkedInStepMessage, Body: "one"},
		{StepNumber: 3, Type: models.LinkedInStepViewProfile},
		{StepNumber: 4, Type: models.LinkedInStepMessage, Body: "two"},
	}

	st := &models.DeliveryState{LinkedInStepCurrent: 1}
	next := NextLinkedInStep(steps, st)
	assert.NotNil(t, next)
	assert.Equal(t, 2, next.StepNumber)

	st.LinkedInStepCurrent = 3
	next = NextLinkedInStep(steps, st)
	assert.NotNil(t, next)
	assert.Equal(t, 4, next.StepNumber)

	st.LinkedInStepCurrent = 4
	assert.Nil(t, NextLinkedInStep(steps, st))
}

func TestEmailCustomFieldsNumberAcrossThreads(t *testing.T) {
	seq := &models.Sequence{
		EmailThreads: []models.EmailThread{
			{ThreadNumber: 1, Emails: []models.EmailStep{
				{Subject: "intro", Body: "body one"},
				{Body: "body two"},
			}},
			{ThreadNumber: 2, Emails: []models.EmailStep{
				{Subject: "new angle", Body: "body three"},
			}},
		},
	}

	fields := EmailCustomFields(seq)
	assert.Len(t, fields, 6)
	assert.Equal(t, "intro", fields["email_1_subject"])
	assert.Equal(t, "body two", fields["email_2_body"])
	assert.Equal(t, "new angle", fields["email_3_subject"])
	assert.Equal(t, "body three", fields["email_3_body"])
}

func TestLinkedInCustomFieldsMessageStepsOnly(t *testing.T) {
	seq := &models.Sequence{
		LinkedInSteps: []models.LinkedInStep{
			{StepNumber: 1, Type: models.LinkedInStepConnectionRequest},
			{StepNumber: 2, Type: models.LinkedInStepMessage, Body: "first touch", BodyEmailOpened: "saw you opened"},
			{StepNumber: 3, Type: models.LinkedInStepViewProfile},
			{StepNumber: 4, Type: models.LinkedInStepMessage, Body: "second touch"},
		},
	}

	fields := LinkedInCustomFields(seq, &models.DeliveryState{EmailOpened: true})
	assert.Len(t, fields, 2)
	assert.Equal(t, "saw you opened", fields["linkedin_message_1"])
	assert.Equal(t, "second touch", fields["linkedin_message_2"])
}
